// File: internal/agent/parse.go
package agent

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// defaultWaitMS is used for a wait item without a duration.
const defaultWaitMS = 1000

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// actionAliases maps spellings models commonly use onto the supported tags.
var actionAliases = map[string]schemas.ActionType{
	"tap":    schemas.ActionTap,
	"click":  schemas.ActionTap,
	"touch":  schemas.ActionTap,
	"typing": schemas.ActionTyping,
	"input":  schemas.ActionTyping,
	"type":   schemas.ActionTyping,
	"open":   schemas.ActionOpen,
	"end":    schemas.ActionEnd,
	"finish": schemas.ActionEnd,
	"done":   schemas.ActionEnd,
	"swipe":  schemas.ActionSwipe,
	"scroll": schemas.ActionSwipe,
	"wait":   schemas.ActionWait,
}

type oracleResponse struct {
	Observation      string          `json:"observation"`
	IsTaskCompleted  json.RawMessage `json:"is_task_completed"`
	CompletionReason string          `json:"completion_reason"`
	Plan             json.RawMessage `json:"plan"`
}

type oracleItem struct {
	Description   string          `json:"description"`
	Type          string          `json:"type"`
	Position      json.RawMessage `json:"position"`
	Box           json.RawMessage `json:"box"`
	Target        string          `json:"target"`
	Text          string          `json:"text"`
	App           string          `json:"app"`
	Package       string          `json:"package"`
	Times         int             `json:"times"`
	StartPosition json.RawMessage `json:"start_position"`
	StopPosition  json.RawMessage `json:"stop_position"`
	Duration      float64         `json:"duration"` // seconds
}

// ParsePlan turns raw model output into a validated Plan. Any shape problem
// is an OracleError with reason MALFORMED; nothing is defaulted silently
// except the documented tap count and wait duration.
func ParsePlan(raw string) (Plan, error) {
	body := extractJSON(raw)
	if body == "" {
		return Plan{}, malformed("no JSON object in response")
	}

	var resp oracleResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return Plan{}, malformed("failed to unmarshal response: %v", err)
	}

	done, err := parseFlag(resp.IsTaskCompleted)
	if err != nil {
		return Plan{}, malformed("is_task_completed: %v", err)
	}
	if done {
		reason := strings.TrimSpace(resp.CompletionReason)
		if reason == "" {
			reason = "task completed"
		}
		return Plan{
			Observation: resp.Observation,
			Items:       []schemas.PlanItem{{Description: reason, Type: schemas.ActionEnd}},
		}, nil
	}

	rawItems, err := splitPlan(resp.Plan)
	if err != nil {
		return Plan{}, err
	}
	items := make([]schemas.PlanItem, 0, len(rawItems))
	for i, ri := range rawItems {
		item, err := ri.validate()
		if err != nil {
			return Plan{}, malformed("plan item %d: %v", i, err)
		}
		items = append(items, item)
	}
	return Plan{Observation: resp.Observation, Items: items}, nil
}

// extractJSON prefers a fenced block and otherwise takes the first balanced
// object in the text.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func parseFlag(raw json.RawMessage) (bool, error) {
	if isNull(raw) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			return true, nil
		case "false", "no", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("not a boolean: %s", raw)
}

// splitPlan accepts a single item object or an array of items.
func splitPlan(raw json.RawMessage) ([]oracleItem, error) {
	if isNull(raw) {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case '{':
		var item oracleItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, malformed("plan: %v", err)
		}
		return []oracleItem{item}, nil
	case '[':
		var items []oracleItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, malformed("plan: %v", err)
		}
		return items, nil
	}
	return nil, malformed("plan must be an object or an array")
}

func (ri oracleItem) validate() (schemas.PlanItem, error) {
	kind, ok := actionAliases[strings.ToLower(strings.TrimSpace(ri.Type))]
	if !ok {
		return schemas.PlanItem{}, fmt.Errorf("unknown action type %q", ri.Type)
	}
	item := schemas.PlanItem{
		Description: ri.Description,
		Type:        kind,
		Target:      strings.TrimSpace(ri.Target),
		Text:        ri.Text,
		App:         strings.TrimSpace(ri.App),
		Package:     strings.TrimSpace(ri.Package),
	}

	var err error
	if item.Position, err = parsePoint(ri.Position); err != nil {
		return item, fmt.Errorf("position: %w", err)
	}
	if item.Box, err = parseBox(ri.Box); err != nil {
		return item, fmt.Errorf("box: %w", err)
	}
	if item.StartPosition, err = parsePoint(ri.StartPosition); err != nil {
		return item, fmt.Errorf("start_position: %w", err)
	}
	if item.StopPosition, err = parsePoint(ri.StopPosition); err != nil {
		return item, fmt.Errorf("stop_position: %w", err)
	}
	if ri.Times < 0 {
		return item, fmt.Errorf("times must not be negative")
	}
	if item.Duration, err = secondsToMS(ri.Duration); err != nil {
		return item, err
	}

	switch kind {
	case schemas.ActionTap:
		item.Times = max(ri.Times, 1)
	case schemas.ActionWait:
		if item.Duration == 0 {
			item.Duration = defaultWaitMS
		}
	}
	return item, item.Validate()
}

// secondsToMS converts a duration in (possibly fractional) seconds to whole
// milliseconds.
func secondsToMS(sec float64) (int, error) {
	if sec < 0 || math.IsInf(sec, 0) || math.IsNaN(sec) {
		return 0, fmt.Errorf("duration %v must be a non-negative number of seconds", sec)
	}
	return int(math.Round(sec * 1000)), nil
}

func parsePoint(raw json.RawMessage) (*schemas.Point, error) {
	if isNull(raw) {
		return nil, nil
	}
	var nums []float64
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("want [x, y]: %v", err)
	}
	if len(nums) != 2 {
		return nil, fmt.Errorf("want 2 coordinates, got %d", len(nums))
	}
	x, err := toInt(nums[0])
	if err != nil {
		return nil, err
	}
	y, err := toInt(nums[1])
	if err != nil {
		return nil, err
	}
	return &schemas.Point{x, y}, nil
}

// parseBox accepts [[x1, y1], [x2, y2]] and the flat [x1, y1, x2, y2].
func parseBox(raw json.RawMessage) (*schemas.Box, error) {
	if isNull(raw) {
		return nil, nil
	}
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) == 4 {
		nested := [][]float64{flat[:2], flat[2:]}
		return boxFrom(nested)
	}
	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("want [[x1, y1], [x2, y2]]: %v", err)
	}
	return boxFrom(nested)
}

func boxFrom(pairs [][]float64) (*schemas.Box, error) {
	if len(pairs) != 2 || len(pairs[0]) != 2 || len(pairs[1]) != 2 {
		return nil, fmt.Errorf("want two [x, y] corners")
	}
	var b schemas.Box
	for i := range pairs {
		for j := range pairs[i] {
			v, err := toInt(pairs[i][j])
			if err != nil {
				return nil, err
			}
			b[i][j] = v
		}
	}
	if b.Width() < 0 || b.Height() < 0 {
		return nil, fmt.Errorf("corners of %s are not top-left then bottom-right", b)
	}
	return &b, nil
}

func toInt(v float64) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("coordinate %v is not an integer", v)
	}
	return int(v), nil
}

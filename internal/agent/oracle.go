// File: internal/agent/oracle.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/apps"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

const systemPromptTemplate = `You operate an Android phone to complete the user's task.
Each turn you receive the task, the steps taken so far and the current UI tree.
Every tree line is: [index] class text="..." desc="..." id="..." flags bounds=[x1,y1][x2,y2]

Propose the next action(s). Supported types:
- tap: tap an element. Give "box" (copy the bounds as [[x1,y1],[x2,y2]]) or "position" [x,y] or "target" (a text/desc/id keyword). Optional "times".
- typing: enter "text". Optionally tap a field first using box/position/target.
- open: open an app. Give "app" (its display name) and, if known, "package". Include the icon "box" when it is visible.
- swipe: "start_position" [x,y], "stop_position" [x,y], optional "duration" in seconds (e.g. 0.5).
- wait: pause for "duration" seconds while the screen loads.
- end: the task is done.

Answer with one JSON object and nothing else:
{"observation": "what the screen shows", "is_task_completed": false, "completion_reason": "", "plan": [{"description": "...", "type": "tap", "box": [[0,0],[10,10]]}]}

Known apps (name: package):
%s`

// LLMOracle plans steps by prompting a language model and passing its answer
// through ParsePlan.
type LLMOracle struct {
	client   schemas.LLMClient
	registry *apps.Registry
	cfg      config.AgentConfig
	logger   *zap.Logger
}

// NewLLMOracle builds an oracle over client. The registry's entries are
// listed in the system prompt on every call, so later updates are picked up.
func NewLLMOracle(client schemas.LLMClient, registry *apps.Registry, cfg config.AgentConfig, logger *zap.Logger) *LLMOracle {
	return &LLMOracle{
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger.Named("oracle"),
	}
}

// Plan asks the model for the next step.
func (o *LLMOracle) Plan(ctx context.Context, req PlanRequest) (Plan, error) {
	if o.cfg.LLM.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LLM.APITimeout)
		defer cancel()
	}

	genReq := schemas.GenerationRequest{
		SystemPrompt: o.systemPrompt(),
		UserPrompt:   buildUserPrompt(req, o.cfg.HistoryLimit),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     o.cfg.LLM.Temperature,
			TopP:            o.cfg.LLM.TopP,
			ForceJSONFormat: true,
		},
	}
	if o.cfg.Multimodal && len(req.Screenshot) > 0 {
		genReq.Attachments = []schemas.Attachment{{MIMEType: "image/png", Data: req.Screenshot}}
	}

	raw, err := o.client.Generate(ctx, genReq)
	if err != nil {
		return Plan{}, &OracleError{Reason: OracleUnreachable, Err: err}
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		o.logger.Warn("Discarding unusable plan.",
			zap.Int("step", req.Step),
			zap.String("raw_response", raw),
			zap.Error(err))
		return Plan{}, err
	}
	o.logger.Debug("Plan received.", zap.Int("step", req.Step), zap.Int("items", len(plan.Items)))
	return plan, nil
}

func (o *LLMOracle) systemPrompt() string {
	var known strings.Builder
	if o.registry != nil {
		for _, e := range o.registry.All() {
			fmt.Fprintf(&known, "- %s: %s\n", e.Name, e.Package)
		}
	}
	if known.Len() == 0 {
		known.WriteString("(none)\n")
	}
	return fmt.Sprintf(systemPromptTemplate, known.String())
}

func buildUserPrompt(req PlanRequest, historyLimit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Query)
	fmt.Fprintf(&b, "Step: %d\n\n", req.Step)

	history := req.History
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	b.WriteString("History:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, rec := range history {
		for _, item := range rec.Plan {
			fmt.Fprintf(&b, "- step %d: %s (%s)\n", rec.Step, item.Description, item.Type)
		}
		if len(rec.Plan) == 0 {
			fmt.Fprintf(&b, "- step %d: no action\n", rec.Step)
		}
		if rec.Failed {
			fmt.Fprintf(&b, "  FAILED %s: %s\n", rec.ErrorCode, rec.Error)
		}
	}

	b.WriteString("\nCurrent UI tree:\n")
	if req.Snapshot != nil {
		fmt.Fprintf(&b, "screen %dx%d\n", req.Snapshot.Width(), req.Snapshot.Height())
		b.WriteString(req.Snapshot.Compact())
	}
	return b.String()
}

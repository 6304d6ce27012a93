// File: api/schemas/episode.go
package schemas

import (
	"fmt"
	"sort"
	"time"
)

// TerminalReason records why an episode stopped.
type TerminalReason string

const (
	ReasonCompleted           TerminalReason = "Completed"
	ReasonStepBudgetExhausted TerminalReason = "StepBudgetExhausted"
	ReasonPlanningFailed      TerminalReason = "PlanningFailed"
	ReasonInterrupted         TerminalReason = "Interrupted"
)

// Defaults used until the device describes itself.
const (
	UnknownPhone = "Unknown Device"
	UnknownOS    = "Unknown OS"
)

// LaunchAttempt is the diagnostic record of one app-launch tier.
type LaunchAttempt struct {
	Tier    int    `json:"tier"`
	Status  string `json:"status"` // skipped, succeeded, failed
	App     string `json:"app,omitempty"`
	Package string `json:"package,omitempty"`
	Point   *Point `json:"point,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ResolvedTarget is the concrete coordinate an item was executed at.
type ResolvedTarget struct {
	Item     int    `json:"item"`
	Position Point  `json:"position"`
	Box      *Box   `json:"box,omitempty"`
	Source   string `json:"source"` // position, box or keyword
}

// StepRecord is one completed pass through the control loop.
type StepRecord struct {
	Step        int              `json:"step"`
	Screenshot  string           `json:"screenshot,omitempty"`
	XML         string           `json:"xml,omitempty"`
	Observation string           `json:"observation"`
	Plan        []PlanItem       `json:"plan"`
	Label       string           `json:"label,omitempty"`
	Resolved    []ResolvedTarget `json:"resolved,omitempty"`
	Launch      []LaunchAttempt  `json:"launch,omitempty"`
	Completed   bool             `json:"completed"`
	Failed      bool             `json:"failed,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	DurationMS  int64            `json:"duration_ms"`
}

// Episode is the durable record of one task run.
type Episode struct {
	EpisodeID        string         `json:"episode_id"`
	Phone            string         `json:"phone"`
	OS               string         `json:"os"`
	ScreenResolution [2]int         `json:"screen_resolution"`
	Query            string         `json:"query"`
	RawQuery         string         `json:"raw_query,omitempty"`
	Status           TerminalReason `json:"status,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	Data             []StepRecord   `json:"data"`
}

// EpisodeSummary is the listing view of an episode.
type EpisodeSummary struct {
	EpisodeID string         `json:"episode_id"`
	Query     string         `json:"query"`
	Status    TerminalReason `json:"status"`
	Steps     int            `json:"steps"`
	StartedAt time.Time      `json:"started_at"`
}

// Terminated reports whether a terminal reason has been set.
func (e *Episode) Terminated() bool { return e.Status != "" }

// AppendStep adds a step record. Steps are append-only with strictly
// increasing indices, and a terminated episode accepts no more steps.
func (e *Episode) AppendStep(rec StepRecord) error {
	if e.Terminated() {
		return fmt.Errorf("episode %s already terminated (%s)", e.EpisodeID, e.Status)
	}
	if n := len(e.Data); n > 0 && rec.Step <= e.Data[n-1].Step {
		return fmt.Errorf("step %d does not follow step %d", rec.Step, e.Data[n-1].Step)
	}
	e.Data = append(e.Data, rec)
	return nil
}

// Terminate sets the terminal reason and finish time exactly once.
func (e *Episode) Terminate(reason TerminalReason, at time.Time) {
	if e.Terminated() {
		return
	}
	e.Status = reason
	at = at.UTC()
	e.FinishedAt = &at
}

// Summary returns the listing view.
func (e *Episode) Summary() EpisodeSummary {
	return EpisodeSummary{
		EpisodeID: e.EpisodeID,
		Query:     e.Query,
		Status:    e.Status,
		Steps:     len(e.Data),
		StartedAt: e.StartedAt,
	}
}

// LaunchedApps returns the distinct apps the episode successfully opened,
// sorted by name. Only succeeded launch attempts count, so an app opened
// earlier in a step that later failed is still reported.
func (e *Episode) LaunchedApps() []string {
	seen := make(map[string]struct{})
	for _, step := range e.Data {
		for _, a := range step.Launch {
			if a.Status != "succeeded" {
				continue
			}
			name := a.App
			if name == "" {
				name = a.Package
			}
			if name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	apps := make([]string, 0, len(seen))
	for name := range seen {
		apps = append(apps, name)
	}
	sort.Strings(apps)
	return apps
}

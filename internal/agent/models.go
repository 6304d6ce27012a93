// File: internal/agent/models.go
package agent

import (
	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/uitree"
)

// State is the executor's position in the control loop.
type State string

const (
	StateInit       State = "INIT"
	StateObserving  State = "OBSERVING"
	StatePlanning   State = "PLANNING"
	StateActing     State = "ACTING"
	StateJudging    State = "JUDGING"
	StateTerminated State = "TERMINATED"
)

// PlanRequest is everything the oracle sees for one planning round.
type PlanRequest struct {
	Query      string
	Step       int
	Snapshot   *uitree.Snapshot
	Screenshot []byte // PNG, may be empty
	History    []schemas.StepRecord
}

// Plan is a validated oracle answer. Items may be empty.
type Plan struct {
	Observation string
	Items       []schemas.PlanItem
}

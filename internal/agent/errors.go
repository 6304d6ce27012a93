// File: internal/agent/errors.go
package agent

import "fmt"

// ErrorCode is recorded on a failed step so the next planning round can react
// to it.
type ErrorCode string

const (
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeOutOfBounds     ErrorCode = "OUT_OF_BOUNDS"
	ErrCodeLaunchFailed    ErrorCode = "LAUNCH_FAILED"
	ErrCodeDeviceError     ErrorCode = "DEVICE_ERROR"
	// ErrCodeInvalidAction only appears if an item slips past the parse boundary.
	ErrCodeInvalidAction ErrorCode = "INVALID_ACTION"
)

// OracleReason classifies a failed planning call.
type OracleReason string

const (
	OracleMalformed   OracleReason = "MALFORMED"
	OracleUnreachable OracleReason = "UNREACHABLE"
)

// OracleError is returned by an Oracle when no usable plan was produced.
type OracleError struct {
	Reason OracleReason
	Err    error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Reason, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) *OracleError {
	return &OracleError{Reason: OracleMalformed, Err: fmt.Errorf(format, args...)}
}

// ExecutorReason classifies an episode that did not complete.
type ExecutorReason string

const (
	ReasonPlanningFailed      ExecutorReason = "PLANNING_FAILED"
	ReasonStepBudgetExhausted ExecutorReason = "STEP_BUDGET_EXHAUSTED"
	ReasonInvalidQuery        ExecutorReason = "INVALID_QUERY"
	ReasonInterrupted         ExecutorReason = "INTERRUPTED"
)

// ExecutorError is returned by TaskExecutor.Run for every outcome other than
// Completed. The episode is still returned alongside it when one was created.
type ExecutorError struct {
	Reason ExecutorReason
	Err    error
}

func (e *ExecutorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("episode %s", e.Reason)
	}
	return fmt.Sprintf("episode %s: %v", e.Reason, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

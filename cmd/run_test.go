// File: cmd/run_test.go
package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/agent"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

func TestRunCommand(t *testing.T) {
	t.Run("should join the arguments into one query and print the episode", func(t *testing.T) {
		env := newTestEnv(t, "")
		runner := new(mockRunner)
		runner.On("Run", mock.Anything, "打开 微信").Return(finishedEpisode("ep-42", "打开 微信", schemas.ReasonCompleted, "微信"), nil)
		stubComponents(t, runner)

		out, err := env.executeCommand(t, context.Background(), "run", "打开", "微信")
		require.NoError(t, err)
		assert.Contains(t, out, "Episode: ep-42")
		assert.Contains(t, out, "Status:  Completed")
		assert.Contains(t, out, "Apps:    微信")
		runner.AssertExpectations(t)
	})

	t.Run("should override the step budget from the flag", func(t *testing.T) {
		env := newTestEnv(t, "")
		runner := new(mockRunner)
		runner.On("Run", mock.Anything, "open settings").Return(finishedEpisode("ep-1", "open settings", schemas.ReasonCompleted), nil)
		seen := stubComponents(t, runner)

		_, err := env.executeCommand(t, context.Background(), "run", "--max-steps", "12", "open settings")
		require.NoError(t, err)
		require.Len(t, *seen, 1)
		assert.Equal(t, 12, (*seen)[0].Agent.MaxSteps)
	})

	t.Run("should reject a non-positive step budget", func(t *testing.T) {
		env := newTestEnv(t, "")
		stubComponents(t, new(mockRunner))

		_, err := env.executeCommand(t, context.Background(), "run", "--max-steps", "0", "open settings")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--max-steps")
	})

	t.Run("should print the episode and return the executor error", func(t *testing.T) {
		env := newTestEnv(t, "")
		ep := finishedEpisode("ep-7", "open settings", schemas.ReasonPlanningFailed)
		ep.Error = "oracle MALFORMED: no JSON object"
		runner := new(mockRunner)
		runner.On("Run", mock.Anything, "open settings").Return(ep, &agent.ExecutorError{Reason: agent.ReasonPlanningFailed, Err: errors.New("no JSON object")})
		stubComponents(t, runner)

		out, err := env.executeCommand(t, context.Background(), "run", "open settings")
		var execErr *agent.ExecutorError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, agent.ReasonPlanningFailed, execErr.Reason)
		assert.Contains(t, out, "Status:  PlanningFailed")
		assert.Contains(t, out, "Error:   oracle MALFORMED")
	})

	t.Run("should surface component initialization failures", func(t *testing.T) {
		env := newTestEnv(t, "")
		original := buildComponents
		t.Cleanup(func() { buildComponents = original })
		buildComponents = func(context.Context, *config.Config, *zap.Logger) (*components, error) {
			return &components{}, errors.New("no devices attached")
		}

		_, err := env.executeCommand(t, context.Background(), "run", "open settings")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no devices attached")
	})

	t.Run("should require a query", func(t *testing.T) {
		env := newTestEnv(t, "")
		_, err := env.executeCommand(t, context.Background(), "run")
		require.Error(t, err)
	})
}

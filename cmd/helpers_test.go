// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// testEnv is an isolated config file plus the directories it points at.
type testEnv struct {
	dir        string
	configPath string
	appsFile   string
	outputDir  string
	logFile    string
}

// newTestEnv writes a config.yaml into a temp dir. extra is appended verbatim.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		appsFile:   filepath.Join(dir, "apps.yaml"),
		outputDir:  filepath.Join(dir, "output"),
		logFile:    filepath.Join(dir, "droidpilot.log"),
	}
	content := fmt.Sprintf(`logger:
  level: error
  log_file: %q
apps:
  file: %q
store:
  driver: file
  output_dir: %q
agent:
  max_steps: 5
%s`, env.logFile, env.appsFile, env.outputDir, extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

// executeCommand runs a fresh root command with the env's config and returns
// everything written to stdout and stderr.
func (e *testEnv) executeCommand(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

// stubComponents replaces buildComponents for the duration of the test.
func stubComponents(t *testing.T, runner episodeRunner) *[]*config.Config {
	t.Helper()
	var seen []*config.Config
	original := buildComponents
	buildComponents = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
		seen = append(seen, cfg)
		return &components{Executor: runner}, nil
	}
	t.Cleanup(func() { buildComponents = original })
	return &seen
}

// mockRunner is a testify stub for the task executor.
type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, query string) (*schemas.Episode, error) {
	args := m.Called(ctx, query)
	ep, _ := args.Get(0).(*schemas.Episode)
	return ep, args.Error(1)
}

// finishedEpisode builds a terminated episode with one Open step per app.
func finishedEpisode(id, query string, reason schemas.TerminalReason, launched ...string) *schemas.Episode {
	ep := &schemas.Episode{EpisodeID: id, Query: query, Status: reason}
	for i, app := range launched {
		ep.Data = append(ep.Data, schemas.StepRecord{
			Step: i + 1,
			Plan:   []schemas.PlanItem{{Description: "open " + app, Type: schemas.ActionOpen, App: app}},
			Launch: []schemas.LaunchAttempt{{Tier: 2, Status: "succeeded", App: app}},
		})
	}
	return ep
}

// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/agent"
	"github.com/xkilldash9x/droidpilot/internal/apps"
	"github.com/xkilldash9x/droidpilot/internal/config"
	"github.com/xkilldash9x/droidpilot/internal/device"
	"github.com/xkilldash9x/droidpilot/internal/llmclient"
	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

// episodeRunner is the part of the task executor the commands use.
type episodeRunner interface {
	Run(ctx context.Context, query string) (*schemas.Episode, error)
}

// components holds the services wired for run and batch.
type components struct {
	Registry *apps.Registry
	LLM      schemas.LLMClient
	Store    schemas.EpisodeStore
	Files    *store.FileStore
	Metrics  *observability.Metrics
	Executor episodeRunner

	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// buildComponents is swapped out in tests.
var buildComponents = initializeComponents

// Shutdown stops the metrics endpoint and releases clients. Safe on a
// partially built value.
func (c *components) Shutdown() {
	logger := observability.GetLogger()
	if c.stopMetrics != nil {
		c.stopMetrics()
		select {
		case <-c.metricsDone:
		case <-time.After(10 * time.Second):
			logger.Warn("Metrics endpoint did not stop in time.")
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Error closing episode store.", zap.Error(err))
		}
	}
}

// initializeComponents wires device, registry, launcher, oracle, store and
// executor from cfg.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{Metrics: observability.NewMetrics()}

	// 1. Device
	adb, err := device.NewADB(ctx, cfg.Device, logger)
	if err != nil {
		return c, fmt.Errorf("failed to connect to device: %w", err)
	}

	// 2. App registry and launcher
	registry, err := apps.LoadFile(cfg.Apps.File)
	if err != nil {
		return c, err
	}
	c.Registry = registry
	launcher := apps.NewLauncher(registry, adb, c.Metrics, logger)

	// 3. Oracle
	llm, err := llmclient.NewClient(ctx, cfg.Agent.LLM, logger)
	if err != nil {
		return c, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	c.LLM = llm
	oracle := agent.NewLLMOracle(llm, registry, cfg.Agent, logger)

	// 4. Episode store
	episodes, files, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return c, fmt.Errorf("failed to open episode store: %w", err)
	}
	c.Store = episodes
	c.Files = files

	// 5. Metrics endpoint
	if cfg.Metrics.Enabled {
		c.startMetrics(ctx, cfg.Metrics.ListenAddr, logger)
	}

	// 6. Executor
	executor, err := agent.NewTaskExecutor(cfg, agent.Dependencies{
		Device:    adb,
		Oracle:    oracle,
		Launcher:  launcher,
		Store:     episodes,
		Artifacts: files,
		Metrics:   c.Metrics,
	}, logger)
	if err != nil {
		return c, err
	}
	c.Executor = executor
	return c, nil
}

func (c *components) startMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	metricsCtx, cancel := context.WithCancel(ctx)
	c.stopMetrics = cancel
	c.metricsDone = make(chan struct{})
	go func() {
		defer close(c.metricsDone)
		if err := c.Metrics.Serve(metricsCtx, addr, logger); err != nil {
			logger.Error("Metrics endpoint failed.", zap.Error(err))
		}
	}()
}

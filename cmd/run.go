// File: cmd/run.go
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/agent"
	"github.com/xkilldash9x/droidpilot/internal/observability"
)

func newRunCmd() *cobra.Command {
	var maxSteps int

	runCmd := &cobra.Command{
		Use:   "run [query...]",
		Short: "Runs one natural-language task on the attached device",
		Example: `  droidpilot run "打开微信给张三发消息说晚上好"
  droidpilot run --max-steps 20 "open settings and turn on wifi"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-steps") {
				if maxSteps <= 0 {
					return fmt.Errorf("--max-steps must be positive, got %d", maxSteps)
				}
				cfg.Agent.MaxSteps = maxSteps
			}

			query := strings.Join(args, " ")
			components, err := buildComponents(ctx, cfg, logger)
			if components != nil {
				defer components.Shutdown()
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			ep, runErr := components.Executor.Run(ctx, query)
			if ep != nil {
				printEpisode(cmd, ep)
			}
			if runErr != nil {
				var execErr *agent.ExecutorError
				if errors.As(runErr, &execErr) && execErr.Reason == agent.ReasonInterrupted {
					logger.Warn("Task interrupted.", zap.String("query", query))
				}
				return runErr
			}
			return nil
		},
	}

	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step budget for this run. (Overrides config/env)")
	return runCmd
}

func printEpisode(cmd *cobra.Command, ep *schemas.Episode) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Episode: %s\n", ep.EpisodeID)
	fmt.Fprintf(out, "Status:  %s\n", ep.Status)
	fmt.Fprintf(out, "Steps:   %d\n", len(ep.Data))
	if launched := ep.LaunchedApps(); len(launched) > 0 {
		fmt.Fprintf(out, "Apps:    %s\n", strings.Join(launched, ", "))
	}
	if ep.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", ep.Error)
	}
}

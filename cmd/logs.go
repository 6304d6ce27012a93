// File: cmd/logs.go
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var follow, poll bool

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the droidpilot log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cfg.Logger.LogFile == "" {
				return errors.New("logger.log_file is not configured")
			}

			t, err := tail.TailFile(cfg.Logger.LogFile, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: !follow,
				Poll:      poll,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			if follow && !poll {
				// Releases the shared inotify watch.
				defer t.Cleanup()
			}

			return copyLines(cmd, t)
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	logsCmd.Flags().BoolVar(&poll, "poll", false, "Poll the file for changes instead of using inotify")
	return logsCmd
}

// copyLines prints tailed lines until the tail ends or the command context is cancelled.
func copyLines(cmd *cobra.Command, t *tail.Tail) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Wait(); err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

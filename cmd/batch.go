// File: cmd/batch.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/observability"
)

const batchReportFile = "batch_report.json"

// batchResult is one query's line in the batch report.
type batchResult struct {
	Query        string                 `json:"query"`
	EpisodeID    string                 `json:"episode_id,omitempty"`
	Status       schemas.TerminalReason `json:"status,omitempty"`
	Steps        int                    `json:"steps"`
	LaunchedApps []string               `json:"launched_apps,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

type batchReport struct {
	Total        int           `json:"total"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	LaunchedApps []string      `json:"launched_apps"`
	Results      []batchResult `json:"results"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

func newBatchCmd() *cobra.Command {
	var queryFile, reportPath string

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Runs every query in a file sequentially and writes a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			queries, err := readQueries(queryFile)
			if err != nil {
				return err
			}
			if len(queries) == 0 {
				return fmt.Errorf("no queries found in %s", queryFile)
			}

			components, err := buildComponents(ctx, cfg, logger)
			if components != nil {
				defer components.Shutdown()
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			report, runErr := runBatch(ctx, components.Executor, queries, logger)

			if reportPath == "" {
				reportPath = filepath.Join(cfg.Store.OutputDir, batchReportFile)
			}
			if err := writeBatchReport(reportPath, report); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Batch complete: %d/%d completed, %d failed.\nReport: %s\n",
				report.Completed, report.Total, report.Failed, reportPath)
			return runErr
		},
	}

	batchCmd.Flags().StringVarP(&queryFile, "file", "f", "", "File with one query per line. Blank lines and # comments are skipped.")
	batchCmd.Flags().StringVarP(&reportPath, "report", "o", "", "Report path (default <output_dir>/batch_report.json)")
	_ = batchCmd.MarkFlagRequired("file")
	return batchCmd
}

// readQueries returns the non-empty, non-comment lines of path.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open query file: %w", err)
	}
	defer f.Close()
	return scanQueries(f)
}

func scanQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	return queries, nil
}

// runBatch runs the queries one after another. Only cancellation stops the
// batch early; the partial report is still returned.
func runBatch(ctx context.Context, runner episodeRunner, queries []string, logger *zap.Logger) (*batchReport, error) {
	report := &batchReport{
		Total:     len(queries),
		StartedAt: time.Now().UTC(),
		Results:   make([]batchResult, 0, len(queries)),
	}
	apps := make(map[string]struct{})

	for i, query := range queries {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			report.LaunchedApps = sortedKeys(apps)
			return report, err
		}

		logger.Info("Running batch query.", zap.Int("index", i+1), zap.Int("total", len(queries)), zap.String("query", query))
		ep, err := runner.Run(ctx, query)

		res := batchResult{Query: query}
		if ep != nil {
			res.EpisodeID = ep.EpisodeID
			res.Status = ep.Status
			res.Steps = len(ep.Data)
			res.LaunchedApps = ep.LaunchedApps()
			for _, name := range res.LaunchedApps {
				apps[name] = struct{}{}
			}
		}
		if err != nil {
			res.Error = err.Error()
			report.Failed++
		} else {
			report.Completed++
		}
		report.Results = append(report.Results, res)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.FinishedAt = time.Now().UTC()
			report.LaunchedApps = sortedKeys(apps)
			return report, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.LaunchedApps = sortedKeys(apps)
	return report, nil
}

func writeBatchReport(path string, report *batchReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode batch report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write batch report: %w", err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

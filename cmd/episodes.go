// File: cmd/episodes.go
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/droidpilot/internal/observability"
	"github.com/xkilldash9x/droidpilot/internal/store"
)

func newEpisodesCmd() *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Reads persisted episodes from the configured store",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists episodes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			episodes, _, err := store.Open(ctx, cfg.Store, observability.GetLogger())
			if err != nil {
				return err
			}
			defer episodes.Close()

			summaries, err := episodes.ListEpisodes(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EPISODE\tSTARTED\tSTATUS\tSTEPS\tQUERY")
			for _, s := range summaries {
				status := string(s.Status)
				if status == "" {
					status = "running"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.EpisodeID, s.StartedAt.Local().Format(time.DateTime), status, s.Steps, s.Query)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of episodes to list (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Prints one episode record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			episodes, _, err := store.Open(ctx, cfg.Store, observability.GetLogger())
			if err != nil {
				return err
			}
			defer episodes.Close()

			ep, err := episodes.LoadEpisode(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(ep, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode episode: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	episodesCmd.AddCommand(listCmd, showCmd)
	return episodesCmd
}

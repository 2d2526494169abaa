package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/tracker"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		backend string
		recent  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := context.Background()
			out := cmd.OutOrStdout()

			// Recent request view
			if recent > 0 {
				recs, err := tr.Since(ctx, time.Now().Add(-recent))
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(out, "No requests in that window.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tBACKEND\tMODEL\tPROMPT\tCOMPLETION\tCOST")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t$%.5f\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"), r.Backend, r.Model, r.PromptTokens, r.CompletionTokens, r.Cost)
				}
				return w.Flush()
			}

			// Default: usage summary
			summaries, err := tr.Summary(ctx, models.Backend(backend))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tMODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL\tCOST")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\n",
					s.Backend, s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens, s.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "filter by backend (local or cloud)")
	cmd.Flags().DurationVar(&recent, "recent", 0, "list individual requests from this far back, e.g. 1h")
	return cmd
}

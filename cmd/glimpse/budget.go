package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/glimpse/pkg/budget"
	"github.com/pario-ai/glimpse/pkg/tracker"
)

func newBudgetCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show cloud spend against the daily ceiling",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's cloud spend vs the ceiling",
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

			ledger, err := budget.NewLedger(context.Background(), budget.Options{
				Ceiling: cfg.Router.DailyCostCeiling,
				Tracker: tr,
			})
			if err != nil {
				return err
			}
			s := ledger.Status()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY (UTC)\tSPENT\tCEILING\tREMAINING")
			if s.Ceiling <= 0 {
				fmt.Fprintf(w, "%s\t$%.4f\tunlimited\t-\n", s.Day, s.Spent)
			} else {
				fmt.Fprintf(w, "%s\t$%.4f\t$%.2f\t$%.4f\n", s.Day, s.Spent, s.Ceiling, s.Remaining)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if ledger.Exceeded() {
				fmt.Fprintln(os.Stderr, "Ceiling reached: requests are routed to the local model until tomorrow.")
			}
			return nil
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/glimpse/pkg/distill"
)

func newDistillCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distill",
		Short: "Inspect distillation records for the offline trainer",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many accepted cloud answers are spooled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			n, err := distill.CountSpooled(cfg.Distill.SpoolPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Spool:    %s\nRecords:  %d\nCapacity: %d (in-memory queue)\n",
				cfg.Distill.SpoolPath, n, cfg.Distill.Capacity)
			return nil
		},
	}

	cmd.AddCommand(statsCmd)
	return cmd
}

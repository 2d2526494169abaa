package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/models"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var (
		typed  []string
		accept bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Capture the screen once and answer a question about it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log, err := g.logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			tp := &tokenPrinter{w: out}
			a, err := newApp(ctx, cfg, log, appOptions{Sink: tp.sink})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()

			for _, s := range typed {
				a.pipeline.Record(models.EventText, s)
			}
			trig := models.Trigger{Kind: models.TriggerHotkey}
			if q := strings.TrimSpace(strings.Join(args, " ")); q != "" {
				trig = models.Trigger{Kind: models.TriggerChat, Message: q}
			}

			answer, err := a.pipeline.Trigger(ctx, trig)
			if err != nil {
				return err
			}
			// Rulebook and cache answers are not streamed.
			if !tp.wrote {
				fmt.Fprint(out, answer.Text)
			}
			fmt.Fprintf(out, "\n-- %s\n", describe(answer))
			if accept {
				a.pipeline.AcceptLast()
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&typed, "typed", nil, "text to record as recently typed before capturing")
	cmd.Flags().BoolVar(&accept, "accept", false, "mark the answer as accepted")
	return cmd
}

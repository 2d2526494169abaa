package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/glimpse/pkg/models"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the assistant on line-oriented input from stdin",
		Long: `Run the assistant. Each line read from stdin is recorded as typed text,
except:
  ? <question>   ask a question about the current screen
  !              hotkey trigger with no question
  +  / -         accept or reject the last answer`,
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

			sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(sigCtx)
			defer cancel()

			a, err := newApp(ctx, cfg, log, appOptions{
				Listener: &answerPrinter{w: cmd.OutOrStdout()},
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()

			triggers := make(chan models.Trigger)
			// The scanner may stay blocked on stdin after cancellation, so it is
			// not waited for.
			go func() {
				defer close(triggers)
				if err := a.pipeline.ScanInput(ctx, cmd.InOrStdin(), triggers); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("input stopped", zap.Error(err))
				}
			}()

			log.Info("glimpse running",
				zap.String("config", g.configPath),
				zap.Bool("cloud", cfg.Cloud.APIKey != ""),
				zap.Bool("cache", cfg.Cache.Enabled))

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error { return a.scheduler.Run(egCtx) })
			eg.Go(func() error {
				// End of input ends the session.
				defer cancel()
				return a.pipeline.Run(egCtx, triggers)
			})
			if err := eg.Wait(); err != nil {
				return fmt.Errorf("run: %w", err)
			}

			st := a.pipeline.Stats()
			log.Info("glimpse stopped",
				zap.Int64("triggers", st.Triggers),
				zap.Int64("answered", st.Answered),
				zap.Int64("failed", st.Failed))
			return nil
		},
	}
}

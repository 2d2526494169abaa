package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pario-ai/glimpse/pkg/config"
)

var version = "dev"

// globalFlags are shared by every sub-command.
type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "glimpse",
		Short:         "Glimpse — context-aware desktop assistant with local/cloud routing",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "glimpse.yaml", "path to config file")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(g),
		newAskCmd(g),
		newCacheCmd(g),
		newBudgetCmd(g),
		newStatsCmd(g),
		newDistillCmd(g),
	)
	return root
}

// load reads the environment file and the config. A missing config file
// falls back to defaults.
func (g *globalFlags) load() (*config.Config, error) {
	if err := config.LoadEnv(g.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if g.debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

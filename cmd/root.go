// Package cmd defines the dubbadge CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/config"
	"github.com/JakeFAU/dubbadge/internal/logging"
)

// runtimeEnv is what every subcommand gets once config and logging are up.
type runtimeEnv struct {
	cfg    config.Config
	logger *zap.Logger
}

type envKeyType struct{}

var envKey envKeyType

// newRootCmd creates the root command and registers every subcommand.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "dubbadge",
		Short: "Overlay dubbed badges on anime cards in a running media UI.",
		Long: `dubbadge attaches to the media server's web UI through the DevTools protocol,
resolves the identifier behind every anime card, and marks the ones that have an
English (or other language) dub according to a published dataset.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &runtimeEnv{cfg: cfg, logger: logger}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if env, ok := cmd.Context().Value(envKey).(*runtimeEnv); ok {
				_ = env.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); DUBBADGE_* env vars override it")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDryRunCmd())
	cmd.AddCommand(newDatasetCmd())
	cmd.AddCommand(newSettingsCmd())
	return cmd
}

func envFrom(ctx context.Context) (*runtimeEnv, error) {
	env, ok := ctx.Value(envKey).(*runtimeEnv)
	if !ok || env == nil {
		return nil, errors.New("runtime not initialized")
	}
	return env, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "dubbadge:", err)
		os.Exit(1)
	}
}

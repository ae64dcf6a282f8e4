package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SwapLedger/internal/config"
	"SwapLedger/internal/observability"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger := observability.NewLogger("swapledger")
		logger.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "swapledger",
		Short:         "AMM token exchange ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (SWAP_* env vars override it)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		observability.ConfigureLogging(cfg.Log.Level, cfg.Log.Format)
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newCheckpointCmd(load),
		newTokenCmd(load),
	)
	return root
}

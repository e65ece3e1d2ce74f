package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mwiesel/vodamon/internal/config"
	"github.com/mwiesel/vodamon/internal/core"
	"github.com/mwiesel/vodamon/internal/metrics"
	"github.com/mwiesel/vodamon/internal/store"
	"github.com/mwiesel/vodamon/internal/vodafone"
)

func newRunCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll all configured contracts on an interval.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(cfg.Accounts) == 0 {
				return fmt.Errorf("no accounts configured; run `vodamon login` first (config: %s)", path)
			}
			return runDaemon(cmd.Context(), cfg, path)
		},
	}
}

func runDaemon(ctx context.Context, cfg config.Config, configPath string) error {
	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Dur("interval", cfg.Interval()).
		Int("accounts", len(cfg.Accounts)).
		Msg("starting vodamon")

	pool := vodafone.NewPool(cfg.MinLoginDelay(), logger)
	defer pool.CloseAll()

	engine := core.NewEngine(pool, cfg.Interval(), cfg.CycleTimeout(), logger)

	if cfg.Store.Enabled {
		readings, err := store.Open(cfg.StorePath())
		if err != nil {
			return fmt.Errorf("opening readings store: %w", err)
		}
		defer readings.Close()
		engine.SetStore(readings)
		logger.Info().Str("path", cfg.StorePath()).Msg("readings store ready")
	}

	if cfg.Metrics.Enabled {
		listener, err := metrics.StartServer(cfg.Metrics.Listen, logger)
		if err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer listener.Close()
	}

	engine.SetContracts(contractRefs(ctx, pool, cfg.Accounts, logger))

	go func() {
		err := config.Watch(ctx, configPath, logger, func(next config.Config) {
			engine.SetContracts(contractRefs(ctx, pool, next.Accounts, logger))
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("config watch stopped")
		}
	}()

	engine.Run(ctx)
	logger.Info().Msg("shutting down")
	return nil
}

// contractRefs expands account entries into engine contract refs. Accounts
// without an explicit contract list have their mobile contracts discovered
// through a live session; discovery failures skip the account for this
// pass, the next config reload retries.
func contractRefs(ctx context.Context, pool *vodafone.Pool, accounts []config.AccountConfig, logger zerolog.Logger) []core.ContractRef {
	var refs []core.ContractRef
	for _, account := range accounts {
		ids := account.Contracts
		if len(ids) == 0 {
			ids = discoverContracts(ctx, pool, account, logger)
		}
		for _, id := range ids {
			refs = append(refs, core.ContractRef{
				Username:   account.Username,
				Password:   account.Password,
				ContractID: id,
			})
		}
	}
	return refs
}

func discoverContracts(ctx context.Context, pool *vodafone.Pool, account config.AccountConfig, logger zerolog.Logger) []string {
	client := pool.GetOrCreate(account.Username, account.Password)
	if !pool.EnsureAuthenticated(ctx, client, account.Username) {
		logger.Warn().Str("username", account.Username).Msg("contract discovery failed: login rejected")
		return nil
	}
	ids := client.Contracts(ctx)
	if len(ids) == 0 {
		logger.Warn().Str("username", account.Username).Msg("no mobile contracts found for account")
		return nil
	}
	logger.Info().Str("username", account.Username).Strs("contracts", ids).Msg("discovered contracts")
	return ids
}

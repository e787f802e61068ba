package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lockboxchain/config"
	"lockboxchain/core/ledger"
	"lockboxchain/native/lockbox"
	"lockboxchain/storage"
)

// openStore opens the configured ledger backend.
func openStore(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewBoltDB(cfg.ResolvePath("ledger.bolt"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.BackendLevelDB, "":
		db, err := storage.NewLevelDB(cfg.ResolvePath("ledger"))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// bootstrap initialises the lockbox module and applies the genesis
// allocations on an empty ledger. A ledger that is already initialised is
// left untouched.
func bootstrap(ctx context.Context, exec *ledger.Executor, engine *lockbox.Engine, cfg *config.Config, logger *slog.Logger) error {
	var initialized bool
	if err := exec.View(ctx, func(tx *ledger.Tx) error {
		var err error
		initialized, err = engine.Initialized(tx)
		return err
	}); err != nil {
		return fmt.Errorf("inspect ledger: %w", err)
	}
	if initialized {
		logger.Info("ledger already initialised")
		return nil
	}

	var balances []config.Balance
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		genesis, err := config.LoadGenesis(cfg.ResolvePath(path))
		if err != nil {
			return err
		}
		if genesis.ChainID != "" && genesis.ChainID != cfg.ChainID {
			return fmt.Errorf("genesis chain id %q does not match configured %q", genesis.ChainID, cfg.ChainID)
		}
		balances, err = genesis.Balances()
		if err != nil {
			return err
		}
	}

	receipt, err := exec.Execute(ctx, "genesis", nil, func(tx *ledger.Tx) error {
		if err := engine.Initialize(tx); err != nil {
			return err
		}
		for _, bal := range balances {
			guard := ledger.KeysetGuard(ledger.PredKeysAll, bal.Address)
			if bal.Coin != nil && bal.Coin.Sign() > 0 {
				if err := engine.Coin().Mint(tx, bal.Address, guard, bal.Coin); err != nil {
					return err
				}
			}
			if bal.Stake != nil && bal.Stake.Sign() > 0 {
				if err := engine.StakeLedger().Mint(tx, bal.Address, guard, bal.Stake); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied",
		slog.Uint64("height", receipt.Height),
		slog.Int("allocations", len(balances)))
	return nil
}

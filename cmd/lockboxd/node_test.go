package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lockboxchain/config"
	"lockboxchain/core/ledger"
	"lockboxchain/crypto"
	"lockboxchain/native/lockbox"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBootstrapAppliesGenesisOnce(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address().String()

	dir := t.TempDir()
	genesis := fmt.Sprintf("chain_id: lockbox-local\nallocations:\n  - address: %s\n    coin: \"5000\"\n    stake: \"2000\"\n", addr)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "genesis.yaml"), []byte(genesis), 0o600))

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Backend = config.BackendMemory
	cfg.GenesisFile = "genesis.yaml"

	db, err := openStore(cfg)
	require.NoError(t, err)
	defer db.Close()
	exec := ledger.NewExecutor(db)
	engine := lockbox.NewEngine(lockbox.DefaultParams())

	ctx := context.Background()
	require.NoError(t, bootstrap(ctx, exec, engine, cfg, quietLogger()))
	require.NoError(t, bootstrap(ctx, exec, engine, cfg, quietLogger()))

	head, err := exec.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), head.Height)

	var coin, stake *big.Int
	require.NoError(t, exec.View(ctx, func(tx *ledger.Tx) error {
		var err error
		if coin, err = engine.Coin().Balance(tx, addr); err != nil {
			return err
		}
		stake, err = engine.StakeLedger().Balance(tx, addr)
		return err
	}))
	require.Equal(t, int64(5000), coin.Int64())
	require.Equal(t, int64(2000), stake.Int64())
}

func TestBootstrapRejectsForeignGenesis(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "genesis.yaml"), []byte("chain_id: elsewhere\n"), 0o600))

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Backend = config.BackendMemory
	cfg.GenesisFile = "genesis.yaml"

	db, err := openStore(cfg)
	require.NoError(t, err)
	defer db.Close()
	err = bootstrap(context.Background(), ledger.NewExecutor(db), lockbox.NewEngine(lockbox.DefaultParams()), cfg, quietLogger())
	require.ErrorContains(t, err, "does not match")
}

func TestOpenStoreBackends(t *testing.T) {
	for _, backend := range []string{config.BackendLevelDB, config.BackendBolt, config.BackendMemory} {
		cfg := config.Default()
		cfg.DataDir = t.TempDir()
		cfg.Backend = backend
		db, err := openStore(cfg)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		db.Close()
	}
	cfg := config.Default()
	cfg.Backend = "rocks"
	_, err := openStore(cfg)
	require.Error(t, err)
}

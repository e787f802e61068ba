package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lockboxchain/crypto"
)

// Allocation mints opening balances into a keyset-guarded account.
type Allocation struct {
	Address string `yaml:"address"`
	Coin    string `yaml:"coin"`
	Stake   string `yaml:"stake"`
}

// Genesis is the YAML document applied when the ledger is empty.
type Genesis struct {
	ChainID     string       `yaml:"chain_id"`
	Allocations []Allocation `yaml:"allocations"`
}

// Balance is a parsed allocation.
type Balance struct {
	Address string
	Coin    *big.Int
	Stake   *big.Int
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	genesis := &Genesis{}
	if err := dec.Decode(genesis); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if _, err := genesis.Balances(); err != nil {
		return nil, err
	}
	return genesis, nil
}

// Balances parses every allocation. Addresses must be bech32 account
// addresses and may appear only once.
func (g *Genesis) Balances() ([]Balance, error) {
	if g == nil {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(g.Allocations))
	out := make([]Balance, 0, len(g.Allocations))
	for i, alloc := range g.Allocations {
		addr := strings.TrimSpace(alloc.Address)
		if !crypto.IsAddress(addr) {
			return nil, fmt.Errorf("genesis: allocation %d: invalid address %q", i, alloc.Address)
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("genesis: allocation %d: duplicate address %s", i, addr)
		}
		seen[addr] = struct{}{}
		coin, err := parseUintAmount(alloc.Coin)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation %d coin: %w", i, err)
		}
		stake, err := parseUintAmount(alloc.Stake)
		if err != nil {
			return nil, fmt.Errorf("genesis: allocation %d stake: %w", i, err)
		}
		out = append(out, Balance{Address: addr, Coin: coin, Stake: stake})
	}
	return out, nil
}

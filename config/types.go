package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"lockboxchain/native/lockbox"
)

// Protocol carries the lockbox constants applied at initialisation. They are
// persisted on first start and later edits have no effect on a running chain.
type Protocol struct {
	SharingFeeBps     uint64        `toml:"SharingFeeBps"`
	DepositMultiplier uint64        `toml:"DepositMultiplier"`
	MinimumStake      string        `toml:"MinimumStake"`
	PostResultWindow  time.Duration `toml:"PostResultWindow"`
	ChallengeWindow   time.Duration `toml:"ChallengeWindow"`
	LeaveWindow       time.Duration `toml:"LeaveWindow"`
	PendingVersionTTL time.Duration `toml:"PendingVersionTTL"`
}

// Auth gates the RPC endpoint behind HMAC-signed bearer tokens.
type Auth struct {
	Enabled    bool          `toml:"Enabled"`
	HMACSecret string        `toml:"HMACSecret"`
	Issuer     string        `toml:"Issuer"`
	Audience   string        `toml:"Audience"`
	ScopeClaim string        `toml:"ScopeClaim"`
	ClockSkew  time.Duration `toml:"ClockSkew"`
}

// Telemetry configures OTLP export of traces and metrics.
type Telemetry struct {
	ServiceName string  `toml:"ServiceName"`
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Params converts the configured protocol section into engine parameters.
func (p Protocol) Params() (lockbox.Params, error) {
	stake, err := parseUintAmount(p.MinimumStake)
	if err != nil {
		return lockbox.Params{}, fmt.Errorf("invalid Protocol.MinimumStake: %w", err)
	}
	return lockbox.Params{
		SharingFeeBps:     p.SharingFeeBps,
		DepositMultiplier: p.DepositMultiplier,
		MinimumStake:      stake,
		PostResultWindow:  p.PostResultWindow,
		ChallengeWindow:   p.ChallengeWindow,
		LeaveWindow:       p.LeaveWindow,
		PendingVersionTTL: p.PendingVersionTTL,
	}, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

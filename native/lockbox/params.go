package lockbox

import (
	"fmt"
	"math/big"
	"time"
)

// Params are the protocol constants. They are fixed at initialisation.
type Params struct {
	SharingFeeBps     uint64
	DepositMultiplier uint64
	MinimumStake      *big.Int
	PostResultWindow  time.Duration
	ChallengeWindow   time.Duration
	LeaveWindow       time.Duration
	PendingVersionTTL time.Duration
}

// DefaultParams returns the reference protocol constants.
func DefaultParams() Params {
	return Params{
		SharingFeeBps:     2500,
		DepositMultiplier: 3,
		MinimumStake:      big.NewInt(1000),
		PostResultWindow:  time.Hour,
		ChallengeWindow:   7 * 24 * time.Hour,
		LeaveWindow:       7 * 24 * time.Hour,
		PendingVersionTTL: 24 * time.Hour,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.SharingFeeBps == 0 || p.SharingFeeBps > 10_000 {
		return fmt.Errorf("lockbox: sharing fee bps must be in (0, 10000]")
	}
	if p.DepositMultiplier == 0 {
		return fmt.Errorf("lockbox: deposit multiplier must be positive")
	}
	if p.MinimumStake == nil || p.MinimumStake.Sign() <= 0 {
		return fmt.Errorf("lockbox: minimum stake must be positive")
	}
	for name, window := range map[string]time.Duration{
		"post result window":  p.PostResultWindow,
		"challenge window":    p.ChallengeWindow,
		"leave window":        p.LeaveWindow,
		"pending version ttl": p.PendingVersionTTL,
	} {
		if window < time.Second {
			return fmt.Errorf("lockbox: %s must be at least one second", name)
		}
	}
	if p.PostResultWindow >= p.ChallengeWindow {
		return fmt.Errorf("lockbox: post result window must be shorter than challenge window")
	}
	return nil
}

// storedParams is the persisted form; durations are whole seconds.
type storedParams struct {
	ProtocolVersion   uint64
	SharingFeeBps     uint64
	DepositMultiplier uint64
	MinimumStake      *big.Int
	PostResultWindow  uint64
	ChallengeWindow   uint64
	LeaveWindow       uint64
	PendingVersionTTL uint64
}

func (p Params) stored() storedParams {
	return storedParams{
		ProtocolVersion:   ProtocolVersion,
		SharingFeeBps:     p.SharingFeeBps,
		DepositMultiplier: p.DepositMultiplier,
		MinimumStake:      cloneBigInt(p.MinimumStake),
		PostResultWindow:  uint64(p.PostResultWindow / time.Second),
		ChallengeWindow:   uint64(p.ChallengeWindow / time.Second),
		LeaveWindow:       uint64(p.LeaveWindow / time.Second),
		PendingVersionTTL: uint64(p.PendingVersionTTL / time.Second),
	}
}

func (s storedParams) params() Params {
	return Params{
		SharingFeeBps:     s.SharingFeeBps,
		DepositMultiplier: s.DepositMultiplier,
		MinimumStake:      cloneBigInt(s.MinimumStake),
		PostResultWindow:  time.Duration(s.PostResultWindow) * time.Second,
		ChallengeWindow:   time.Duration(s.ChallengeWindow) * time.Second,
		LeaveWindow:       time.Duration(s.LeaveWindow) * time.Second,
		PendingVersionTTL: time.Duration(s.PendingVersionTTL) * time.Second,
	}
}

// ComputeFees splits price across a group of groupSize nodes. The writer keeps
// the remainder, so SharingNodeFee*GroupSize + WriterFee == Price.
func (p Params) ComputeFees(price *big.Int, groupSize int) Fees {
	price = cloneBigInt(price)
	fee := big.NewInt(0)
	if groupSize > 0 {
		fee.Mul(price, new(big.Int).SetUint64(p.SharingFeeBps))
		fee.Quo(fee, new(big.Int).SetUint64(10_000*uint64(groupSize)))
	}
	total := new(big.Int).Mul(fee, big.NewInt(int64(groupSize)))
	return Fees{
		Price:          price,
		GroupSize:      groupSize,
		SharingNodeFee: fee,
		WriterFee:      new(big.Int).Sub(price, total),
		DepositAmount:  new(big.Int).Mul(price, new(big.Int).SetUint64(p.DepositMultiplier)),
	}
}

// TotalNodeFees is what an owner escrows: every node's fee and nothing for
// the writer.
func (f Fees) TotalNodeFees() *big.Int {
	return new(big.Int).Mul(f.SharingNodeFee, big.NewInt(int64(f.GroupSize)))
}

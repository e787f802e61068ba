package lockbox

import (
	"math/big"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/native/bank"
)

// Engine implements the lockbox protocol on top of the ledger. Every method
// runs inside the caller's ledger transaction; any returned error aborts it.
type Engine struct {
	coin   *bank.Ledger
	stake  *bank.Ledger
	params Params
}

// NewEngine returns an engine using the coin and stake ledgers. params only
// apply when Initialize records them; afterwards the recorded values win.
func NewEngine(params Params) *Engine {
	return &Engine{
		coin:   bank.Coin(),
		stake:  bank.Stake(),
		params: params,
	}
}

// Coin exposes the payment ledger.
func (e *Engine) Coin() *bank.Ledger { return e.coin }

// StakeLedger exposes the staking-token ledger.
func (e *Engine) StakeLedger() *bank.Ledger { return e.stake }

// Initialize records the protocol parameters. It succeeds exactly once.
func (e *Engine) Initialize(tx *ledger.Tx) error {
	const op = "initialize"
	if err := e.params.Validate(); err != nil {
		return lerrors.Invariant(op, "%v", err)
	}
	inserted, err := tx.State().KVInsert(moduleKey(), e.params.stored())
	if err != nil {
		return err
	}
	if !inserted {
		return lerrors.AlreadyDone(op, "lockbox module already initialised")
	}
	return nil
}

// Initialized reports whether Initialize has committed.
func (e *Engine) Initialized(tx *ledger.Tx) (bool, error) {
	return tx.State().KVHas(moduleKey())
}

// Params returns the recorded protocol parameters.
func (e *Engine) Params(tx *ledger.Tx) (Params, error) {
	return e.loadParams(tx, "params")
}

func (e *Engine) loadParams(tx *ledger.Tx, op string) (Params, error) {
	var stored storedParams
	ok, err := tx.State().KVGet(moduleKey(), &stored)
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return Params{}, lerrors.NotFound(op, "lockbox module not initialised")
	}
	return stored.params(), nil
}

// checkID rejects blank identifiers and ones not in NFKC form, so two ids
// that render alike cannot name different rows.
func checkID(op, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return lerrors.Invariant(op, "%s required", field)
	}
	if id != strings.TrimSpace(id) || !norm.NFKC.IsNormalString(id) {
		return lerrors.Invariant(op, "%s %q is not in canonical form", field, id)
	}
	return nil
}

// requireSigner aborts unless account signed the transaction.
func requireSigner(tx *ledger.Tx, op, account string) error {
	if strings.TrimSpace(account) == "" {
		return lerrors.Invariant(op, "account required")
	}
	return tx.EnforceAuthorized(op, ledger.KeysetGuard(ledger.PredKeysAll, account))
}

// payout credits amount to a user account, creating it with a single-key guard
// if it does not exist yet.
func (e *Engine) payout(tx *ledger.Tx, l *bank.Ledger, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	exists, err := l.Exists(tx, to)
	if err != nil {
		return err
	}
	if exists {
		return l.Transfer(tx, from, to, amount)
	}
	return l.TransferCreate(tx, from, to, ledger.KeysetGuard(ledger.PredKeysAll, to), amount)
}

// fund moves amount from a user account into a module account, opening the
// module account under the grant its guard names.
func (e *Engine) fund(tx *ledger.Tx, l *bank.Ledger, from, to string, guard ledger.Guard, amount *big.Int) error {
	return tx.WithCapability(guard.Capability, guard.Scope, func() error {
		return l.TransferCreate(tx, from, to, guard, amount)
	})
}

// enforceStaked aborts unless node holds at least the minimum stake.
func (e *Engine) enforceStaked(tx *ledger.Tx, op string, params Params, node string) error {
	s, err := loadStake(tx, op, node)
	if err != nil {
		return err
	}
	balance, err := e.stake.Balance(tx, s.Account)
	if err != nil {
		return err
	}
	if balance.Cmp(params.MinimumStake) < 0 {
		return lerrors.Invariant(op, "%s stake %s below minimum %s", node, balance, params.MinimumStake)
	}
	return nil
}

func now(tx *ledger.Tx) uint64 {
	if tx.Now() < 0 {
		return 0
	}
	return uint64(tx.Now())
}

func windowSeconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

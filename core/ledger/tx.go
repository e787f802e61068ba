package ledger

import (
	"sort"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/state"
	"lockboxchain/core/types"
)

type capabilityKey struct {
	name  string
	scope string
}

// Tx is the context of one ledger transaction. It exists only for the
// duration of Executor.Execute; nothing it holds survives the transaction
// apart from the state writes it commits.
type Tx struct {
	state   *state.Manager
	signers map[string]struct{}
	now     int64
	height  uint64
	grants  map[capabilityKey]int
	events  []*types.Event
}

func newTx(mgr *state.Manager, signers []string, now int64, height uint64) *Tx {
	set := make(map[string]struct{}, len(signers))
	for _, signer := range signers {
		if signer != "" {
			set[signer] = struct{}{}
		}
	}
	return &Tx{
		state:   mgr,
		signers: set,
		now:     now,
		height:  height,
		grants:  make(map[capabilityKey]int),
	}
}

// State exposes the transactional state manager.
func (tx *Tx) State() *state.Manager { return tx.state }

// Now returns the block timestamp (unix seconds) assigned to the transaction.
func (tx *Tx) Now() int64 { return tx.now }

// Height returns the ledger height the transaction will commit at.
func (tx *Tx) Height() uint64 { return tx.height }

// Signers returns the authenticated signers in sorted order.
func (tx *Tx) Signers() []string {
	out := make([]string, 0, len(tx.signers))
	for signer := range tx.signers {
		out = append(out, signer)
	}
	sort.Strings(out)
	return out
}

// Emit buffers an event. Buffered events reach the executor's emitter only if
// the transaction commits.
func (tx *Tx) Emit(evt *types.Event) {
	if evt == nil {
		return
	}
	tx.events = append(tx.events, evt)
}

// IsAuthorized reports whether the guard is satisfied in this transaction. It
// never aborts.
func (tx *Tx) IsAuthorized(g Guard) bool {
	switch g.Kind {
	case GuardKeyset:
		return g.satisfiedBy(tx.signers)
	case GuardCapability:
		return tx.grants[capabilityKey{name: g.Capability, scope: g.Scope}] > 0
	default:
		return false
	}
}

// EnforceAuthorized aborts with an authorization failure when the guard is
// not satisfied.
func (tx *Tx) EnforceAuthorized(op string, g Guard) error {
	if !tx.IsAuthorized(g) {
		return lerrors.Authorization(op, "%s not satisfied", g)
	}
	return nil
}

// WithCapability grants the named capability for the duration of fn. Only the
// code that calls WithCapability can debit capability-guarded accounts, and
// the grant is revoked before WithCapability returns.
func (tx *Tx) WithCapability(name, scope string, fn func() error) error {
	key := capabilityKey{name: name, scope: scope}
	tx.grants[key]++
	defer func() {
		tx.grants[key]--
		if tx.grants[key] <= 0 {
			delete(tx.grants, key)
		}
	}()
	return fn()
}

type storedNonce struct {
	Nonce uint64
}

// ConsumeNonce records nonce for signer, rejecting replays and stale values.
func (tx *Tx) ConsumeNonce(signer string, nonce uint64) error {
	const op = "nonce"
	if signer == "" {
		return lerrors.Invariant(op, "signer required")
	}
	if nonce == 0 {
		return lerrors.Invariant(op, "nonce must be positive")
	}
	key := state.Key(tableNonce, signer)
	var stored storedNonce
	if _, err := tx.state.KVGet(key, &stored); err != nil {
		return err
	}
	if nonce <= stored.Nonce {
		return lerrors.AlreadyDone(op, "stale nonce %d (last %d)", nonce, stored.Nonce)
	}
	return tx.state.KVPut(key, storedNonce{Nonce: nonce})
}

// LastNonce returns the highest nonce consumed for signer.
func (tx *Tx) LastNonce(signer string) (uint64, error) {
	var stored storedNonce
	if _, err := tx.state.KVGet(state.Key(tableNonce, signer), &stored); err != nil {
		return 0, err
	}
	return stored.Nonce, nil
}

package lockbox

import (
	"math/big"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/native/bank"
)

// CreateStake opens owner's stake account funded with amount from owner's
// staking-token balance.
func (e *Engine) CreateStake(tx *ledger.Tx, owner string, amount *big.Int) (*Stake, error) {
	const op = "create-stake"
	if _, err := e.loadParams(tx, op); err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, owner); err != nil {
		return nil, err
	}
	account, guard := bank.StakeAccount(owner)
	s := &Stake{Owner: owner, Account: account}
	inserted, err := tx.State().KVInsert(stakeKey(owner), s)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, lerrors.AlreadyDone(op, "stake for %s already exists", owner)
	}
	if err := e.fund(tx, e.stake, owner, account, guard, amount); err != nil {
		return nil, err
	}
	tx.Emit(NewStakeEvent(EventTypeStakeCreated, owner, amount, amount))
	return s, nil
}

// IncreaseStake tops up owner's stake from any sender's staking-token account.
// Only the sender's own guard applies.
func (e *Engine) IncreaseStake(tx *ledger.Tx, owner, from string, amount *big.Int) error {
	const op = "increase-stake"
	if _, err := e.loadParams(tx, op); err != nil {
		return err
	}
	s, err := loadStake(tx, op, owner)
	if err != nil {
		return err
	}
	if err := e.stake.Transfer(tx, from, s.Account, amount); err != nil {
		return err
	}
	balance, err := e.stake.Balance(tx, s.Account)
	if err != nil {
		return err
	}
	tx.Emit(NewStakeEvent(EventTypeStakeIncreased, owner, amount, balance))
	return nil
}

// DecreaseStake returns amount to owner. The remaining stake must stay at the
// minimum unless owner is in no current sharing group.
func (e *Engine) DecreaseStake(tx *ledger.Tx, owner string, amount *big.Int) error {
	const op = "decrease-stake"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return err
	}
	if err := requireSigner(tx, op, owner); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return lerrors.Invariant(op, "amount must be positive")
	}
	s, err := loadStake(tx, op, owner)
	if err != nil {
		return err
	}
	balance, err := e.stake.Balance(tx, s.Account)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return lerrors.Invariant(op, "stake %s smaller than %s", balance, amount)
	}
	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Cmp(params.MinimumStake) < 0 {
		m, err := loadMembership(tx, owner)
		if err != nil {
			return err
		}
		if m.LockboxCount > 0 {
			return lerrors.Invariant(op, "%s serves %d lockboxes and must keep %s staked", owner, m.LockboxCount, params.MinimumStake)
		}
	}
	err = tx.WithCapability(bank.CapabilityStake, owner, func() error {
		return e.payout(tx, e.stake, s.Account, owner, amount)
	})
	if err != nil {
		return err
	}
	tx.Emit(NewStakeEvent(EventTypeStakeDecreased, owner, amount, remaining))
	return nil
}

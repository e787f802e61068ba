package lockbox

import (
	"math/big"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/native/bank"
)

// CreateLockboxDeposit funds node's deposit for lockboxID with exactly the
// pending version's deposit amount. An existing deposit can only be refilled
// once it has been emptied.
func (e *Engine) CreateLockboxDeposit(tx *ledger.Tx, lockboxID, node string) (*Deposit, error) {
	const op = "create-lockbox-deposit"
	if _, err := e.loadParams(tx, op); err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, node); err != nil {
		return nil, err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return nil, err
	}
	if !lb.HasPending() {
		return nil, lerrors.Invariant(op, "lockbox %s has no pending version", lockboxID)
	}
	pending, err := loadVersion(tx, op, lb.PendingVersionID)
	if err != nil {
		return nil, err
	}
	if !pending.Contains(node) {
		return nil, lerrors.Invariant(op, "%s is not in the pending sharing group of %s", node, lockboxID)
	}
	account, guard := bank.DepositAccount(lockboxID, node)
	dep, ok, err := loadDeposit(tx, lockboxID, node)
	if err != nil {
		return nil, err
	}
	if ok {
		balance, err := e.coin.Balance(tx, dep.Account)
		if err != nil {
			return nil, err
		}
		if balance.Sign() != 0 {
			return nil, lerrors.AlreadyDone(op, "deposit for %s in %s already funded", node, lockboxID)
		}
	} else {
		dep = &Deposit{LockboxID: lockboxID, NodeID: node, Account: account}
		if err := putRow(tx, depositKey(lockboxID, node), dep); err != nil {
			return nil, err
		}
	}
	if err := e.fund(tx, e.coin, node, dep.Account, guard, pending.DepositAmount); err != nil {
		return nil, err
	}
	tx.Emit(NewDepositEvent(EventTypeDepositCreated, lockboxID, node, pending.DepositAmount))
	return dep, nil
}

// WithdrawLockboxDeposit returns node's deposit once the challenge window of
// the last request has passed and node is in neither the current nor the
// pending sharing group.
func (e *Engine) WithdrawLockboxDeposit(tx *ledger.Tx, lockboxID, node string) (*big.Int, error) {
	const op = "withdraw-lockbox-deposit"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, node); err != nil {
		return nil, err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return nil, err
	}
	dep, ok, err := loadDeposit(tx, lockboxID, node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "no deposit for %s in lockbox %s", node, lockboxID)
	}
	act, err := loadActivity(tx, lockboxID, node)
	if err != nil {
		return nil, err
	}
	unlock := addSaturating(act.LastRequestOpenedAt, windowSeconds(params.ChallengeWindow))
	if now(tx) <= unlock {
		return nil, lerrors.Deadline(op, "deposit is exposed to challenges until %d", unlock)
	}
	current, err := currentGroup(tx, op, lb)
	if err != nil {
		return nil, err
	}
	if containsNode(current, node) {
		return nil, lerrors.Invariant(op, "%s is in the current sharing group of %s", node, lockboxID)
	}
	pending, err := pendingGroup(tx, op, lb)
	if err != nil {
		return nil, err
	}
	if containsNode(pending, node) {
		return nil, lerrors.Invariant(op, "%s is in the pending sharing group of %s", node, lockboxID)
	}
	balance, err := e.coin.Balance(tx, dep.Account)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, lerrors.Invariant(op, "deposit for %s in %s is empty", node, lockboxID)
	}
	err = tx.WithCapability(bank.CapabilityDeposit, dep.Account, func() error {
		return e.payout(tx, e.coin, dep.Account, node, balance)
	})
	if err != nil {
		return nil, err
	}
	tx.Emit(NewDepositEvent(EventTypeDepositWithdrawn, lockboxID, node, balance))
	return balance, nil
}

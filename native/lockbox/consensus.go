package lockbox

import (
	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

// AcknowledgeShare records that node holds its share of the pending version
// and is fully collateralised for it. The acknowledgement that completes the
// group promotes the version.
func (e *Engine) AcknowledgeShare(tx *ledger.Tx, lockboxID, versionID, node string) (*AckOutcome, error) {
	const op = "acknowledge-share"
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
	if !lb.HasPending() || lb.PendingVersionID != versionID {
		return nil, lerrors.Invariant(op, "version %s is not pending for lockbox %s", versionID, lockboxID)
	}
	v, err := loadVersion(tx, op, versionID)
	if err != nil {
		return nil, err
	}
	if !v.Contains(node) {
		return nil, lerrors.Invariant(op, "%s is not in the sharing group of version %s", node, versionID)
	}
	dep, ok, err := loadDeposit(tx, lockboxID, node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "no deposit for %s in lockbox %s", node, lockboxID)
	}
	balance, err := e.coin.Balance(tx, dep.Account)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(v.DepositAmount) != 0 {
		return nil, lerrors.Invariant(op, "deposit %s does not equal required %s", balance, v.DepositAmount)
	}
	share, err := loadShareHash(tx, op, versionID, node)
	if err != nil {
		return nil, err
	}
	if share.Acknowledged {
		return nil, lerrors.AlreadyDone(op, "%s already acknowledged version %s", node, versionID)
	}
	share.Acknowledged = true
	if err := putRow(tx, shareHashKey(versionID, node), share); err != nil {
		return nil, err
	}

	outcome := &AckOutcome{}
	for _, member := range v.SharingGroup {
		sh, err := loadShareHash(tx, op, versionID, member)
		if err != nil {
			return nil, err
		}
		if !sh.Acknowledged {
			outcome.Waiting = append(outcome.Waiting, member)
		}
	}
	if len(outcome.Waiting) == 0 {
		if err := e.promote(tx, op, params, lb); err != nil {
			return nil, err
		}
		outcome.Promoted = true
	}
	tx.Emit(NewShareAcknowledgedEvent(lockboxID, versionID, node, outcome.Promoted))
	return outcome, nil
}

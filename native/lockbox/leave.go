package lockbox

import (
	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

// InitiateLeaveLockbox starts node's leave clock. The writer resolves it by
// promoting a version without node; otherwise ForceLeaveLockbox becomes
// available once the leave window has passed.
func (e *Engine) InitiateLeaveLockbox(tx *ledger.Tx, lockboxID, node string) error {
	const op = "initiate-leave-lockbox"
	if _, err := e.loadParams(tx, op); err != nil {
		return err
	}
	if err := requireSigner(tx, op, node); err != nil {
		return err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return err
	}
	current, err := currentGroup(tx, op, lb)
	if err != nil {
		return err
	}
	if !containsNode(current, node) {
		return lerrors.Invariant(op, "%s is not in the current sharing group of %s", node, lockboxID)
	}
	act, err := loadActivity(tx, lockboxID, node)
	if err != nil {
		return err
	}
	if act.LeavePending() {
		return lerrors.AlreadyDone(op, "%s already initiated leaving %s", node, lockboxID)
	}
	act.LeaveRequestInitiatedAt = now(tx)
	if err := storeActivity(tx, lockboxID, node, act); err != nil {
		return err
	}
	tx.Emit(NewLeaveEvent(EventTypeLeaveInitiated, lockboxID, node, nil))
	return nil
}

// ForceLeaveLockbox empties the current version's sharing group after an
// unanswered leave request. Every member leaves, not only node, and the
// lockbox stops accepting requests until a new version is promoted.
func (e *Engine) ForceLeaveLockbox(tx *ledger.Tx, lockboxID, node string) error {
	const op = "force-leave-lockbox"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return err
	}
	if err := requireSigner(tx, op, node); err != nil {
		return err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return err
	}
	if !lb.HasCurrent() {
		return lerrors.Invariant(op, "lockbox %s has no active version", lockboxID)
	}
	v, err := loadVersion(tx, op, lb.CurrentVersionID)
	if err != nil {
		return err
	}
	if !v.Contains(node) {
		return lerrors.Invariant(op, "%s is not in the current sharing group of %s", node, lockboxID)
	}
	act, err := loadActivity(tx, lockboxID, node)
	if err != nil {
		return err
	}
	if !act.LeavePending() {
		return lerrors.Invariant(op, "%s has not initiated leaving %s", node, lockboxID)
	}
	deadline := addSaturating(act.LeaveRequestInitiatedAt, windowSeconds(params.LeaveWindow))
	if now(tx) <= deadline {
		return lerrors.Deadline(op, "writer may resolve the leave request until %d", deadline)
	}

	removed := v.SharingGroup
	for _, member := range removed {
		if err := adjustMembership(tx, op, member, -1); err != nil {
			return err
		}
		memberAct, err := loadActivity(tx, lockboxID, member)
		if err != nil {
			return err
		}
		memberAct.LeaveRequestInitiatedAt = noLeavePending
		if err := storeActivity(tx, lockboxID, member, memberAct); err != nil {
			return err
		}
	}
	v.SharingGroup = nil
	if err := putRow(tx, versionKey(v.ID), v); err != nil {
		return err
	}
	tx.Emit(NewLeaveEvent(EventTypeLeaveForced, lockboxID, node, removed))
	return nil
}

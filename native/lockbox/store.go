package lockbox

import (
	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

func getRow(tx *ledger.Tx, key []byte, out interface{}) (bool, error) {
	return tx.State().KVGet(key, out)
}

func putRow(tx *ledger.Tx, key []byte, value interface{}) error {
	return tx.State().KVPut(key, value)
}

func loadLockbox(tx *ledger.Tx, op, id string) (*Lockbox, error) {
	lb := new(Lockbox)
	ok, err := getRow(tx, lockboxKey(id), lb)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "lockbox %s not found", id)
	}
	return lb, nil
}

func storeLockbox(tx *ledger.Tx, lb *Lockbox) error {
	return putRow(tx, lockboxKey(lb.ID), lb)
}

func loadVersion(tx *ledger.Tx, op, id string) (*Version, error) {
	v := new(Version)
	ok, err := getRow(tx, versionKey(id), v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "version %s not found", id)
	}
	v.Price = cloneBigInt(v.Price)
	v.DepositAmount = cloneBigInt(v.DepositAmount)
	return v, nil
}

// currentGroup returns the current version's sharing group, or nil when the
// lockbox has no active version.
func currentGroup(tx *ledger.Tx, op string, lb *Lockbox) ([]string, error) {
	if !lb.HasCurrent() {
		return nil, nil
	}
	v, err := loadVersion(tx, op, lb.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	return v.SharingGroup, nil
}

func pendingGroup(tx *ledger.Tx, op string, lb *Lockbox) ([]string, error) {
	if !lb.HasPending() {
		return nil, nil
	}
	v, err := loadVersion(tx, op, lb.PendingVersionID)
	if err != nil {
		return nil, err
	}
	return v.SharingGroup, nil
}

func loadShareHash(tx *ledger.Tx, op, versionID, node string) (*ShareHash, error) {
	sh := new(ShareHash)
	ok, err := getRow(tx, shareHashKey(versionID, node), sh)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "share hash for %s in version %s not found", node, versionID)
	}
	return sh, nil
}

func loadRequest(tx *ledger.Tx, op, id string) (*Request, error) {
	req := new(Request)
	ok, err := getRow(tx, requestKey(id), req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "request %s not found", id)
	}
	req.Price = cloneBigInt(req.Price)
	req.Escrowed = cloneBigInt(req.Escrowed)
	return req, nil
}

func loadActivity(tx *ledger.Tx, lockboxID, node string) (*Activity, error) {
	act := new(Activity)
	ok, err := getRow(tx, activityKey(lockboxID, node), act)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Activity{LeaveRequestInitiatedAt: noLeavePending}, nil
	}
	return act, nil
}

func storeActivity(tx *ledger.Tx, lockboxID, node string, act *Activity) error {
	return putRow(tx, activityKey(lockboxID, node), act)
}

func loadMembership(tx *ledger.Tx, node string) (*Membership, error) {
	m := new(Membership)
	if _, err := getRow(tx, membershipKey(node), m); err != nil {
		return nil, err
	}
	return m, nil
}

func adjustMembership(tx *ledger.Tx, op, node string, delta int) error {
	m, err := loadMembership(tx, node)
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		m.LockboxCount += uint64(delta)
	case delta < 0:
		dec := uint64(-delta)
		if m.LockboxCount < dec {
			return lerrors.Invariant(op, "membership count for %s would go negative", node)
		}
		m.LockboxCount -= dec
	}
	return putRow(tx, membershipKey(node), m)
}

func loadStake(tx *ledger.Tx, op, owner string) (*Stake, error) {
	s := new(Stake)
	ok, err := getRow(tx, stakeKey(owner), s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lerrors.NotFound(op, "no stake for %s", owner)
	}
	return s, nil
}

func loadDeposit(tx *ledger.Tx, lockboxID, node string) (*Deposit, bool, error) {
	d := new(Deposit)
	ok, err := getRow(tx, depositKey(lockboxID, node), d)
	if err != nil || !ok {
		return nil, ok, err
	}
	return d, true, nil
}

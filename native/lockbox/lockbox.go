package lockbox

import (
	"math/big"
	"strings"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
)

// VersionSpec is the writer-supplied content of a new version.
type VersionSpec struct {
	VersionID      string
	Price          *big.Int
	ContentPointer string
	SharingGroup   []string
	ShareHashes    []string
}

// CreateLockbox inserts a lockbox with no current version and installs spec as
// its pending version.
func (e *Engine) CreateLockbox(tx *ledger.Tx, lockboxID, writer string, owner ledger.Guard, spec VersionSpec) (*Lockbox, error) {
	const op = "create-lockbox"
	if _, err := e.loadParams(tx, op); err != nil {
		return nil, err
	}
	if err := checkID(op, "lockbox id", lockboxID); err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, writer); err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, lerrors.Invariant(op, "owner guard: %v", err)
	}
	lb := &Lockbox{
		ID:        lockboxID,
		Writer:    writer,
		Owner:     owner,
		CreatedAt: now(tx),
	}
	inserted, err := tx.State().KVInsert(lockboxKey(lockboxID), lb)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, lerrors.AlreadyDone(op, "lockbox %s already exists", lockboxID)
	}
	tx.Emit(NewLockboxCreatedEvent(lb))
	if _, err := e.UpdateLockbox(tx, lockboxID, spec); err != nil {
		return nil, err
	}
	return loadLockbox(tx, op, lockboxID)
}

// UpdateLockbox writes a new version and makes it pending, replacing any
// version still waiting for acknowledgement.
func (e *Engine) UpdateLockbox(tx *ledger.Tx, lockboxID string, spec VersionSpec) (*Version, error) {
	const op = "update-lockbox"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, lb.Writer); err != nil {
		return nil, err
	}
	if err := checkID(op, "version id", spec.VersionID); err != nil {
		return nil, err
	}
	if spec.Price == nil || spec.Price.Sign() <= 0 {
		return nil, lerrors.Invariant(op, "price must be positive")
	}
	group := spec.SharingGroup
	if len(group) == 0 {
		return nil, lerrors.Invariant(op, "sharing group must not be empty")
	}
	seen := make(map[string]struct{}, len(group))
	for _, node := range group {
		if strings.TrimSpace(node) == "" {
			return nil, lerrors.Invariant(op, "sharing group member must not be empty")
		}
		if _, dup := seen[node]; dup {
			return nil, lerrors.Invariant(op, "duplicate sharing group member %s", node)
		}
		seen[node] = struct{}{}
	}
	if len(spec.ShareHashes) != len(group) {
		return nil, lerrors.Invariant(op, "expected %d share hashes, got %d", len(group), len(spec.ShareHashes))
	}
	for i, hash := range spec.ShareHashes {
		if strings.TrimSpace(hash) == "" {
			return nil, lerrors.Invariant(op, "share hash for %s must not be empty", group[i])
		}
	}
	fees := params.ComputeFees(spec.Price, len(group))
	if fees.SharingNodeFee.Sign() <= 0 {
		return nil, lerrors.Invariant(op, "price %s too low for a group of %d", spec.Price, len(group))
	}
	for _, node := range group {
		if err := e.enforceStaked(tx, op, params, node); err != nil {
			return nil, err
		}
	}

	v := &Version{
		ID:              spec.VersionID,
		LockboxID:       lockboxID,
		ProtocolVersion: ProtocolVersion,
		Price:           cloneBigInt(spec.Price),
		DepositAmount:   fees.DepositAmount,
		ContentPointer:  spec.ContentPointer,
		SharingGroup:    append([]string(nil), group...),
		CreatedAt:       now(tx),
	}
	inserted, err := tx.State().KVInsert(versionKey(v.ID), v)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, lerrors.AlreadyDone(op, "version %s already exists", v.ID)
	}
	for i, node := range group {
		if err := putRow(tx, shareHashKey(v.ID, node), &ShareHash{Hash: spec.ShareHashes[i]}); err != nil {
			return nil, err
		}
	}
	lb.PendingVersionID = v.ID
	lb.PendingAddedAt = now(tx)
	if err := storeLockbox(tx, lb); err != nil {
		return nil, err
	}
	tx.Emit(NewVersionPendingEvent(v))
	return v, nil
}

// promote makes the pending version current. The caller has already checked
// that every pending member acknowledged.
func (e *Engine) promote(tx *ledger.Tx, op string, params Params, lb *Lockbox) error {
	pending, err := loadVersion(tx, op, lb.PendingVersionID)
	if err != nil {
		return err
	}
	oldGroup, err := currentGroup(tx, op, lb)
	if err != nil {
		return err
	}
	for _, node := range pending.SharingGroup {
		if err := e.enforceStaked(tx, op, params, node); err != nil {
			return err
		}
	}
	for _, node := range pending.SharingGroup {
		if containsNode(oldGroup, node) {
			continue
		}
		if err := adjustMembership(tx, op, node, 1); err != nil {
			return err
		}
	}
	for _, node := range oldGroup {
		if pending.Contains(node) {
			continue
		}
		if err := adjustMembership(tx, op, node, -1); err != nil {
			return err
		}
		act, err := loadActivity(tx, lb.ID, node)
		if err != nil {
			return err
		}
		act.LeaveRequestInitiatedAt = noLeavePending
		if err := storeActivity(tx, lb.ID, node, act); err != nil {
			return err
		}
	}
	previous := lb.CurrentVersionID
	lb.CurrentVersionID = pending.ID
	lb.PendingVersionID = ""
	lb.PendingAddedAt = 0
	if err := storeLockbox(tx, lb); err != nil {
		return err
	}
	tx.Emit(NewVersionPromotedEvent(lb.ID, previous, pending))
	return nil
}

// ClearExpiredPendingVersion drops a pending version nobody finished
// acknowledging. Anyone may call it once the pending TTL has passed.
func (e *Engine) ClearExpiredPendingVersion(tx *ledger.Tx, lockboxID string) error {
	const op = "clear-expired-pending-version"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return err
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return err
	}
	if !lb.HasPending() {
		return lerrors.Invariant(op, "lockbox %s has no pending version", lockboxID)
	}
	expiry := addSaturating(lb.PendingAddedAt, windowSeconds(params.PendingVersionTTL))
	if now(tx) <= expiry {
		return lerrors.Deadline(op, "pending version %s does not expire until %d", lb.PendingVersionID, expiry)
	}
	cleared := lb.PendingVersionID
	lb.PendingVersionID = ""
	lb.PendingAddedAt = 0
	if err := storeLockbox(tx, lb); err != nil {
		return err
	}
	tx.Emit(NewPendingClearedEvent(lockboxID, cleared))
	return nil
}

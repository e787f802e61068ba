package lockbox

import (
	"math/big"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/ledger"
	"lockboxchain/crypto"
	"lockboxchain/native/bank"
)

// OpenRequest escrows payment for a read of the lockbox's current version and
// snapshots that version. An owner escrows only the sharing-node fees.
func (e *Engine) OpenRequest(tx *ledger.Tx, lockboxID, requestID, reader string, maxPrice *big.Int, publicKey []byte) (*Request, error) {
	const op = "open-request"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return nil, err
	}
	if err := requireSigner(tx, op, reader); err != nil {
		return nil, err
	}
	if err := checkID(op, "request id", requestID); err != nil {
		return nil, err
	}
	if len(publicKey) != crypto.ProbeKeySize {
		return nil, lerrors.Invariant(op, "request public key must be %d bytes", crypto.ProbeKeySize)
	}
	if maxPrice == nil || maxPrice.Sign() <= 0 {
		return nil, lerrors.Invariant(op, "max price must be positive")
	}
	exists, err := tx.State().KVHas(requestKey(requestID))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, lerrors.AlreadyDone(op, "request %s already exists", requestID)
	}
	lb, err := loadLockbox(tx, op, lockboxID)
	if err != nil {
		return nil, err
	}
	isOwner := tx.IsAuthorized(lb.Owner)
	if !isOwner {
		authorized, err := readerAuthorized(tx, lockboxID, reader)
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, lerrors.Authorization(op, "%s may not read lockbox %s", reader, lockboxID)
		}
	}
	if !lb.HasCurrent() {
		return nil, lerrors.Invariant(op, "lockbox %s has no active version", lockboxID)
	}
	v, err := loadVersion(tx, op, lb.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	if len(v.SharingGroup) == 0 {
		return nil, lerrors.Invariant(op, "lockbox %s is deactivated", lockboxID)
	}
	if v.Price.Cmp(maxPrice) > 0 {
		return nil, lerrors.Invariant(op, "price %s exceeds max price %s", v.Price, maxPrice)
	}

	fees := params.ComputeFees(v.Price, len(v.SharingGroup))
	escrowed := cloneBigInt(v.Price)
	if isOwner {
		escrowed = fees.TotalNodeFees()
	}
	escrowID, escrowGuard := bank.EscrowAccount(requestID)
	if err := e.fund(tx, e.coin, reader, escrowID, escrowGuard, escrowed); err != nil {
		return nil, err
	}

	openedAt := now(tx)
	req := &Request{
		ID:              requestID,
		ProtocolVersion: ProtocolVersion,
		LockboxID:       lockboxID,
		VersionID:       v.ID,
		Reader:          reader,
		Writer:          lb.Writer,
		PublicKey:       append([]byte(nil), publicKey...),
		Price:           cloneBigInt(v.Price),
		Escrowed:        escrowed,
		ReaderIsOwner:   isOwner,
		ContentPointer:  v.ContentPointer,
		SharingGroup:    append([]string(nil), v.SharingGroup...),
		OpenedAt:        openedAt,
	}
	if err := putRow(tx, requestKey(requestID), req); err != nil {
		return nil, err
	}
	for _, node := range req.SharingGroup {
		act, err := loadActivity(tx, lockboxID, node)
		if err != nil {
			return nil, err
		}
		act.LastRequestOpenedAt = openedAt
		if err := storeActivity(tx, lockboxID, node, act); err != nil {
			return nil, err
		}
	}
	tx.Emit(NewRequestOpenedEvent(req))
	return req, nil
}

// PostResult records node's sealed share and pays its fee out of escrow. The
// last result releases the rest of the escrow to the writer.
func (e *Engine) PostResult(tx *ledger.Tx, requestID, node string, ciphertext, nonce, mac []byte) error {
	const op = "post-result"
	params, err := e.loadParams(tx, op)
	if err != nil {
		return err
	}
	if err := requireSigner(tx, op, node); err != nil {
		return err
	}
	req, err := loadRequest(tx, op, requestID)
	if err != nil {
		return err
	}
	if !req.Contains(node) {
		return lerrors.Invariant(op, "%s is not in the sharing group of request %s", node, requestID)
	}
	if len(ciphertext) == 0 || len(nonce) == 0 || len(mac) == 0 {
		return lerrors.Invariant(op, "ciphertext, nonce and mac are required")
	}
	result := &Result{
		Ciphertext: append([]byte(nil), ciphertext...),
		Nonce:      append([]byte(nil), nonce...),
		MAC:        append([]byte(nil), mac...),
		PostedAt:   now(tx),
	}
	inserted, err := tx.State().KVInsert(resultKey(requestID, node), result)
	if err != nil {
		return err
	}
	if !inserted {
		return lerrors.AlreadyDone(op, "%s already posted a result for request %s", node, requestID)
	}

	fees := params.ComputeFees(req.Price, len(req.SharingGroup))
	escrowID, _ := bank.EscrowAccount(requestID)
	err = tx.WithCapability(bank.CapabilityEscrow, requestID, func() error {
		if err := e.payout(tx, e.coin, escrowID, node, fees.SharingNodeFee); err != nil {
			return err
		}
		tx.Emit(NewResultPostedEvent(req, node, fees.SharingNodeFee))

		for _, member := range req.SharingGroup {
			posted, err := tx.State().KVHas(resultKey(requestID, member))
			if err != nil {
				return err
			}
			if !posted {
				return nil
			}
		}
		remaining, err := e.coin.Balance(tx, escrowID)
		if err != nil {
			return err
		}
		if err := e.payout(tx, e.coin, escrowID, req.Writer, remaining); err != nil {
			return err
		}
		tx.Emit(NewRequestSettledEvent(req, remaining))
		return nil
	})
	return err
}

package ledger

import (
	"bytes"
	"fmt"
	"strconv"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lockboxchain/core/state"
)

const (
	tableHead    = "ledger/head"
	tableReceipt = "ledger/receipt"
	tableNonce   = "ledger/nonce"
)

// Head identifies the latest committed transaction.
type Head struct {
	Height uint64
	Hash   []byte
}

// Receipt is the journal entry of a committed transaction. Receipts are hash
// chained through PrevHash, so rewriting any past entry changes every later
// hash.
type Receipt struct {
	Height    uint64
	Timestamp uint64
	Op        string
	Signers   []string
	Events    []string
	PrevHash  []byte
	Hash      []byte
}

type receiptBody struct {
	Height    uint64
	Timestamp uint64
	Op        string
	Signers   []string
	Events    []string
	PrevHash  []byte
}

func (r *Receipt) computeHash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(receiptBody{
		Height:    r.Height,
		Timestamp: r.Timestamp,
		Op:        r.Op,
		Signers:   r.Signers,
		Events:    r.Events,
		PrevHash:  r.PrevHash,
	})
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// Verify recomputes the receipt hash and checks it links to prev.
func (r *Receipt) Verify(prev []byte) error {
	if !bytes.Equal(r.PrevHash, prev) {
		return fmt.Errorf("ledger: receipt %d does not link to previous hash", r.Height)
	}
	hash, err := r.computeHash()
	if err != nil {
		return err
	}
	if !bytes.Equal(hash, r.Hash) {
		return fmt.Errorf("ledger: receipt %d hash mismatch", r.Height)
	}
	return nil
}

func receiptKey(height uint64) []byte {
	return state.Key(tableReceipt, strconv.FormatUint(height, 10))
}

func loadHead(mgr *state.Manager) (Head, error) {
	var head Head
	if _, err := mgr.KVGet(state.Key(tableHead), &head); err != nil {
		return Head{}, err
	}
	return head, nil
}

func loadReceipt(mgr *state.Manager, height uint64) (*Receipt, bool, error) {
	receipt := new(Receipt)
	ok, err := mgr.KVGet(receiptKey(height), receipt)
	if err != nil || !ok {
		return nil, ok, err
	}
	return receipt, true, nil
}

func appendReceipt(mgr *state.Manager, head Head, tx *Tx, op string) (*Receipt, error) {
	eventTypes := make([]string, 0, len(tx.events))
	for _, evt := range tx.events {
		eventTypes = append(eventTypes, evt.Type)
	}
	ts := tx.now
	if ts < 0 {
		ts = 0
	}
	receipt := &Receipt{
		Height:    tx.height,
		Timestamp: uint64(ts),
		Op:        op,
		Signers:   tx.Signers(),
		Events:    eventTypes,
		PrevHash:  append([]byte(nil), head.Hash...),
	}
	hash, err := receipt.computeHash()
	if err != nil {
		return nil, fmt.Errorf("ledger: hash receipt: %w", err)
	}
	receipt.Hash = hash
	if err := mgr.KVPut(receiptKey(receipt.Height), receipt); err != nil {
		return nil, err
	}
	if err := mgr.KVPut(state.Key(tableHead), Head{Height: receipt.Height, Hash: hash}); err != nil {
		return nil, err
	}
	return receipt, nil
}

package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lockboxchain/storage"
)

// Manager provides table-oriented reads and writes over a single storage
// transaction. Every row lives under a composite key built by Key; the
// manager never commits on its own, the ledger executor decides the outcome.
type Manager struct {
	txn storage.Txn
}

// NewManager creates a state manager operating on the provided transaction.
func NewManager(txn storage.Txn) *Manager {
	return &Manager{txn: txn}
}

// Key builds the storage key for a row in table identified by parts. The tuple
// is RLP-encoded, so every component is length-prefixed and no separator
// character can make two different tuples collide. The encoding is then
// hashed to a fixed width.
func Key(table string, parts ...string) []byte {
	tuple := make([]string, 0, len(parts)+1)
	tuple = append(tuple, table)
	tuple = append(tuple, parts...)
	encoded, err := rlp.EncodeToBytes(tuple)
	if err != nil {
		// Encoding a []string cannot fail.
		panic(fmt.Sprintf("state: encode key tuple: %v", err))
	}
	return ethcrypto.Keccak256(encoded)
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode: %w", err)
	}
	return m.txn.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.txn.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode: %w", err)
	}
	return true, nil
}

// KVHas reports whether key is present without decoding it.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	return m.txn.Has(key)
}

// KVInsert stores value only if key is absent. It reports false when the row
// already exists, leaving the stored value untouched.
func (m *Manager) KVInsert(key []byte, value interface{}) (bool, error) {
	exists, err := m.KVHas(key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := m.KVPut(key, value); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.txn.Delete(key)
}

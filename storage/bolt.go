package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var ledgerBucket = []byte("ledger")

// BoltDB is a single-file persistent store backed by bbolt. Each ledger
// transaction maps onto exactly one read-write bolt transaction.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (or creates) the bolt database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init bolt bucket: %w", err)
	}
	return &BoltDB{db: db}, nil
}

// Put inserts or updates a key-value pair in its own transaction.
func (b *BoltDB) Put(key []byte, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ledgerBucket).Put(key, value)
	})
}

// Get retrieves a copy of the value stored under key.
func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(ledgerBucket).Get(key)
		if value == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), value...)
		return nil
	})
	return out, err
}

// Begin opens a writable bolt transaction. bolt allows a single writer, which
// matches the ledger's global ordering.
func (b *BoltDB) Begin() (Txn, error) {
	tx, err := b.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("storage: begin bolt transaction: %w", err)
	}
	return &boltTxn{tx: tx, bucket: tx.Bucket(ledgerBucket)}, nil
}

// Close releases the underlying file lock.
func (b *BoltDB) Close() {
	_ = b.db.Close()
}

type boltTxn struct {
	tx     *bolt.Tx
	bucket *bolt.Bucket
	closed bool
}

func (t *boltTxn) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	value := t.bucket.Get(key)
	if value == nil {
		return nil, ErrNotFound
	}
	// bolt memory is only valid for the life of the transaction.
	return append([]byte(nil), value...), nil
}

func (t *boltTxn) Has(key []byte) (bool, error) {
	if t.closed {
		return false, ErrTxnClosed
	}
	return t.bucket.Get(key) != nil, nil
}

func (t *boltTxn) Put(key []byte, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return t.bucket.Put(key, append([]byte(nil), value...))
}

func (t *boltTxn) Delete(key []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	return t.bucket.Delete(key)
}

func (t *boltTxn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	return t.tx.Commit()
}

func (t *boltTxn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	_ = t.tx.Rollback()
}

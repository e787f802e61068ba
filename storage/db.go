package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// ErrTxnClosed is returned when a committed or discarded transaction is reused.
var ErrTxnClosed = errors.New("storage: transaction closed")

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// Begin opens a read-write transaction. Writes become visible to other
	// readers only once Commit succeeds; Discard drops every buffered write.
	Begin() (Txn, error)
	Close() // A way to gracefully shut down the database connection.
}

// Txn is an atomic unit of work against a Database. Implementations are not
// safe for concurrent use; the ledger executor serialises transactions.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Commit() error
	Discard()
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Begin returns an overlay transaction. Reads fall through to the committed
// map; writes and deletes are buffered until Commit.
func (db *MemDB) Begin() (Txn, error) {
	return &memTxn{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}, nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type memTxn struct {
	db      *MemDB
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	k := string(key)
	if _, gone := t.deletes[k]; gone {
		return nil, ErrNotFound
	}
	if value, ok := t.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return t.db.Get(key)
}

func (t *memTxn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *memTxn) Put(key []byte, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

func (t *memTxn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for k := range t.deletes {
		delete(t.db.data, k)
	}
	for k, v := range t.writes {
		t.db.data[k] = v
	}
	return nil
}

func (t *memTxn) Discard() {
	t.closed = true
	t.writes = nil
	t.deletes = nil
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// NewMemLevelDB opens a LevelDB instance backed by memory storage. It behaves
// exactly like the on-disk variant and is used where tests need LevelDB
// transaction semantics without touching the filesystem.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Begin opens a LevelDB transaction. LevelDB blocks other writers until the
// transaction is committed or discarded.
func (ldb *LevelDB) Begin() (Txn, error) {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb transaction: %w", err)
	}
	return &levelTxn{tr: tr}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelTxn struct {
	tr *leveldb.Transaction
}

func (t *levelTxn) Get(key []byte) ([]byte, error) {
	value, err := t.tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (t *levelTxn) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

func (t *levelTxn) Put(key []byte, value []byte) error {
	return t.tr.Put(key, value, nil)
}

func (t *levelTxn) Delete(key []byte) error {
	return t.tr.Delete(key, nil)
}

func (t *levelTxn) Commit() error {
	return t.tr.Commit()
}

func (t *levelTxn) Discard() {
	t.tr.Discard()
}

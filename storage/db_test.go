package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	level, err := NewLevelDB(filepath.Join(t.TempDir(), "level"))
	require.NoError(t, err)
	memLevel, err := NewMemLevelDB()
	require.NoError(t, err)
	bolt, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.bolt"))
	require.NoError(t, err)
	dbs := map[string]Database{
		"mem":      NewMemDB(),
		"leveldb":  level,
		"memlevel": memLevel,
		"bolt":     bolt,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			db.Close()
		}
	})
	return dbs
}

func TestTxnCommitMakesWritesVisible(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			txn, err := db.Begin()
			require.NoError(t, err)
			require.NoError(t, txn.Put([]byte("k"), []byte("v")))

			got, err := txn.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)
			require.NoError(t, txn.Commit())

			got, err = db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)
		})
	}
}

func TestTxnDiscardDropsWrites(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("keep"), []byte("1")))

			txn, err := db.Begin()
			require.NoError(t, err)
			require.NoError(t, txn.Put([]byte("drop"), []byte("2")))
			require.NoError(t, txn.Delete([]byte("keep")))
			ok, err := txn.Has([]byte("keep"))
			require.NoError(t, err)
			require.False(t, ok)
			txn.Discard()

			_, err = db.Get([]byte("drop"))
			require.True(t, errors.Is(err, ErrNotFound))
			got, err := db.Get([]byte("keep"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), got)
		})
	}
}

func TestTxnDeleteThenPut(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("k"), []byte("old")))
			txn, err := db.Begin()
			require.NoError(t, err)
			require.NoError(t, txn.Delete([]byte("k")))
			require.NoError(t, txn.Put([]byte("k"), []byte("new")))
			require.NoError(t, txn.Commit())

			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("new"), got)
		})
	}
}

func TestLevelDBReopenPersists(t *testing.T) {
	dir := t.TempDir()
	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	txn, err := db1.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put([]byte("key"), []byte("value")))
	require.NoError(t, txn.Commit())
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestMemTxnRejectsReuse(t *testing.T) {
	db := NewMemDB()
	txn, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.ErrorIs(t, txn.Put([]byte("k"), []byte("v")), ErrTxnClosed)
}

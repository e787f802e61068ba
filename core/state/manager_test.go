package state

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"lockboxchain/storage"
)

type sampleRow struct {
	Name    string
	Amount  *big.Int
	Flag    bool
	Members []string
	At      uint64
}

func newTestManager(t *testing.T) (*Manager, storage.Txn) {
	t.Helper()
	db := storage.NewMemDB()
	txn, err := db.Begin()
	require.NoError(t, err)
	return NewManager(txn), txn
}

func TestKeyTupleIsUnambiguous(t *testing.T) {
	// A separator-joined key would map both tuples onto "a:b:c".
	left := Key("table", "a:b", "c")
	right := Key("table", "a", "b:c")
	require.False(t, bytes.Equal(left, right))

	require.Equal(t, Key("t", "x", "y"), Key("t", "x", "y"))
	require.False(t, bytes.Equal(Key("t1", "x"), Key("t2", "x")))
	require.Len(t, Key("t"), 32)
}

func TestKVRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := Key("sample", "one")
	row := sampleRow{Name: "one", Amount: big.NewInt(42), Flag: true, Members: []string{"a", "b"}, At: 7}
	require.NoError(t, mgr.KVPut(key, row))

	var got sampleRow
	ok, err := mgr.KVGet(key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", got.Name)
	require.Equal(t, 0, got.Amount.Cmp(big.NewInt(42)))
	require.True(t, got.Flag)
	require.Equal(t, []string{"a", "b"}, got.Members)
	require.Equal(t, uint64(7), got.At)

	ok, err = mgr.KVGet(Key("sample", "missing"), &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVInsertRefusesOverwrite(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := Key("sample", "once")
	inserted, err := mgr.KVInsert(key, sampleRow{Name: "first", Amount: big.NewInt(1)})
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = mgr.KVInsert(key, sampleRow{Name: "second", Amount: big.NewInt(2)})
	require.NoError(t, err)
	require.False(t, inserted)

	var got sampleRow
	_, err = mgr.KVGet(key, &got)
	require.NoError(t, err)
	require.Equal(t, "first", got.Name)
}

func TestKVDelete(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := Key("sample", "gone")
	require.NoError(t, mgr.KVPut(key, sampleRow{Name: "gone", Amount: big.NewInt(0)}))
	require.NoError(t, mgr.KVDelete(key))
	ok, err := mgr.KVHas(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.Error(t, mgr.KVPut(nil, sampleRow{}))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
}

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/events"
	"lockboxchain/core/state"
	"lockboxchain/core/types"
	"lockboxchain/storage"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveTx(_ string, outcome string, _ time.Duration) {
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

type row struct {
	Value string
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	x := NewExecutor(storage.NewMemDB())
	x.SetNowFunc(func() int64 { return 1_700_000_000 })
	return x
}

func readRow(t *testing.T, x *Executor, key []byte) (row, bool) {
	t.Helper()
	var (
		out row
		ok  bool
	)
	require.NoError(t, x.View(context.Background(), func(tx *Tx) error {
		var err error
		ok, err = tx.State().KVGet(key, &out)
		return err
	}))
	return out, ok
}

func TestExecuteCommitsAndChainsReceipts(t *testing.T) {
	x := newTestExecutor(t)
	ctx := context.Background()
	key := state.Key("test/row", "a")

	first, err := x.Execute(ctx, "put", []string{"alice"}, func(tx *Tx) error {
		require.Equal(t, uint64(1), tx.Height())
		tx.Emit(&types.Event{Type: "test.put"})
		return tx.State().KVPut(key, row{Value: "one"})
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Height)
	require.Empty(t, first.PrevHash)
	require.Equal(t, []string{"test.put"}, first.Events)
	require.NoError(t, first.Verify(nil))

	second, err := x.Execute(ctx, "put", []string{"bob"}, func(tx *Tx) error {
		return tx.State().KVPut(key, row{Value: "two"})
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Height)
	require.Equal(t, first.Hash, second.PrevHash)
	require.NoError(t, second.Verify(first.Hash))

	got, ok := readRow(t, x, key)
	require.True(t, ok)
	require.Equal(t, "two", got.Value)

	head, err := x.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), head.Height)
	require.Equal(t, second.Hash, head.Hash)

	stored, ok, err := x.Receipt(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.Hash, stored.Hash)
	require.Equal(t, []string{"alice"}, stored.Signers)
}

func TestExecuteFailureLeavesNoTrace(t *testing.T) {
	x := newTestExecutor(t)
	emitter := &captureEmitter{}
	observer := &countingObserver{}
	x.SetEmitter(emitter)
	x.SetObserver(observer)
	ctx := context.Background()
	key := state.Key("test/row", "b")

	_, err := x.Execute(ctx, "put", nil, func(tx *Tx) error {
		tx.Emit(&types.Event{Type: "test.put"})
		if err := tx.State().KVPut(key, row{Value: "lost"}); err != nil {
			return err
		}
		return lerrors.Invariant("put", "rejected after write")
	})
	require.ErrorIs(t, err, lerrors.ErrInvariant)

	_, ok := readRow(t, x, key)
	require.False(t, ok, "aborted write must not persist")
	require.Empty(t, emitter.events, "aborted events must not be delivered")
	require.Equal(t, 1, observer.outcomes["invariant"])

	head, err := x.Head(ctx)
	require.NoError(t, err)
	require.Zero(t, head.Height)
	_, found, err := x.Receipt(ctx, 1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestExecuteDeliversCommittedEvents(t *testing.T) {
	x := newTestExecutor(t)
	emitter := &captureEmitter{}
	x.SetEmitter(emitter)

	receipt, err := x.Execute(context.Background(), "emit", nil, func(tx *Tx) error {
		tx.Emit(&types.Event{Type: "first", Attributes: map[string]string{"k": "v"}})
		tx.Emit(nil)
		tx.Emit(&types.Event{Type: "second"})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, emitter.events, 2)
	committed, ok := emitter.events[0].(CommittedEvent)
	require.True(t, ok)
	require.Equal(t, "first", committed.EventType())
	require.Equal(t, receipt.Height, committed.Height)
	require.Equal(t, "v", committed.Event.Attributes["k"])
	require.Equal(t, "second", emitter.events[1].EventType())
}

func TestExecuteRespectsCancelledContext(t *testing.T) {
	x := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := x.Execute(ctx, "noop", nil, func(*Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatalf("transaction body must not run on a cancelled context")
	}
}

func TestViewNeverCommits(t *testing.T) {
	x := newTestExecutor(t)
	key := state.Key("test/row", "view")
	require.NoError(t, x.View(context.Background(), func(tx *Tx) error {
		return tx.State().KVPut(key, row{Value: "scratch"})
	}))
	_, ok := readRow(t, x, key)
	require.False(t, ok)
}

func TestExecuteOnLevelDBBackend(t *testing.T) {
	db, err := storage.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	x := NewExecutor(db)
	key := state.Key("test/row", "level")

	_, err = x.Execute(context.Background(), "put", nil, func(tx *Tx) error {
		return tx.State().KVPut(key, row{Value: "durable"})
	})
	require.NoError(t, err)
	_, err = x.Execute(context.Background(), "put", nil, func(tx *Tx) error {
		if err := tx.State().KVPut(key, row{Value: "rolled back"}); err != nil {
			return err
		}
		return lerrors.Deadline("put", "too late")
	})
	require.ErrorIs(t, err, lerrors.ErrDeadline)

	got, ok := readRow(t, x, key)
	require.True(t, ok)
	require.Equal(t, "durable", got.Value)
}

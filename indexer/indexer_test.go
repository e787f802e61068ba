package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lockboxchain/core/ledger"
	"lockboxchain/core/types"
)

func newIndexer(t *testing.T) *Indexer {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	idx, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("open indexer: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func committed(height uint64, eventType string, attrs map[string]string) ledger.CommittedEvent {
	return ledger.CommittedEvent{
		Height: height,
		TxHash: fmt.Sprintf("%064x", height),
		Event:  &types.Event{Type: eventType, Attributes: attrs},
	}
}

func TestIndexerRecordsAndQueries(t *testing.T) {
	idx := newIndexer(t)
	idx.Emit(committed(1, "lockbox.created", map[string]string{"lockboxId": "lb-1"}))
	idx.Emit(committed(2, "lockbox.request.opened", map[string]string{"lockboxId": "lb-1", "requestId": "req-1"}))
	idx.Emit(committed(2, "bank.transfer", map[string]string{"from": "reader"}))
	idx.Emit(committed(3, "lockbox.result.posted", map[string]string{"lockboxId": "lb-1", "requestId": "req-1", "node": "node-a"}))
	idx.Emit(committed(4, "lockbox.created", map[string]string{"lockboxId": "lb-2"}))

	ctx := context.Background()
	all, err := idx.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, 0, all[1].Seq)
	require.Equal(t, 1, all[2].Seq)

	byLockbox, err := idx.Query(ctx, Filter{LockboxID: "lb-1"})
	require.NoError(t, err)
	require.Len(t, byLockbox, 3)

	byRequest, err := idx.Query(ctx, Filter{RequestID: "req-1", Type: "lockbox.result.posted"})
	require.NoError(t, err)
	require.Len(t, byRequest, 1)
	require.Equal(t, "node-a", byRequest[0].Attributes["node"])

	byNode, err := idx.Query(ctx, Filter{Node: "node-a"})
	require.NoError(t, err)
	require.Len(t, byNode, 1)

	window, err := idx.Query(ctx, Filter{FromHeight: 2, ToHeight: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, uint64(2), window[0].Height)
}

type rawEvent string

func (r rawEvent) EventType() string { return string(r) }

func TestIndexerIgnoresForeignEvents(t *testing.T) {
	idx := newIndexer(t)
	idx.Emit(nil)
	idx.Emit(ledger.CommittedEvent{Height: 1})
	idx.Emit(rawEvent("raw"))

	all, err := idx.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestExportParquet(t *testing.T) {
	idx := newIndexer(t)
	for h := uint64(1); h <= 3; h++ {
		idx.Emit(committed(h, "lockbox.slashed", map[string]string{"lockboxId": "lb-1", "amount": "300"}))
	}
	idx.Emit(committed(4, "lockbox.created", map[string]string{"lockboxId": "lb-9"}))

	path := filepath.Join(t.TempDir(), "events.parquet")
	n, err := idx.ExportParquet(context.Background(), path, Filter{Type: "lockbox.slashed"})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("  ", nil)
	require.Error(t, err)
	_, err = New(nil, nil)
	require.ErrorIs(t, err, errNilDB)
}

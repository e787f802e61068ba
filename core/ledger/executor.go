package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	lerrors "lockboxchain/core/errors"
	"lockboxchain/core/events"
	"lockboxchain/core/state"
	"lockboxchain/core/types"
	"lockboxchain/storage"
)

var errNilDatabase = errors.New("ledger: database not configured")

// Observer receives one callback per executed transaction. Implementations
// must not block.
type Observer interface {
	ObserveTx(op string, outcome string, elapsed time.Duration)
}

// CommittedEvent is the envelope delivered to emitters after a transaction
// commits.
type CommittedEvent struct {
	Height uint64
	TxHash string
	Event  *types.Event
}

// EventType implements events.Event.
func (c CommittedEvent) EventType() string {
	if c.Event == nil {
		return ""
	}
	return c.Event.Type
}

// Executor is the single global sequencer. Each call to Execute is one atomic
// transaction with exclusive access to the store; a failed transaction leaves
// no trace.
type Executor struct {
	mu       sync.Mutex
	db       storage.Database
	emitter  events.Emitter
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	nowFn    func() int64
}

// NewExecutor creates an executor over db using the wall clock as block time.
func NewExecutor(db storage.Database) *Executor {
	return &Executor{
		db:      db,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("lockboxchain/ledger"),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the block clock. Primarily intended for tests to
// provide deterministic timestamps.
func (x *Executor) SetNowFunc(now func() int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if now == nil {
		x.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	x.nowFn = now
}

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

// SetLogger configures the executor logger.
func (x *Executor) SetLogger(logger *slog.Logger) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	x.logger = logger
}

// SetObserver installs a metrics observer.
func (x *Executor) SetObserver(observer Observer) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.observer = observer
}

// Execute runs fn as one transaction signed by signers. On success the
// receipt is appended to the journal and the storage transaction committed;
// on any error everything fn wrote is discarded.
func (x *Executor) Execute(ctx context.Context, op string, signers []string, fn func(*Tx) error) (*Receipt, error) {
	if x == nil || x.db == nil {
		return nil, errNilDatabase
	}
	ctx, span := x.tracer.Start(ctx, "ledger.execute", trace.WithAttributes(
		attribute.String("ledger.op", op),
		attribute.Int("ledger.signers", len(signers)),
	))
	defer span.End()

	x.mu.Lock()
	defer x.mu.Unlock()

	started := time.Now()
	receipt, committed, err := x.execute(ctx, op, signers, fn)
	x.observe(op, err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, lerrors.KindOf(err).String())
		x.logger.Info("transaction aborted",
			slog.String("op", op),
			slog.Any("signers", signers),
			slog.String("kind", lerrors.KindOf(err).String()),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.Int64("ledger.height", int64(receipt.Height)))
	x.logger.Debug("transaction committed",
		slog.String("op", op),
		slog.Uint64("height", receipt.Height),
		slog.Int("events", len(committed)))

	txHash := hex.EncodeToString(receipt.Hash)
	for _, evt := range committed {
		x.emitter.Emit(CommittedEvent{Height: receipt.Height, TxHash: txHash, Event: evt})
	}
	return receipt, nil
}

func (x *Executor) execute(ctx context.Context, op string, signers []string, fn func(*Tx) error) (*Receipt, []*types.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	txn, err := x.db.Begin()
	if err != nil {
		return nil, nil, err
	}
	mgr := state.NewManager(txn)
	head, err := loadHead(mgr)
	if err != nil {
		txn.Discard()
		return nil, nil, err
	}
	tx := newTx(mgr, signers, x.nowFn(), head.Height+1)
	if err := fn(tx); err != nil {
		txn.Discard()
		return nil, nil, err
	}
	receipt, err := appendReceipt(mgr, head, tx, op)
	if err != nil {
		txn.Discard()
		return nil, nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, nil, fmt.Errorf("ledger: commit height %d: %w", receipt.Height, err)
	}
	return receipt, tx.events, nil
}

// View runs fn against a snapshot that is always discarded.
func (x *Executor) View(ctx context.Context, fn func(*Tx) error) error {
	if x == nil || x.db == nil {
		return errNilDatabase
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	txn, err := x.db.Begin()
	if err != nil {
		return err
	}
	defer txn.Discard()
	mgr := state.NewManager(txn)
	head, err := loadHead(mgr)
	if err != nil {
		return err
	}
	return fn(newTx(mgr, nil, x.nowFn(), head.Height))
}

// Head returns the latest committed height and hash.
func (x *Executor) Head(ctx context.Context) (Head, error) {
	var head Head
	err := x.View(ctx, func(tx *Tx) error {
		var err error
		head, err = loadHead(tx.State())
		return err
	})
	return head, err
}

// Receipt loads the receipt committed at height.
func (x *Executor) Receipt(ctx context.Context, height uint64) (*Receipt, bool, error) {
	var (
		receipt *Receipt
		ok      bool
	)
	err := x.View(ctx, func(tx *Tx) error {
		var err error
		receipt, ok, err = loadReceipt(tx.State(), height)
		return err
	})
	return receipt, ok, err
}

func (x *Executor) observe(op string, err error, elapsed time.Duration) {
	if x.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = lerrors.KindOf(err).String()
	}
	x.observer.ObserveTx(op, outcome, elapsed)
}

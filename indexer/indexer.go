package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lockboxchain/core/events"
	"lockboxchain/core/ledger"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

var errNilDB = errors.New("indexer: database not configured")

// Filter narrows an event query. Zero fields match everything.
type Filter struct {
	Type       string `json:"type,omitempty"`
	LockboxID  string `json:"lockboxId,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Node       string `json:"node,omitempty"`
	FromHeight uint64 `json:"fromHeight,omitempty"`
	ToHeight   uint64 `json:"toHeight,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// Event is the query result shape.
type Event struct {
	Height     uint64            `json:"height"`
	Seq        int               `json:"seq"`
	TxHash     string            `json:"txHash"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Indexer persists committed events into SQL. It implements events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu         sync.Mutex
	lastHeight uint64
	seq        int

	indexed metric.Int64Counter
	failed  metric.Int64Counter
}

// Open connects to dsn and migrates the schema. DSNs starting with
// postgres:// or postgresql:// use PostgreSQL; anything else is a SQLite path.
func Open(dsn string, log *slog.Logger) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: empty dsn")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	if isPostgres(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if !isPostgres(dsn) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("indexer: pool: %w", err)
		}
		// SQLite serialises writers; one connection also keeps :memory:
		// databases alive across calls.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errNilDB
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	idx := &Indexer{db: db, logger: log}
	idx.initMetrics()
	return idx, nil
}

func (i *Indexer) initMetrics() {
	meter := otel.GetMeterProvider().Meter("lockboxchain/indexer")
	indexed, err := meter.Int64Counter("lockbox.indexer.events")
	if err != nil {
		indexed, _ = noop.NewMeterProvider().Meter("lockboxchain/indexer").Int64Counter("lockbox.indexer.events")
	}
	failed, err := meter.Int64Counter("lockbox.indexer.failures")
	if err != nil {
		failed, _ = noop.NewMeterProvider().Meter("lockboxchain/indexer").Int64Counter("lockbox.indexer.failures")
	}
	i.indexed = indexed
	i.failed = failed
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Only ledger.CommittedEvent values are
// recorded; write failures are logged and never reach the ledger.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || i.db == nil {
		return
	}
	committed, ok := evt.(ledger.CommittedEvent)
	if !ok || committed.Event == nil {
		return
	}
	record, err := i.record(committed)
	if err == nil {
		err = i.db.Create(record).Error
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("type", committed.Event.Type))
	if err != nil {
		i.failed.Add(ctx, 1, attrs)
		i.logger.Warn("indexer: event not recorded",
			slog.Uint64("height", committed.Height),
			slog.String("type", committed.Event.Type),
			slog.Any("error", err))
		return
	}
	i.indexed.Add(ctx, 1, attrs)
}

func (i *Indexer) record(committed ledger.CommittedEvent) (*EventRecord, error) {
	attrs := committed.Event.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	i.mu.Lock()
	if committed.Height != i.lastHeight {
		i.lastHeight = committed.Height
		i.seq = 0
	}
	seq := i.seq
	i.seq++
	i.mu.Unlock()

	return &EventRecord{
		Height:     committed.Height,
		Seq:        seq,
		TxHash:     committed.TxHash,
		Type:       committed.Event.Type,
		LockboxID:  attrs["lockboxId"],
		RequestID:  attrs["requestId"],
		Node:       attrs["node"],
		Attributes: string(raw),
	}, nil
}

// Query returns matching events in commit order.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]Event, error) {
	if i == nil || i.db == nil {
		return nil, errNilDB
	}
	var records []EventRecord
	if err := i.scope(ctx, filter).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		evt, err := rec.event()
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func (i *Indexer) scope(ctx context.Context, filter Filter) *gorm.DB {
	q := i.db.WithContext(ctx).Model(&EventRecord{})
	if v := strings.TrimSpace(filter.Type); v != "" {
		q = q.Where("type = ?", v)
	}
	if v := strings.TrimSpace(filter.LockboxID); v != "" {
		q = q.Where("lockbox_id = ?", v)
	}
	if v := strings.TrimSpace(filter.RequestID); v != "" {
		q = q.Where("request_id = ?", v)
	}
	if v := strings.TrimSpace(filter.Node); v != "" {
		q = q.Where("node = ?", v)
	}
	if filter.FromHeight > 0 {
		q = q.Where("height >= ?", filter.FromHeight)
	}
	if filter.ToHeight > 0 {
		q = q.Where("height <= ?", filter.ToHeight)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	return q.Order("height ASC").Order("seq ASC").Limit(limit)
}

func (r EventRecord) event() (Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return Event{}, fmt.Errorf("indexer: decode attributes of event %d: %w", r.ID, err)
		}
	}
	return Event{
		Height:     r.Height,
		Seq:        r.Seq,
		TxHash:     r.TxHash,
		Type:       r.Type,
		Attributes: attrs,
	}, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

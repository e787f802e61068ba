package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lockboxchain/core/events"
	"lockboxchain/core/ledger"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// StreamEvent is the frame pushed to event stream subscribers.
type StreamEvent struct {
	Height     uint64            `json:"height"`
	TxHash     string            `json:"txHash"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type subscriber struct {
	prefix string
	ch     chan StreamEvent
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// lose frames rather than stall the executor.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	origins []string
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), logger: logger}
}

// SetAllowedOrigins lists the host patterns, in path.Match syntax, whose
// browsers may open the stream cross-origin. With none set only same-origin
// pages and clients that send no Origin header are accepted.
func (h *Hub) SetAllowedOrigins(patterns ...string) {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	h.mu.Lock()
	h.origins = cleaned
	h.mu.Unlock()
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	committed, ok := evt.(ledger.CommittedEvent)
	if !ok || committed.Event == nil {
		return
	}
	frame := StreamEvent{
		Height:     committed.Height,
		TxHash:     committed.TxHash,
		Type:       committed.Event.Type,
		Attributes: committed.Event.Attributes,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.prefix != "" && !strings.HasPrefix(frame.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			h.logger.Warn("rpc: event stream subscriber lagging", slog.String("type", frame.Type))
		}
	}
}

// Subscribe registers a subscriber for events whose type starts with prefix.
func (h *Hub) Subscribe(prefix string) (<-chan StreamEvent, func()) {
	sub := &subscriber{prefix: prefix, ch: make(chan StreamEvent, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// ServeHTTP upgrades the connection and streams events until the client goes
// away. The optional "type" query parameter filters by event type prefix.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	h.mu.Lock()
	origins := h.origins
	h.mu.Unlock()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		h.logger.Debug("rpc: event stream upgrade rejected", slog.String("origin", r.Header.Get("Origin")), slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Reads are discarded; CloseRead cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel := h.Subscribe(prefix)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-updates:
			if err := writeFrame(ctx, conn, frame); err != nil {
				return err
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamEvent) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

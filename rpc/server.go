package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lockboxchain/core/ledger"
	"lockboxchain/indexer"
	"lockboxchain/native/lockbox"
	"lockboxchain/observability"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// EventQuerier is the read side of the event indexer.
type EventQuerier interface {
	Query(ctx context.Context, filter indexer.Filter) ([]indexer.Event, error)
}

// Config wires the server to the ledger and its optional collaborators.
type Config struct {
	ChainID            string
	Executor           *ledger.Executor
	Engine             *lockbox.Engine
	Events             EventQuerier
	Stream             *Hub
	Auth               *Authenticator
	RateLimitPerMinute int
	Logger             *slog.Logger
}

type Server struct {
	chainID string
	exec    *ledger.Executor
	engine  *lockbox.Engine
	events  EventQuerier
	stream  *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	metrics interface {
		Observe(module, method string, code int, duration time.Duration)
		RecordThrottle(module, reason string)
	}

	txOps   map[string]txHandler
	queries map[string]queryHandler
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Executor == nil || cfg.Engine == nil {
		return nil, errors.New("rpc: executor and engine are required")
	}
	if strings.TrimSpace(cfg.ChainID) == "" {
		return nil, errors.New("rpc: chain id required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chainID: cfg.ChainID,
		exec:    cfg.Executor,
		engine:  cfg.Engine,
		events:  cfg.Events,
		stream:  cfg.Stream,
		auth:    cfg.Auth,
		logger:  logger,
		metrics: observability.ModuleMetrics(),
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiter = NewRateLimiter(float64(cfg.RateLimitPerMinute), cfg.RateLimitPerMinute)
	}
	s.txOps = s.transactionHandlers()
	s.queries = s.queryHandlers()
	return s, nil
}

// Router returns the HTTP surface: JSON-RPC on POST /, plus health, metrics
// and the optional event stream.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(gr chi.Router) {
		if s.limiter != nil {
			gr.Use(s.limiter.Middleware(s.metrics.RecordThrottle))
		}
		if s.auth != nil {
			gr.Use(s.auth.Middleware())
		}
		gr.Post("/", s.handle)
		if s.stream != nil {
			gr.Get("/ws/events", s.stream.ServeHTTP)
		}
	})
	return otelhttp.NewHandler(r, "lockboxd")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	started := time.Now()
	module := moduleOf(req.Method)
	result, err := s.dispatch(r.Context(), req)
	if err != nil {
		status, rpcErr := classify(err)
		if rpcErr.Code == codeMethodNotFound {
			status = http.StatusNotFound
		}
		s.metrics.Observe(module, req.Method, rpcErr.Code, time.Since(started))
		level := slog.LevelInfo
		if rpcErr.Code == codeServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "rpc request failed",
			slog.String("requestId", requestIDFrom(r.Context())),
			slog.String("method", req.Method),
			slog.Int("code", rpcErr.Code),
			slog.String("error", err.Error()))
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	s.metrics.Observe(module, req.Method, 0, time.Since(started))
	writeResult(w, req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req *RPCRequest) (interface{}, error) {
	if req.Method == "lockbox_sendTransaction" {
		if len(req.Params) != 1 {
			return nil, invalidParams("exactly one signed transaction expected", nil)
		}
		return s.sendTransaction(ctx, req.Params[0])
	}
	query, ok := s.queries[req.Method]
	if !ok {
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}
	var param json.RawMessage
	switch len(req.Params) {
	case 0:
		param = json.RawMessage("{}")
	case 1:
		param = req.Params[0]
	default:
		return nil, invalidParams("at most one parameter object expected", nil)
	}
	return query(ctx, param)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return "unknown"
}

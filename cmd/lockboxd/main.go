package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lockboxchain/config"
	"lockboxchain/core/events"
	"lockboxchain/core/ledger"
	"lockboxchain/indexer"
	"lockboxchain/native/lockbox"
	"lockboxchain/observability"
	"lockboxchain/observability/logging"
	telemetry "lockboxchain/observability/otel"
	"lockboxchain/rpc"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	exportPath := flag.String("export-events", "", "Write indexed events to this Parquet file and exit")
	exportType := flag.String("export-type", "", "Restrict -export-events to one event type")
	flag.Parse()

	if err := run(*configFile, *exportPath, *exportType); err != nil {
		fmt.Fprintf(os.Stderr, "lockboxd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, exportPath, exportType string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile := ""
	if strings.TrimSpace(cfg.LogFile) != "" {
		logFile = cfg.ResolvePath(cfg.LogFile)
	}
	logger, closer := logging.SetupWithFile("lockboxd", cfg.Env, logging.FileOptions{Path: logFile})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	var idx *indexer.Indexer
	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		idx, err = indexer.Open(dsn, logger)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
	}

	if exportPath != "" {
		if idx == nil {
			return errors.New("-export-events requires IndexerDSN")
		}
		n, err := idx.ExportParquet(ctx, exportPath, indexer.Filter{Type: exportType})
		if err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		logger.Info("events exported", slog.Int("rows", n), slog.String("path", exportPath))
		return nil
	}

	params, err := cfg.Protocol.Params()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	exec := ledger.NewExecutor(db)
	exec.SetLogger(logger)
	exec.SetObserver(observability.Ledger())

	fanout := events.Fanout{observability.Events()}
	if idx != nil {
		fanout = append(fanout, idx)
	}
	var hub *rpc.Hub
	if cfg.EnableEventStream {
		hub = rpc.NewHub(logger)
		hub.SetAllowedOrigins(cfg.EventStreamOrigins...)
		fanout = append(fanout, hub)
	}
	exec.SetEmitter(fanout)

	engine := lockbox.NewEngine(params)
	if err := bootstrap(ctx, exec, engine, cfg, logger); err != nil {
		return err
	}

	var auth *rpc.Authenticator
	if cfg.Auth.Enabled {
		auth, err = rpc.NewAuthenticator(rpc.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger)
		if err != nil {
			return err
		}
	}

	srvCfg := rpc.Config{
		ChainID:            cfg.ChainID,
		Executor:           exec,
		Engine:             engine,
		Stream:             hub,
		Auth:               auth,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	}
	if idx != nil {
		srvCfg.Events = idx
	}
	server, err := rpc.NewServer(srvCfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", slog.String("addr", cfg.ListenAddress), slog.String("chain", cfg.ChainID))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Package main is the entry point for the alertfeed notification panel.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/polyinsider/alertfeed/internal/config"
	"github.com/polyinsider/alertfeed/internal/feed"
	"github.com/polyinsider/alertfeed/internal/ingest"
	"github.com/polyinsider/alertfeed/internal/kv"
	"github.com/polyinsider/alertfeed/internal/metrics"
	"github.com/polyinsider/alertfeed/internal/readstate"
	"github.com/polyinsider/alertfeed/internal/ui"
)

const (
	// statusInterval is how often headless mode logs a summary
	statusInterval = 30 * time.Second

	// shutdownTimeout bounds the metrics server and read-state load on exit
	shutdownTimeout = 5 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger, closeLog, err := setupLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Error("failed to open log file", "path", cfg.LogFile, "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("alertfeed starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"alerts_ws_url", cfg.AlertsWSURL,
		"alerts_poll_url", cfg.AlertsPollURL,
		"poll_interval", cfg.PollInterval,
		"max_alerts", cfg.MaxAlerts,
		"position", cfg.Position,
		"storage_backend", cfg.StorageBackend,
		"storage_path", cfg.StoragePath,
		"read_state_key", cfg.ReadStateKey,
		"redis_addr", cfg.RedisAddr,
		"redis_password", cfg.MaskedRedisPassword(),
		"event_buffer", cfg.EventBuffer,
		"enable_tui", cfg.EnableTUI,
		"prometheus_port", cfg.PrometheusPort,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	m := metrics.New(nil, metrics.DefaultNamespace)
	metricsServer := startMetricsServer(cfg.PrometheusPort, m)

	storage := openStorage(ctx, cfg)

	// Read-state loads in the background; the panel starts empty and unread
	tracker := readstate.New(storage,
		readstate.WithKey(cfg.ReadStateKey),
		readstate.WithLogger(logger),
		readstate.WithMetrics(m),
		readstate.WithAsyncWrites(),
	)
	loadDone := make(chan struct{})
	go func() {
		defer close(loadDone)
		tracker.Load(ctx)
		slog.Info("readstate_loaded", "entries", tracker.Len())
	}()

	session := feed.New(cfg.MaxAlerts, tracker,
		feed.WithLogger(logger),
		feed.WithMetrics(m),
	)

	events := make(chan ingest.Event, cfg.EventBuffer)
	stopSource := startSource(ctx, cfg, events, m)

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		session.Run(ctx, events)
	}()

	slog.Info("alertfeed_started",
		"status", "waiting for alerts",
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(session, ui.Options{
			Position: ui.ParsePosition(cfg.Position),
			Refresh:  cfg.UIRefreshRate,
		})

		// Start TUI in goroutine so we can still handle signals
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		runHeadless(ctx, session, sigChan)
	}

	cancel()

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping source")
	stopSource()
	<-sessionDone
	session.Teardown()

	select {
	case <-loadDone:
	case <-time.After(shutdownTimeout):
		slog.Warn("readstate_load_pending")
	}
	tracker.Close()
	if err := storage.Close(); err != nil {
		slog.Warn("storage_close_failed", "error", err)
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	slog.Info("shutdown_complete")
}

// openStorage opens the configured backend, falling back to memory so a
// storage outage never stops the panel.
func openStorage(ctx context.Context, cfg *config.Config) kv.Storage {
	openCtx, openCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer openCancel()

	storage, err := kv.Open(openCtx, kv.Options{
		Backend:       cfg.StorageBackend,
		Path:          cfg.StoragePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   "alertfeed:",
	})
	if err != nil {
		slog.Warn("storage_open_failed",
			"backend", cfg.StorageBackend,
			"error", err,
			"fallback", kv.BackendMemory,
		)
		return kv.NewMemory()
	}
	slog.Info("storage_opened", "backend", cfg.StorageBackend)
	return storage
}

// startSource starts the WebSocket listener, or the poller when only a poll
// URL is configured. The returned func stops the source.
func startSource(ctx context.Context, cfg *config.Config, events chan<- ingest.Event, m *metrics.Metrics) func() {
	if cfg.AlertsWSURL != "" {
		listener := ingest.NewListener(ingest.ListenerConfig{
			URL:       cfg.AlertsWSURL,
			Subscribe: cfg.Subscribe,
		}, events, m)
		listener.Start(ctx)
		slog.Info("ws_listener_started", "url", cfg.AlertsWSURL)
		return listener.Stop
	}

	poller := ingest.NewPoller(cfg.AlertsPollURL, cfg.PollInterval, events, m)
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Start(ctx)
	}()
	slog.Info("rest_poller_started", "url", cfg.AlertsPollURL, "interval", cfg.PollInterval)
	return func() { <-done }
}

// startMetricsServer serves /metrics on port. Port 0 disables it.
func startMetricsServer(port int, m *metrics.Metrics) *http.Server {
	if port == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics_server_started", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_error", "error", err)
		}
	}()
	return server
}

// runHeadless logs a periodic summary until a signal arrives.
func runHeadless(ctx context.Context, session *feed.Session, sigChan <-chan os.Signal) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := session.Snapshot()
			slog.Info("feed_status",
				"connected", snap.Connected,
				"alerts", len(snap.Alerts),
				"unread", snap.Unread(),
			)
		}
	}
}

// setupLogger creates a structured logger with the specified level. With a
// path, output goes to that file so it does not corrupt the TUI.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr, path string) (*slog.Logger, func(), error) {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler), closeFn, nil
}

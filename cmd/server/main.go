package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aigoflow/sleep-quality-service/internal/audit"
	"github.com/aigoflow/sleep-quality-service/internal/config"
	"github.com/aigoflow/sleep-quality-service/internal/model"
	"github.com/aigoflow/sleep-quality-service/internal/repository"
	"github.com/aigoflow/sleep-quality-service/internal/services"
	"github.com/aigoflow/sleep-quality-service/internal/store"
	"github.com/aigoflow/sleep-quality-service/internal/telemetry"
	"github.com/aigoflow/sleep-quality-service/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	for _, p := range []string{cfg.DBPath, cfg.AuditPath, cfg.LogPath} {
		if p != "" {
			_ = os.MkdirAll(filepath.Dir(p), 0755)
		}
	}

	// Setup structured logging, teed to the log file when one is configured
	var out io.Writer = os.Stdout
	if cfg.LogPath != "" {
		logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			slog.Error("Failed to open log file", "path", cfg.LogPath, "error", err)
			os.Exit(1)
		}
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	// Initialize database and repository
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := repository.NewSQLiteRepository(db)
	events := newEventLogger(repo.Event())

	events.log("info", "startup", "Server starting", map[string]interface{}{
		"model_name": cfg.ModelName,
		"http_addr":  cfg.HTTPAddr,
		"db_path":    cfg.DBPath,
	})

	events.log("info", "model.loading", "Model loading started", map[string]interface{}{
		"model_path": cfg.ModelPath,
	})

	m, err := model.Load(cfg.ModelPath)
	if err != nil {
		events.log("error", "model.failed", "Model loading failed", map[string]interface{}{
			"model_path": cfg.ModelPath,
			"error":      err.Error(),
		})
		slog.Error("Failed to load model", "error", err)
		os.Exit(1)
	}

	events.log("info", "model.loaded", "Model loaded successfully", map[string]interface{}{
		"model_path": cfg.ModelPath,
		"model_name": m.Name(),
	})

	auditLog := audit.NewCSVLogger(cfg.AuditPath)
	defer auditLog.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	predictionService := services.NewPredictionService(m, auditLog, repo, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Everything started below is awaited before the deferred closes run.
	var wg sync.WaitGroup

	if cfg.NatsEnabled {
		startNATS(ctx, &wg, cfg, events, predictionService)
	}

	httpServer := server.NewServer(cfg.HTTPAddr, predictionService, reg)

	events.log("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":    cfg.HTTPAddr,
		"model_name":   m.Name(),
		"audit_path":   cfg.AuditPath,
		"nats_enabled": cfg.NatsEnabled,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Start(ctx); err != nil {
			events.log("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	cancel()
	wg.Wait()

	events.log("info", "shutdown", "Server stopped", nil)
}

// startNATS runs the queue worker and health responder. A broker that cannot
// be reached leaves the HTTP API serving on its own.
func startNATS(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, events *eventLogger, predictor services.Predictor) {
	natsService, err := services.NewNATSService(cfg, predictor)
	if err != nil {
		events.log("warn", "nats.unavailable", "NATS unavailable, serving HTTP only", map[string]interface{}{
			"nats_url": cfg.NatsURL,
			"error":    err.Error(),
		})
		slog.Warn("NATS unavailable, serving HTTP only", "nats_url", cfg.NatsURL, "error", err)
		return
	}

	healthService := services.NewHealthService(natsService.GetConnection(), cfg, natsService.GetMonitoringService(), cfg.ModelName)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := natsService.Start(ctx); err != nil {
			events.log("error", "nats.failed", "NATS service failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("NATS service failed", "error", err)
			natsService.Close()
		}
	}()

	if err := healthService.Start(ctx); err != nil {
		events.log("error", "health.failed", "Health service failed", map[string]interface{}{
			"error": err.Error(),
		})
		slog.Error("Health service failed", "error", err)
	}
}

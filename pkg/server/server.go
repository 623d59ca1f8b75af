package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aigoflow/sleep-quality-service/internal/handlers"
	"github.com/aigoflow/sleep-quality-service/internal/services"
)

type Server struct {
	httpAddr          string
	predictionService *services.PredictionService
	gatherer          prometheus.Gatherer
}

func NewServer(httpAddr string, predictionService *services.PredictionService, gatherer prometheus.Gatherer) *Server {
	return &Server{
		httpAddr:          httpAddr,
		predictionService: predictionService,
		gatherer:          gatherer,
	}
}

// Router builds the HTTP routes of the service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handlers.RequestID)

	predictionHandler := handlers.NewPredictionHandler(s.predictionService)
	predictionHandler.RegisterRoutes(r)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Start listens on the configured address and serves until ctx is
// cancelled. It returns once in-flight requests have drained.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			"addr", ln.Addr().String(),
			"model", s.predictionService.ModelName(),
			"endpoints", []string{"/", "/predict", "/healthz", "/logs", "/events", "/metrics"})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("HTTP server stopped")
	return nil
}

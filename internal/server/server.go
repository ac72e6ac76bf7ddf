// Package server exposes job tracking, search and vectorization over JSON HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/raphaelgruber/pricecat/internal/events"
	"github.com/raphaelgruber/pricecat/internal/metrics"
	"github.com/raphaelgruber/pricecat/internal/service"
)

// Deps are the services the server routes to.
type Deps struct {
	Catalog   service.CatalogStore
	Jobs      *service.JobService
	Search    *service.SearchService
	Vectorize *service.VectorizeService
	Metrics   *metrics.Collector

	// BatchSize is used by POST /vectorize when the request omits it.
	BatchSize int
}

// Server wraps the HTTP handler with its dependencies and lifecycle.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	handler http.Handler

	// vectorizing guards against overlapping auto-vectorize runs.
	vectorizing atomic.Bool
	started     time.Time
}

// New builds the server and its routes.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = service.DefaultBatchSize
	}
	s := &Server{deps: deps, logger: logger, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /items/{code}", s.handleGetItem)
	mux.HandleFunc("POST /vectorize", s.handleVectorize)
	mux.HandleFunc("GET /stats", s.handleStats)

	s.handler = Chain(mux, Recover(logger), Logger(logger), OTel("pricecat"))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Minute, // vectorize runs synchronously
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// EnableAutoVectorize runs the pipeline whenever a job completes. A
// completion arriving while a run is in progress is dropped; the running
// traversal or the next one picks up its rows.
func (s *Server) EnableAutoVectorize(nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := events.SubscribeJobs(nc, events.JobCompleted, s.onJobCompleted)
	if err != nil {
		return nil, fmt.Errorf("subscribe job completions: %w", err)
	}
	s.logger.Info("auto-vectorize enabled", "subject", events.SubjectPrefix+string(events.JobCompleted))
	return sub, nil
}

func (s *Server) onJobCompleted(ctx context.Context, ev events.JobEvent) {
	if !s.vectorizing.CompareAndSwap(false, true) {
		s.logger.Info("auto-vectorize: run already in progress", "job_id", ev.JobID)
		return
	}
	go func() {
		defer s.vectorizing.Store(false)
		summary, err := s.deps.Vectorize.Execute(context.WithoutCancel(ctx), service.VectorizeOptions{BatchSize: s.deps.BatchSize})
		if err != nil {
			s.logger.Error("auto-vectorize failed", "job_id", ev.JobID, "error", err)
			return
		}
		s.logger.Info("auto-vectorize finished", "job_id", ev.JobID,
			"processed", summary.Processed, "embedded", summary.Embedded, "failed_batches", summary.FailedBatches)
	}()
}

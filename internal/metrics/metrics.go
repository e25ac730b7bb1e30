// Package metrics holds the process-wide Prometheus collectors and the small
// HTTP server that exposes them.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebot_requests_total",
		Help: "Handled bot updates by command and outcome",
	}, []string{"command", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quotebot_request_duration_seconds",
		Help:    "Handler latency by command",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	QuotesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quotebot_quotes_delivered_total",
		Help: "Quotes sent to users",
	})

	CacheRefills = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quotebot_cache_refills_total",
		Help: "Prefetch buffer refills",
	})

	CacheExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quotebot_cache_exhausted_total",
		Help: "Refills that found no unseen quote",
	})

	CacheSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "quotebot_cache_sessions",
		Help: "Live per-user prefetch sessions",
	})

	WriterQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quotebot_writer_queue_depth",
		Help: "Pending operations in the serialized writer",
	}, []string{"writer"})

	WriterTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebot_writer_timeouts_total",
		Help: "Write operations that timed out",
	}, []string{"writer"})

	IngestedQuotes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quotebot_ingested_quotes_total",
		Help: "Quotes processed by ingestion, by outcome",
	}, []string{"outcome"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quotebot_source_request_duration_seconds",
		Help:    "Latency of quote source requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// MustRegister registers all collectors.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RequestsTotal,
		RequestDuration,
		QuotesDelivered,
		CacheRefills,
		CacheExhausted,
		CacheSessions,
		WriterQueueDepth,
		WriterTimeouts,
		IngestedQuotes,
		SourceRequestDuration,
	)
}

// ObserveSourceRequest records the duration and status of a source call.
func ObserveSourceRequest(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SourceRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// NewRouter returns the chi router serving /metrics and /healthz.
func NewRouter(gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Server exposes the metrics router until its context ends.
type Server struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: NewRouter(gatherer),
		logger:  logger,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server started", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("metrics server shutdown failed", "error", err)
	}
	s.logger.Info("stopping metrics server")
	return ctx.Err()
}

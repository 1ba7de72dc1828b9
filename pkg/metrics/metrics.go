package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_events_total",
		Help: "Change-feed events received, by table, operation and result.",
	}, []string{"table", "op", "result"})

	mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_mutations_total",
		Help: "Optimistic mutations, by kind and how they settled.",
	}, []string{"kind", "result"})

	revalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_revalidations_total",
		Help: "Feed and comment revalidations, by reason.",
	}, []string{"reason"})

	reconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_reconnects_total",
		Help: "Change-feed stream reconnect attempts, by relation.",
	}, []string{"relation"})

	staleChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_stale_channels",
		Help: "Channels whose change feed is currently disconnected.",
	})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_http_request_duration_seconds",
		Help:    "Duration of REST requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "method", "path", "status"})
)

// MustRegister registers the package collectors once.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			eventsTotal,
			mutationsTotal,
			revalidationsTotal,
			reconnectsTotal,
			staleChannels,
			httpRequestDuration,
		)
	})
}

func ObserveEvent(table string, op string, result string) {
	eventsTotal.WithLabelValues(table, op, result).Inc()
}

func ObserveMutation(kind string, result string) {
	mutationsTotal.WithLabelValues(kind, result).Inc()
}

func ObserveRevalidation(reason string) {
	revalidationsTotal.WithLabelValues(reason).Inc()
}

func ObserveReconnect(relation string) {
	reconnectsTotal.WithLabelValues(relation).Inc()
}

// StaleChanged moves the stale channel gauge up or down by one.
func StaleChanged(stale bool) {
	if stale {
		staleChannels.Inc()
	} else {
		staleChannels.Dec()
	}
}

// StartServer serves /metrics on addr until ctx is done.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency for a chi router.
func Middleware(component string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			httpRequestDuration.WithLabelValues(
				component,
				r.Method,
				path,
				strconv.Itoa(rec.status),
			).Observe(time.Since(start).Seconds())
		})
	}
}

package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// One instance is created per Server so tests can inject a fresh registry.
type serverMetrics struct {
	// chatRequestsTotal counts /api/chat requests by outcome and mode.
	chatRequestsTotal *prometheus.CounterVec
	// chatDurationSeconds records retrieval plus completion time.
	chatDurationSeconds *prometheus.HistogramVec

	// uploadRequestsTotal counts /api/upload requests by outcome and mode.
	uploadRequestsTotal *prometheus.CounterVec
	// uploadDurationSeconds records indexing or summarising time per mode.
	uploadDurationSeconds *prometheus.HistogramVec

	// feedbackTotal counts votes, partitioned by "up" or "down".
	feedbackTotal *prometheus.CounterVec

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux.
	httpRequestsTotal *prometheus.CounterVec
	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// registerFeedbackGauges exposes the persisted vote totals as
// raggpt_feedback_recorded_votes{vote}. The store is queried on every scrape.
func registerFeedbackGauges(reg prometheus.Registerer, store FeedbackCounter, log *slog.Logger) {
	factory := promauto.With(reg)
	count := func(up bool) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			u, d, err := store.FeedbackCounts(ctx)
			if err != nil {
				log.Warn("server: feedback totals unavailable", slog.Any("error", err))
				return 0
			}
			if up {
				return float64(u)
			}
			return float64(d)
		}
	}
	for _, vote := range []string{"up", "down"} {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "raggpt",
			Subsystem:   "feedback",
			Name:        "recorded_votes",
			Help:        "Votes persisted in the history store, partitioned by direction.",
			ConstLabels: prometheus.Labels{"vote": vote},
		}, count(vote == "up"))
	}
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome and mode.",
		}, []string{"outcome", "mode"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggpt",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		uploadRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /api/upload requests completed, partitioned by outcome and mode.",
		}, []string{"outcome", "mode"}),

		uploadDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggpt",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of indexing or summarising an upload.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),

		feedbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "feedback",
			Name:      "votes_total",
			Help:      "Total number of response votes, partitioned by direction.",
		}, []string{"vote"}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-IP rate limiter.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggpt",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

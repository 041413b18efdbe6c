package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tvfeed"

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_fetch_total",
		Help:      "Historical fetches, partitioned by outcome (ok, empty, timeout, error).",
	}, []string{"outcome"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "history_fetch_duration_seconds",
		Help:      "Wall time of one historical fetch including connect and handshake.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms -> ~25s
	})

	FramesInTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_in_total",
		Help:      "Inbound protocol frames by kind (heartbeat, message, other).",
	}, []string{"kind"})

	AuthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_total",
		Help:      "Sign-in attempts by result (token, anonymous).",
	}, []string{"result"})

	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_total",
		Help:      "Subscription polls by outcome (delivered, stale, gave_up, dropped).",
	}, []string{"outcome"})

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions",
		Help:      "Active live subscriptions.",
	})

	Consumers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consumers",
		Help:      "Attached consumers across all subscriptions.",
	})

	DeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivered_total",
		Help:      "Bars handed to consumer callbacks.",
	})

	ConsumerDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_dropped_total",
		Help:      "Bars not delivered to a consumer, by reason (full, detached).",
	}, []string{"why"})

	ConsumerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_panics_total",
		Help:      "Consumer callbacks that panicked.",
	})

	CacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_cache_total",
		Help:      "History cache lookups by result (fresh, stale, miss).",
	}, []string{"result"})
)

// ObserveFetch records one finished historical fetch.
func ObserveFetch(outcome string, seconds float64) {
	FetchTotal.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(seconds)
}

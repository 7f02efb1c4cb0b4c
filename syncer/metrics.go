package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cycles   *prometheus.CounterVec
	skipped  prometheus.Counter
	duration prometheus.Histogram
	posts    prometheus.Gauge
	indexed  prometheus.Gauge
	evicted  prometheus.Counter
	online   prometheus.Gauge
}

// newMetrics builds the sync collectors. A nil registerer leaves them
// unregistered, which keeps tests free of global state.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsmirror",
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Completed sync cycles by outcome.",
		}, []string{"outcome"}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "newsmirror",
			Subsystem: "sync",
			Name:      "skipped_total",
			Help:      "Sync requests dropped because a cycle was already running.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsmirror",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Wall time of a sync cycle.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		posts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsmirror",
			Subsystem: "store",
			Name:      "posts",
			Help:      "Posts held in the cache.",
		}),
		indexed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsmirror",
			Subsystem: "search",
			Name:      "entries",
			Help:      "Entries in the search index.",
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "newsmirror",
			Subsystem: "store",
			Name:      "evicted_posts_total",
			Help:      "Posts dropped by the retention pass.",
		}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsmirror",
			Subsystem: "upstream",
			Name:      "online",
			Help:      "1 when the last status check succeeded.",
		}),
	}
}

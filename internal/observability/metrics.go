package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	workerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provectl",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Dispatched worker requests by tag and outcome.",
		},
		[]string{"tag", "outcome", "kind"},
	)
	workerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "provectl",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Worker request duration in seconds.",
			// proving runs from milliseconds to minutes
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 12),
		},
		[]string{"tag"},
	)
	keyCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provectl",
			Subsystem: "keycache",
			Name:      "lookups_total",
			Help:      "Key cache ensure lookups by path and result.",
		},
		[]string{"path", "result"},
	)
	keyCacheSyntheses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provectl",
			Subsystem: "keycache",
			Name:      "syntheses_total",
			Help:      "Key pair syntheses by path.",
		},
		[]string{"path"},
	)
	networkRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provectl",
			Subsystem: "network",
			Name:      "requests_total",
			Help:      "Outbound network collaborator calls.",
		},
		[]string{"op", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			workerRequests,
			workerDuration,
			keyCacheLookups,
			keyCacheSyntheses,
			networkRequests,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordWorkerRequest counts one dispatched request. kind is empty on success.
func RecordWorkerRequest(tag, outcome, kind string, duration time.Duration) {
	RegisterMetrics()
	workerRequests.WithLabelValues(tag, outcome, kind).Inc()
	workerDuration.WithLabelValues(tag).Observe(duration.Seconds())
}

func RecordKeyCacheLookup(path string, hit bool) {
	RegisterMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	keyCacheLookups.WithLabelValues(path, result).Inc()
}

func RecordKeyCacheSynthesis(path string) {
	RegisterMetrics()
	keyCacheSyntheses.WithLabelValues(path).Inc()
}

func RecordNetworkRequest(op string, success bool) {
	RegisterMetrics()
	networkRequests.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

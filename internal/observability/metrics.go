package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	serverRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srvd",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests answered by the daemon, by service type and status.",
		},
		[]string{"service", "status"},
	)
	serverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srvd",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time from accepted connection to written response.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	serverConnErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srvd",
			Subsystem: "server",
			Name:      "connection_errors_total",
			Help:      "Connections dropped before a response was written, by stage.",
		},
		[]string{"stage"},
	)
	serverActiveConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "srvd",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		},
	)
	clientQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srvd",
			Subsystem: "client",
			Name:      "queries_total",
			Help:      "Client queries by resulting status.",
		},
		[]string{"status"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "srvd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "srvd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			serverRequests,
			serverDuration,
			serverConnErrors,
			serverActiveConns,
			clientQueries,
			httpRequests,
			httpDuration,
		)
	})
}

// RecordRequest counts one answered request. service and status are the
// numeric wire values.
func RecordRequest(service uint16, status string, duration time.Duration) {
	RegisterMetrics()
	serviceLabel := strconv.Itoa(int(service))
	serverRequests.WithLabelValues(serviceLabel, status).Inc()
	serverDuration.WithLabelValues(serviceLabel).Observe(duration.Seconds())
}

func RecordConnectionError(stage string) {
	RegisterMetrics()
	serverConnErrors.WithLabelValues(stage).Inc()
}

func ConnectionOpened() {
	RegisterMetrics()
	serverActiveConns.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	serverActiveConns.Dec()
}

func RecordClientQuery(status string) {
	RegisterMetrics()
	clientQueries.WithLabelValues(status).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// TransitionsTotal counts lifecycle actions by action and result.
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trashdrop",
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Total number of lifecycle actions attempted, labeled by action and result.",
	}, []string{"action", "result"})

	// ValidationWarningsTotal counts requests created with validation warnings.
	ValidationWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trashdrop",
		Subsystem: "requests",
		Name:      "validation_warnings_total",
		Help:      "Total number of requests created despite validation warnings.",
	})

	// SyncTotal counts pushes to the remote store by outcome.
	SyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trashdrop",
		Subsystem: "sync",
		Name:      "push_total",
		Help:      "Total number of request pushes to the remote store, labeled by result.",
	}, []string{"result"})

	// SyncPending is the number of cached requests waiting for the remote store.
	SyncPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trashdrop",
		Subsystem: "sync",
		Name:      "pending",
		Help:      "Number of cached requests not yet confirmed by the remote store.",
	})

	// SyncLastRunSeconds is a unix timestamp (seconds) of the last reconciliation.
	SyncLastRunSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trashdrop",
		Subsystem: "sync",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last reconciliation pass.",
	})

	// PublishErrorsTotal counts event publishing failures by sink.
	PublishErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trashdrop",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Total number of event publishing failures, labeled by sink.",
	}, []string{"sink"})

	// WebsocketClients is the number of connected notification clients.
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trashdrop",
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Number of connected websocket clients.",
	})
)

// Register registers the metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			TransitionsTotal,
			ValidationWarningsTotal,
			SyncTotal,
			SyncPending,
			SyncLastRunSeconds,
			PublishErrorsTotal,
			WebsocketClients,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}

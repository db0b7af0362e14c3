package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	instance *Metrics
	once     sync.Once
)

// Metrics holds the Prometheus collectors of both binaries.
type Metrics struct {
	// Bus
	BusMessages        *prometheus.CounterVec
	BusHandlerFailures *prometheus.CounterVec

	// Router and delivery
	Broadcasts        *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	ActiveConnections prometheus.Gauge

	// Listeners
	ListenerMessages *prometheus.CounterVec

	// Worker
	TasksProcessed  *prometheus.CounterVec
	VersionDuration *prometheus.HistogramVec
}

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		BusMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_bus_messages_total",
			Help: "Messages handled by the command/event bus",
		}, []string{"kind"}),
		BusHandlerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_bus_handler_failures_total",
			Help: "Bus handler errors and recovered panics",
		}, []string{"kind"}),
		Broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_router_broadcasts_total",
			Help: "Events broadcast to or received from the pub/sub channel",
		}, []string{"direction"}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_router_deliveries_total",
			Help: "Per-connection delivery attempts",
		}, []string{"outcome"}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "picpipe_active_connections",
			Help: "Open websocket connections on this process",
		}),
		ListenerMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_listener_messages_total",
			Help: "Messages consumed by background listeners",
		}, []string{"listener", "outcome"}),
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "picpipe_worker_tasks_total",
			Help: "Resize tasks finished by the worker",
		}, []string{"state"}),
		VersionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "picpipe_worker_version_duration_seconds",
			Help:    "Time to produce one derived version",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"version"}),
	}
}

// Handler serves the default registry, registering the collectors first.
func Handler() http.Handler {
	Get()
	return promhttp.Handler()
}

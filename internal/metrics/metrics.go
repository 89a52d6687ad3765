// Package metrics exports collaboration and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liveroom/internal/collab"
	"liveroom/pkg/types"
)

const namespace = "liveroom"

// Metrics owns a private registry so several instances can coexist in tests.
// It implements collab.Observer.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	roomsActive       *prometheus.GaugeVec
	roomsStale        prometheus.Gauge
	messagesRelayed   *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	deliveries        prometheus.Counter
	sweepRuns         prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	httpInFlight      prometheus.Gauge
	httpResponseBytes *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of connected sessions",
		}),
		roomsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of live rooms by room type",
		}, []string{"room_type"}),
		roomsStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_stale",
			Help:      "Rooms idle past the sweep threshold at the last sweep",
		}),
		messagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Inbound messages relayed to a room, by inbound type",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages or frames dropped, by reason",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames handed to recipient sockets by relays",
		}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Completed maintenance sweeps",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests",
		}),
		httpResponseBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "Size of HTTP responses in bytes",
			Buckets:   prometheus.ExponentialBuckets(200, 2, 8),
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsActive,
		m.roomsActive,
		m.roomsStale,
		m.messagesRelayed,
		m.messagesDropped,
		m.deliveries,
		m.sweepRuns,
		m.httpRequests,
		m.httpLatency,
		m.httpInFlight,
		m.httpResponseBytes,
	)
	return m
}

// Registry exposes the underlying registry for extra collectors and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchGauge registers a gauge sampled from fn on every scrape.
func (m *Metrics) WatchGauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionOpened() { m.sessionsActive.Inc() }
func (m *Metrics) SessionClosed() { m.sessionsActive.Dec() }

func (m *Metrics) RoomCreated(roomType types.RoomType) {
	m.roomsActive.WithLabelValues(string(roomType)).Inc()
}

func (m *Metrics) RoomDeleted(roomType types.RoomType) {
	m.roomsActive.WithLabelValues(string(roomType)).Dec()
}

func (m *Metrics) MessageRelayed(msgType string, recipients int) {
	m.messagesRelayed.WithLabelValues(msgType).Inc()
	m.deliveries.Add(float64(recipients))
}

func (m *Metrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// SweepCompleted records the outcome of one maintenance pass.
func (m *Metrics) SweepCompleted(staleRooms int) {
	m.roomsStale.Set(float64(staleRooms))
	m.sweepRuns.Inc()
}

var _ collab.Observer = (*Metrics)(nil)

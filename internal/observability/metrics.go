// README: Prometheus collectors for the relay, route engine, map adapter and position source.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "track_relay_connections",
		Help: "Open websocket connections on the relay",
	})
	RelayRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "track_relay_rooms",
		Help: "Tracking rooms currently alive",
	})
	SamplesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_samples_published_total",
		Help: "Position samples accepted by the relay",
	})
	SamplesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_samples_delivered_total",
		Help: "Position samples queued to subscribers",
	})
	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "track_samples_dropped_total",
		Help: "Position samples dropped by the relay, by reason",
	}, []string{"reason"})
	RouteFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "track_route_fallbacks_total",
		Help: "Route computations that degraded to the straight-line estimate, by reason",
	}, []string{"reason"})
	RouteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "track_route_latency_seconds",
		Help:    "Latency of directions lookups",
		Buckets: prometheus.DefBuckets,
	})
	StaleRoutes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_stale_routes_discarded_total",
		Help: "Route results discarded because a newer rider position arrived",
	})
	RenderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "track_render_errors_total",
		Help: "Map rendering failures absorbed by the adapter, by operation",
	}, []string{"op"})
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "track_source_errors_total",
		Help: "Position source failures, by kind",
	}, []string{"kind"})
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "track_source_publish_failures_total",
		Help: "Fire-and-forget publishes that failed on the rider side",
	})
)

func ObserveRouteLatency(start time.Time) {
	RouteLatency.Observe(time.Since(start).Seconds())
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_ticks_total", Help: "Ticks accepted by the sampler"},
		[]string{"symbol"},
	)
	TicksRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "analytics_ticks_rejected_total", Help: "Ticks rejected by the sampler"},
	)
	WindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_windows_total", Help: "Closed windows"},
		[]string{"symbol", "synthetic"},
	)
	BoundaryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_boundary_duration_seconds",
			Help:    "Time to compute snapshots for one flush boundary",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)
	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_alerts_fired_total", Help: "Alert triggers fired"},
		[]string{"symbol", "metric"},
	)
	VolatilityFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_volatility_fallback_total", Help: "Snapshots using realized volatility"},
		[]string{"symbol"},
	)
	PersistenceBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "analytics_persistence_backlog", Help: "Pending persistence writes"},
	)
	PersistenceDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_persistence_dropped_total", Help: "Persistence writes dropped"},
		[]string{"reason"},
	)
	FeedConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "analytics_feed_connected", Help: "1 while the tick feed is connected"},
	)
	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "analytics_feed_reconnects_total", Help: "Tick feed reconnect attempts"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksRejectedTotal,
		WindowsTotal,
		BoundaryDuration,
		AlertsFiredTotal,
		VolatilityFallbackTotal,
		PersistenceBacklog,
		PersistenceDroppedTotal,
		FeedConnected,
		FeedReconnectsTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

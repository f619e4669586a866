// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	eventsPublished  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	EventsBroadcast  prometheus.Counter
	FeedReconnects   prometheus.Counter
	CounterDebounces prometheus.Counter
	GiveawayJoins    prometheus.Counter
	TimedMessages    prometheus.Counter

	// Histograms (seconds)
	BroadcastDuration prometheus.Observer

	// Gauges
	OverlayClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_events_published_total", Help: "Events accepted onto the bus"}, []string{"type"})
		eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_events_dropped_total", Help: "Events dropped because the bus was full"}, []string{"type"})
		EventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_events_broadcast_total", Help: "Events broadcast to overlay clients"})
		FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_feed_reconnects_total", Help: "Reconnect attempts scheduled by the feed client"})
		CounterDebounces = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_counter_debounces_total", Help: "Counter updates refused inside the debounce window"})
		GiveawayJoins = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_giveaway_joins_total", Help: "Accepted giveaway entries"})
		TimedMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_timed_messages_total", Help: "Timed messages dispatched by the minutely job"})
		BroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "herald_broadcast_duration_seconds", Help: "Hub broadcast fan-out duration seconds", Buckets: prometheus.DefBuckets})
		OverlayClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "herald_overlay_clients", Help: "Currently connected overlay clients"})
	})
}

// EventPublished records an accepted event by type. Safe before Init (no-op).
func EventPublished(typ string) {
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(typ).Inc()
	}
}

// EventDropped records a dropped event by type. Safe before Init (no-op).
func EventDropped(typ string) {
	if eventsDropped != nil {
		eventsDropped.WithLabelValues(typ).Inc()
	}
}

// SetOverlayClients records the current hub client count.
func SetOverlayClients(n int) {
	if OverlayClientsGauge != nil {
		OverlayClientsGauge.Set(float64(n))
	}
}

// EventBroadcast records one hub fan-out. Safe before Init (no-op).
func EventBroadcast() {
	if EventsBroadcast != nil {
		EventsBroadcast.Inc()
	}
}

// FeedReconnect records a scheduled feed reconnect. Safe before Init (no-op).
func FeedReconnect() {
	if FeedReconnects != nil {
		FeedReconnects.Inc()
	}
}

// CounterDebounce records a counter update refused inside the debounce
// window. Safe before Init (no-op).
func CounterDebounce() {
	if CounterDebounces != nil {
		CounterDebounces.Inc()
	}
}

// GiveawayJoin records an accepted giveaway entry. Safe before Init (no-op).
func GiveawayJoin() {
	if GiveawayJoins != nil {
		GiveawayJoins.Inc()
	}
}

// TimedMessage records a dispatched timed message. Safe before Init (no-op).
func TimedMessage() {
	if TimedMessages != nil {
		TimedMessages.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

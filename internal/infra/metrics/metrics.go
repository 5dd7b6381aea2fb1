package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_messages_total", Help: "Feed messages by event type"},
		[]string{"event_type"},
	)
	DroppedMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_messages_dropped_total", Help: "Messages dropped due to a full ingest queue"})
	WSReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ws_reconnects_total", Help: "WebSocket reconnect attempts"})
	BookRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "book_rebuilds_total", Help: "Full book snapshot applications"})
	DeltasAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "book_deltas_applied_total", Help: "Price change deltas routed to books"})
	FlushBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "store_flush_batches_total", Help: "Raw event batches flushed to storage"})
	FlushRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "store_flush_rows_total", Help: "Raw event rows flushed to storage"})
	TrackedEngines = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tracked_book_engines", Help: "Live (market, asset) book engines"})
)

// Init builds a registry with all package metrics plus the standard Go and
// process collectors.
func Init() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		MessagesTotal, DroppedMessagesTotal, WSReconnectsTotal,
		BookRebuildsTotal, DeltasAppliedTotal,
		FlushBatchesTotal, FlushRowsTotal, TrackedEngines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the registry over HTTP.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/feed/polymarket"
	"github.com/almastelek/PredMrkt/internal/infra/metrics"
	"github.com/almastelek/PredMrkt/internal/storage"
)

// Manager consumes raw feed events, routes them into the book aggregator,
// and persists the untouched payloads to the event log in batches.
//
// It is the single writer: everything downstream of Inbox() runs on the
// one goroutine inside Run, so the aggregator and batch buffer need no
// locking.
type Manager struct {
	store      *storage.Store
	aggregator *book.Aggregator

	batchSize     int
	flushInterval time.Duration

	inbox chan polymarket.RawEvent
	batch []storage.RawEventRow

	msgCount atomic.Int64
	startTS  time.Time
}

// Config tunes the manager.
type Config struct {
	EventBatchSize int
	FlushInterval  time.Duration
	InboxSize      int
}

// NewManager wires a manager to its store and aggregator.
func NewManager(store *storage.Store, agg *book.Aggregator, cfg Config) *Manager {
	if cfg.EventBatchSize <= 0 {
		cfg.EventBatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 4096
	}
	return &Manager{
		store:         store,
		aggregator:    agg,
		batchSize:     cfg.EventBatchSize,
		flushInterval: cfg.FlushInterval,
		inbox:         make(chan polymarket.RawEvent, cfg.InboxSize),
		batch:         make([]storage.RawEventRow, 0, cfg.EventBatchSize),
	}
}

// Inbox is where the WS stream (or any producer) drops raw events.
func (m *Manager) Inbox() chan<- polymarket.RawEvent { return m.inbox }

// Aggregator exposes the live books for read-side consumers. Only safe to
// touch from the Run goroutine or after Run has returned.
func (m *Manager) Aggregator() *book.Aggregator { return m.aggregator }

// Run is the sequencer loop. It exits when ctx is cancelled, flushing any
// buffered rows first.
func (m *Manager) Run(ctx context.Context) error {
	m.startTS = time.Now()
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flush()
			slog.Info("ingestion stopped", "total_messages", m.msgCount.Load())
			return ctx.Err()

		case ev := <-m.inbox:
			m.handleRaw(ev)
			if len(m.batch) >= m.batchSize {
				m.flush()
			}

		case <-ticker.C:
			m.flush()
		}
	}
}

// handleRaw splits a frame into events, applies each to the books, and
// queues the raw rows for persistence.
func (m *Manager) handleRaw(ev polymarket.RawEvent) {
	for _, payload := range polymarket.SplitEvents(ev.Payload) {
		msg, ok := polymarket.Decode(payload)
		if !ok {
			continue
		}
		m.msgCount.Add(1)
		m.route(msg, ev.IngestTS)

		eventType := msg.EventType
		if eventType == "" {
			eventType = "unknown"
		}
		metrics.MessagesTotal.WithLabelValues(eventType).Inc()

		m.batch = append(m.batch, storage.RawEventRow{
			Venue:      "polymarket",
			Channel:    "market",
			EventType:  eventType,
			MarketID:   msg.ResolvedMarketID(),
			AssetID:    msg.AssetID,
			ExchangeTS: msg.ExchangeTS(),
			IngestTS:   ev.IngestTS,
			Payload:    payload,
		})
	}
}

func (m *Manager) route(msg *polymarket.Message, ingestTS int64) {
	switch msg.EventType {
	case polymarket.EventBook:
		if snap, ok := polymarket.ParseBook(msg, ingestTS); ok {
			m.aggregator.ApplySnapshot(snap)
			metrics.BookRebuildsTotal.Inc()
			metrics.TrackedEngines.Set(float64(m.aggregator.Len()))
		}
	case polymarket.EventPriceChange:
		for _, d := range polymarket.ParsePriceChanges(msg, ingestTS) {
			m.aggregator.ApplyDelta(d)
			metrics.DeltasAppliedTotal.Inc()
		}
		metrics.TrackedEngines.Set(float64(m.aggregator.Len()))
	}
	// Trade prints are logged raw only; nothing to apply to a book.
}

func (m *Manager) flush() {
	if len(m.batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.store.AppendRawEvents(ctx, m.batch); err != nil {
		slog.Error("flush failed, dropping batch", "rows", len(m.batch), "err", err)
	} else {
		metrics.FlushBatchesTotal.Inc()
		metrics.FlushRowsTotal.Add(float64(len(m.batch)))
	}
	m.batch = m.batch[:0]
}

// Status reports throughput counters.
type Status struct {
	MsgCount   int64
	ElapsedSec float64
	MsgsPerSec float64
}

// Status is safe to call from any goroutine.
func (m *Manager) Status() Status {
	count := m.msgCount.Load()
	elapsed := time.Since(m.startTS).Seconds()
	st := Status{MsgCount: count, ElapsedSec: elapsed}
	if elapsed > 0 {
		st.MsgsPerSec = float64(count) / elapsed
	}
	return st
}

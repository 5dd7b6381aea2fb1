package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/feed/polymarket"
	"github.com/almastelek/PredMrkt/internal/storage"
)

func newTestManager(t *testing.T, batchSize int) (*Manager, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := NewManager(store, book.NewAggregator(), Config{
		EventBatchSize: batchSize,
		FlushInterval:  50 * time.Millisecond,
	})
	return m, store
}

func runManager(t *testing.T, m *Manager) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestManager_RoutesAndPersists(t *testing.T) {
	m, store := newTestManager(t, 1)
	stop := runManager(t, m)

	m.Inbox() <- polymarket.RawEvent{
		Payload: []byte(`{
			"event_type": "book",
			"market": "0xabc",
			"asset_id": "tok1",
			"bids": [{"price": "0.45", "size": "100"}],
			"asks": [{"price": "0.55", "size": "80"}]
		}`),
		IngestTS: 1000,
	}
	m.Inbox() <- polymarket.RawEvent{
		Payload: []byte(`{
			"event_type": "price_change",
			"market": "0xabc",
			"price_changes": [
				{"asset_id": "tok1", "side": "BUY", "price": "0.46", "size": "20"}
			]
		}`),
		IngestTS: 2000,
	}

	// Wait for the loop to drain and flush, then stop.
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().MsgCount < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	e, ok := m.Aggregator().Engine("0xabc", "tok1")
	if !ok {
		t.Fatal("no engine after book event")
	}
	if bb, _ := e.BestBid(); bb != 0.46 {
		t.Errorf("best bid = %v; want 0.46", bb)
	}

	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEvents != 2 {
		t.Errorf("persisted events = %d; want 2", st.TotalEvents)
	}
}

func TestManager_SplitsArrayFrames(t *testing.T) {
	m, store := newTestManager(t, 1)
	stop := runManager(t, m)

	m.Inbox() <- polymarket.RawEvent{
		Payload: []byte(`[
			{"event_type": "book", "market": "m1", "asset_id": "a1",
			 "bids": [{"price": "0.3", "size": "1"}], "asks": []},
			{"event_type": "book", "market": "m1", "asset_id": "a2",
			 "bids": [], "asks": [{"price": "0.7", "size": "2"}]}
		]`),
		IngestTS: 500,
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Status().MsgCount < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	if m.Aggregator().Len() != 2 {
		t.Errorf("engines = %d; want 2", m.Aggregator().Len())
	}
	st, _ := store.Stats(context.Background())
	if st.TotalEvents != 2 {
		t.Errorf("persisted events = %d; want 2", st.TotalEvents)
	}
}

func TestManager_IgnoresKeepalives(t *testing.T) {
	m, store := newTestManager(t, 1)
	stop := runManager(t, m)

	m.Inbox() <- polymarket.RawEvent{Payload: []byte("PONG"), IngestTS: 1}
	time.Sleep(100 * time.Millisecond)
	stop()

	if got := m.Status().MsgCount; got != 0 {
		t.Errorf("msg count = %d; want 0", got)
	}
	st, _ := store.Stats(context.Background())
	if st.TotalEvents != 0 {
		t.Errorf("persisted events = %d; want 0", st.TotalEvents)
	}
}

func TestManager_FinalFlushOnStop(t *testing.T) {
	// Large batch size so nothing flushes until shutdown.
	m, store := newTestManager(t, 1000)
	stop := runManager(t, m)

	m.Inbox() <- polymarket.RawEvent{
		Payload:  []byte(`{"event_type": "last_trade_price", "market": "m", "asset_id": "a", "side": "BUY", "price": "0.5", "size": "1"}`),
		IngestTS: 9,
	}
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().MsgCount < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	st, _ := store.Stats(context.Background())
	if st.TotalEvents != 1 {
		t.Errorf("persisted events = %d; want 1", st.TotalEvents)
	}
}

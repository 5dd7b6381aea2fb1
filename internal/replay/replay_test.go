package replay

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/almastelek/PredMrkt/internal/storage"
)

func seedStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rows := []storage.RawEventRow{
		{
			Venue: "polymarket", Channel: "market", EventType: "book",
			MarketID: "0xabc", AssetID: "tok1", IngestTS: 1000,
			Payload: []byte(`{"event_type":"book","market":"0xabc","asset_id":"tok1",
				"bids":[{"price":"0.40","size":"10"}],
				"asks":[{"price":"0.60","size":"10"}]}`),
		},
		{
			Venue: "polymarket", Channel: "market", EventType: "price_change",
			MarketID: "0xabc", AssetID: "tok1", IngestTS: 1500,
			Payload: []byte(`{"event_type":"price_change","market":"0xabc",
				"price_changes":[{"asset_id":"tok1","side":"BUY","price":"0.50","size":"5","best_bid":"0.50"}]}`),
		},
		{
			Venue: "polymarket", Channel: "market", EventType: "price_change",
			MarketID: "0xabc", AssetID: "tok1", IngestTS: 2600,
			Payload: []byte(`{"event_type":"price_change","market":"0xabc",
				"price_changes":[{"asset_id":"tok1","side":"SELL","price":"0.60","size":"0"}]}`),
		},
	}
	if err := s.AppendRawEvents(context.Background(), rows); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestRebuild(t *testing.T) {
	r := New(seedStore(t))
	agg, err := r.Rebuild(context.Background(), Options{MarketID: "abc", AssetID: "tok1"})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	e, ok := agg.Engine("0xabc", "tok1")
	if !ok {
		t.Fatal("engine missing after rebuild")
	}
	if bb, _ := e.BestBid(); bb != 0.50 {
		t.Errorf("best bid = %v; want 0.50", bb)
	}
	// The 0.60 ask was removed by the last delta.
	if _, ok := e.BestAsk(); ok {
		t.Error("ask side should be empty")
	}
}

func TestMidSeries(t *testing.T) {
	r := New(seedStore(t))
	opts := Options{MarketID: "0xabc", AssetID: "tok1"}

	pts, err := r.MidSeries(context.Background(), opts)
	if err != nil {
		t.Fatalf("mid series: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("got %d points; want 3", len(pts))
	}
	// After the snapshot: (0.40+0.60)/2.
	if !pts[0].OK || pts[0].Mid != 0.50 || pts[0].TS != 1000 {
		t.Errorf("point 0 = %+v", pts[0])
	}
	// After the bid moves to 0.50: (0.50+0.60)/2.
	if !pts[1].OK || pts[1].Mid != 0.55 {
		t.Errorf("point 1 = %+v", pts[1])
	}
	// Ask removed, falls back to best bid.
	if !pts[2].OK || pts[2].Mid != 0.50 {
		t.Errorf("point 2 = %+v", pts[2])
	}
}

func TestMidSeries_Deterministic(t *testing.T) {
	r := New(seedStore(t))
	opts := Options{MarketID: "0xabc", AssetID: "tok1"}

	a, err := r.MidSeries(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.MidSeries(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("two replays over the same log must match")
	}
}

func TestChartSeries(t *testing.T) {
	r := New(seedStore(t))
	opts := Options{MarketID: "0xabc", AssetID: "tok1"}

	rows, err := r.ChartSeries(context.Background(), opts, 1000, 5)
	if err != nil {
		t.Fatalf("chart series: %v", err)
	}
	// Events at 1000, 1500 (bucket 1000) and 2600 (bucket 2000).
	if len(rows) != 2 {
		t.Fatalf("got %d rows; want 2: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.TS != 1000 {
		t.Errorf("first bucket ts = %d", first.TS)
	}
	// New bid level of 5 appeared in bucket one: positive flow.
	if first.OFI != 5 {
		t.Errorf("first bucket OFI = %v; want 5", first.OFI)
	}
	if !first.MidOK || first.Mid != 0.55 {
		t.Errorf("first bucket mid = %v", first.Mid)
	}
	if first.DepthBid != 15 || first.DepthAsk != 10 {
		t.Errorf("first bucket depth = %v/%v", first.DepthBid, first.DepthAsk)
	}

	second := rows[1]
	if second.TS != 2000 {
		t.Errorf("second bucket ts = %d", second.TS)
	}
	// Removing the 10-lot ask is +10 flow (ask size change of -10, negated).
	if second.OFI != 10 {
		t.Errorf("second bucket OFI = %v; want 10", second.OFI)
	}
	if second.SpreadOK {
		t.Error("spread should be unavailable with an empty ask side")
	}
}

func TestMidSeries_TimeBounds(t *testing.T) {
	r := New(seedStore(t))
	pts, err := r.MidSeries(context.Background(), Options{
		MarketID: "0xabc", AssetID: "tok1", StartTS: 1200, EndTS: 2000,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Only the 1500 delta is in range; without a snapshot the engine stays
	// gated and has no mid.
	if len(pts) != 1 {
		t.Fatalf("got %d points; want 1", len(pts))
	}
	if pts[0].OK {
		t.Error("gated engine must not report a mid")
	}
}

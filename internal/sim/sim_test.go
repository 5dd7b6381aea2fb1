package sim

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/internal/storage"
)

func TestTouchFillModel(t *testing.T) {
	m := &TouchFillModel{LatencyMs: 50}

	t.Run("buy fills when mid drops to quote", func(t *testing.T) {
		fill, ok := m.CheckFill(Quote{Side: "BUY", Price: 0.45, Size: 10}, 0.44, 1000, "m", "a")
		if !ok {
			t.Fatal("expected fill")
		}
		if fill.Price != 0.45 || fill.Size != 10 || fill.Timestamp != 1050 {
			t.Errorf("fill = %+v", fill)
		}
	})

	t.Run("buy does not fill above quote", func(t *testing.T) {
		if _, ok := m.CheckFill(Quote{Side: "BUY", Price: 0.45, Size: 10}, 0.50, 0, "m", "a"); ok {
			t.Error("unexpected fill")
		}
	})

	t.Run("sell fills when mid rises to quote", func(t *testing.T) {
		if _, ok := m.CheckFill(Quote{Side: "SELL", Price: 0.55, Size: 10}, 0.56, 0, "m", "a"); !ok {
			t.Error("expected fill")
		}
	})

	t.Run("zero size never fills", func(t *testing.T) {
		if _, ok := m.CheckFill(Quote{Side: "BUY", Price: 0.45, Size: 0}, 0.40, 0, "m", "a"); ok {
			t.Error("unexpected fill")
		}
	})
}

func TestPortfolio(t *testing.T) {
	p := NewPortfolio()

	p.ApplyFill(Fill{Side: "BUY", Price: 0.40, Size: 10})
	if p.Inventory() != 10 || p.Cash() != -4 {
		t.Fatalf("after buy: inv=%v cash=%v", p.Inventory(), p.Cash())
	}

	p.ApplyFill(Fill{Side: "SELL", Price: 0.50, Size: 10})
	if p.Inventory() != 0 {
		t.Fatalf("inventory = %v; want 0", p.Inventory())
	}
	// Bought 10 at 0.40, sold 10 at 0.50: realized 1.0.
	if math.Abs(p.RealizedPnL()-1.0) > 1e-9 {
		t.Fatalf("realized = %v; want 1.0", p.RealizedPnL())
	}
	if p.FillCount() != 2 {
		t.Fatalf("fills = %d", p.FillCount())
	}

	// Mark-to-market on an open position.
	p.ApplyFill(Fill{Side: "BUY", Price: 0.50, Size: 4})
	if got := p.UnrealizedPnL(0.75); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("unrealized at 0.75 = %v; want 2.0", got)
	}
}

func TestBasicMM_Quotes(t *testing.T) {
	e := book.New("m", "a")
	e.ApplySnapshot(
		[]domain.PriceLevel{{Price: 0.48, Size: 10}},
		[]domain.PriceLevel{{Price: 0.52, Size: 10}},
	)

	s := NewBasicMM(0.01, 0.001, 10)
	s.OnBookUpdate("m", "a", e)

	quotes := s.Quotes()
	if len(quotes) != 2 {
		t.Fatalf("quotes = %+v", quotes)
	}
	bid, ask := quotes[0], quotes[1]
	if bid.Side != "BUY" || ask.Side != "SELL" {
		t.Fatalf("sides = %s/%s", bid.Side, ask.Side)
	}
	// Mid 0.50, spread 0.04, half 0.02, no inventory.
	if math.Abs(bid.Price-0.48) > 1e-9 || math.Abs(ask.Price-0.52) > 1e-9 {
		t.Errorf("quotes = %v / %v", bid.Price, ask.Price)
	}

	// Long inventory skews both quotes down.
	s.OnTrade(domain.TradePrint{Side: "SELL", Size: 100})
	s.OnBookUpdate("m", "a", e)
	quotes = s.Quotes()
	if quotes[0].Price >= bid.Price || quotes[1].Price >= ask.Price {
		t.Errorf("long inventory should lower quotes: %+v", quotes)
	}
}

func TestBasicMM_NoMidNoQuotes(t *testing.T) {
	e := book.New("m", "a")
	e.ApplySnapshot(nil, nil)

	s := NewBasicMM(0, 0, 0)
	s.OnBookUpdate("m", "a", e)
	if len(s.Quotes()) != 0 {
		t.Error("no quotes expected without a mid price")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	rows := []storage.RawEventRow{
		{
			Venue: "polymarket", Channel: "market", EventType: "book",
			MarketID: "0xabc", AssetID: "tok1", IngestTS: 1000,
			Payload: []byte(`{"event_type":"book","market":"0xabc","asset_id":"tok1",
				"bids":[{"price":"0.48","size":"10"}],
				"asks":[{"price":"0.52","size":"10"}]}`),
		},
		// A large aggressive buy leaves the strategy short, which skews its
		// bid above mid and triggers a touch fill on the next quote update.
		{
			Venue: "polymarket", Channel: "market", EventType: "last_trade_price",
			MarketID: "0xabc", AssetID: "tok1", IngestTS: 1500,
			Payload: []byte(`{"event_type":"last_trade_price","market":"0xabc","asset_id":"tok1",
				"side":"BUY","price":"0.52","size":"100"}`),
		},
	}
	if err := store.AppendRawEvents(ctx, rows); err != nil {
		t.Fatal(err)
	}

	result, err := Run(ctx, store, NewBasicMM(0.01, 0.001, 10), RunOptions{
		MarketID: "abc",
		AssetID:  "tok1",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.EventsProcessed != 2 {
		t.Errorf("events = %d; want 2", result.EventsProcessed)
	}
	if result.FillCount == 0 {
		t.Error("expected at least one fill when mid collapsed through the bid")
	}
	if result.RunID == "" || result.StrategyName != "mm_basic" {
		t.Errorf("result = %+v", result)
	}

	// The run is persisted.
	runs, err := store.ListSimRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RunID != result.RunID {
		t.Errorf("persisted runs = %+v", runs)
	}
}

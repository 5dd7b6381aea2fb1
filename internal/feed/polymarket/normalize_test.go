package polymarket

import (
	"testing"
)

func TestSplitEvents(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		events := SplitEvents([]byte(`{"event_type":"book"}`))
		if len(events) != 1 {
			t.Fatalf("got %d events; want 1", len(events))
		}
	})

	t.Run("array", func(t *testing.T) {
		events := SplitEvents([]byte(`[{"event_type":"book"},{"event_type":"price_change"}]`))
		if len(events) != 2 {
			t.Fatalf("got %d events; want 2", len(events))
		}
	})

	t.Run("empty and garbage", func(t *testing.T) {
		if got := SplitEvents(nil); got != nil {
			t.Errorf("nil input: got %v", got)
		}
		if got := SplitEvents([]byte("  ")); got != nil {
			t.Errorf("blank input: got %v", got)
		}
		if got := SplitEvents([]byte(`[not json`)); got != nil {
			t.Errorf("bad array: got %v", got)
		}
	})
}

func TestDecode_NonJSON(t *testing.T) {
	if _, ok := Decode([]byte("PONG")); ok {
		t.Error("keepalive text must not decode")
	}
}

func TestParseBook(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"market": "0xabc",
		"asset_id": "tok1",
		"timestamp": "1700000000000",
		"bids": [
			{"price": "0.45", "size": "100"},
			{"price": "1.5", "size": "10"},
			{"price": "0.40", "size": "-5"}
		],
		"asks": [{"price": "0.55", "size": "80"}]
	}`)
	msg, ok := Decode(raw)
	if !ok {
		t.Fatal("decode failed")
	}
	snap, ok := ParseBook(msg, 123)
	if !ok {
		t.Fatal("ParseBook returned false")
	}
	if snap.MarketID != "0xabc" || snap.AssetID != "tok1" {
		t.Errorf("ids = (%q, %q)", snap.MarketID, snap.AssetID)
	}
	// Out-of-range price and negative size dropped.
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 0.45 || snap.Bids[0].Size != 100 {
		t.Errorf("bids = %v", snap.Bids)
	}
	if len(snap.Asks) != 1 {
		t.Errorf("asks = %v", snap.Asks)
	}
	if snap.ExchangeTS != 1700000000000 || snap.IngestTS != 123 {
		t.Errorf("ts = (%d, %d)", snap.ExchangeTS, snap.IngestTS)
	}
}

func TestParseBook_LegacyFieldNames(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"market_id": "0xdef",
		"asset_id": "tok2",
		"buys": [{"price": "0.30", "size": "5"}],
		"sells": [{"price": "0.70", "size": "6"}]
	}`)
	msg, _ := Decode(raw)
	snap, ok := ParseBook(msg, 0)
	if !ok {
		t.Fatal("ParseBook returned false")
	}
	if snap.MarketID != "0xdef" {
		t.Errorf("market id = %q", snap.MarketID)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Errorf("levels = %v / %v", snap.Bids, snap.Asks)
	}
}

func TestParseBook_MissingIDs(t *testing.T) {
	msg, _ := Decode([]byte(`{"event_type":"book","asset_id":"tok1"}`))
	if _, ok := ParseBook(msg, 0); ok {
		t.Error("book without a market id must be rejected")
	}
	msg, _ = Decode([]byte(`{"event_type":"book","market":"0xabc"}`))
	if _, ok := ParseBook(msg, 0); ok {
		t.Error("book without an asset id must be rejected")
	}
}

func TestParsePriceChanges(t *testing.T) {
	raw := []byte(`{
		"event_type": "price_change",
		"market": "0xabc",
		"timestamp": "1700000000500",
		"price_changes": [
			{"asset_id": "tok1", "side": "buy", "price": "0.46", "size": "20", "best_bid": "0.46", "best_ask": "0.55"},
			{"asset_id": "tok1", "side": "SELL", "price": "0.55", "size": "0"},
			{"asset_id": "tok1", "side": "HOLD", "price": "0.50", "size": "1"},
			{"asset_id": "tok2", "price": "0.10", "size": "3"}
		]
	}`)
	msg, _ := Decode(raw)
	deltas := ParsePriceChanges(msg, 999)

	// HOLD is skipped; missing side defaults to BUY.
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas; want 3", len(deltas))
	}
	if deltas[0].Side != "BUY" || deltas[0].Price != 0.46 || deltas[0].BestAsk != 0.55 {
		t.Errorf("first delta = %+v", deltas[0])
	}
	if deltas[1].Size != 0 {
		t.Errorf("removal delta size = %v", deltas[1].Size)
	}
	if deltas[2].Side != "BUY" || deltas[2].AssetID != "tok2" {
		t.Errorf("defaulted delta = %+v", deltas[2])
	}
	for _, d := range deltas {
		if d.MarketID != "0xabc" || d.ExchangeTS != 1700000000500 || d.IngestTS != 999 {
			t.Errorf("shared fields wrong: %+v", d)
		}
	}
}

func TestParseLastTrade(t *testing.T) {
	raw := []byte(`{
		"event_type": "last_trade_price",
		"market": "0xabc",
		"asset_id": "tok1",
		"side": "sell",
		"price": "0.52",
		"size": "15",
		"fee_rate_bps": "25",
		"timestamp": "1700000001000"
	}`)
	msg, _ := Decode(raw)
	tp, ok := ParseLastTrade(msg, 42)
	if !ok {
		t.Fatal("ParseLastTrade returned false")
	}
	if tp.Side != "SELL" || tp.Price != 0.52 || tp.Size != 15 || tp.FeeRateBps != 25 {
		t.Errorf("trade = %+v", tp)
	}

	msg, _ = Decode([]byte(`{"event_type":"last_trade_price","market":"m","asset_id":"a","side":"CANCEL"}`))
	if _, ok := ParseLastTrade(msg, 0); ok {
		t.Error("unknown trade side must be rejected")
	}
}

func TestFeedFloat_Garbage(t *testing.T) {
	raw := []byte(`{"event_type":"last_trade_price","market":"m","asset_id":"a","price":"oops","size":null}`)
	msg, ok := Decode(raw)
	if !ok {
		t.Fatal("decode failed")
	}
	tp, ok := ParseLastTrade(msg, 0)
	if !ok {
		t.Fatal("ParseLastTrade returned false")
	}
	if tp.Price != 0 || tp.Size != 0 {
		t.Errorf("garbage numerics should parse to 0, got %+v", tp)
	}
}

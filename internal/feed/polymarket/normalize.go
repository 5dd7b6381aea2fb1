package polymarket

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/pkg/quant"
)

// Event types the CLOB market channel emits.
const (
	EventBook        = "book"
	EventPriceChange = "price_change"
	EventLastTrade   = "last_trade_price"
)

// feedFloat tolerates quoted numbers, nulls, and garbage; anything
// unparseable decodes to 0. The CLOB feed quotes most numerics.
type feedFloat float64

func (f *feedFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*f = feedFloat(quant.ParseFloat(s))
	return nil
}

// feedMillis is a ms epoch timestamp, quoted or bare.
type feedMillis int64

func (m *feedMillis) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*m = feedMillis(quant.ParseMillis(s))
	return nil
}

type wireLevel struct {
	Price feedFloat `json:"price"`
	Size  feedFloat `json:"size"`
}

type wirePriceChange struct {
	AssetID string    `json:"asset_id"`
	Side    string    `json:"side"`
	Price   feedFloat `json:"price"`
	Size    feedFloat `json:"size"`
	BestBid feedFloat `json:"best_bid"`
	BestAsk feedFloat `json:"best_ask"`
}

// Message is one decoded market-channel event. Polymarket has renamed
// fields over time, so both spellings are kept (market/market_id,
// bids/buys, asks/sells).
type Message struct {
	EventType string     `json:"event_type"`
	Market    string     `json:"market"`
	MarketID  string     `json:"market_id"`
	AssetID   string     `json:"asset_id"`
	Timestamp feedMillis `json:"timestamp"`

	Bids  []wireLevel `json:"bids"`
	Buys  []wireLevel `json:"buys"`
	Asks  []wireLevel `json:"asks"`
	Sells []wireLevel `json:"sells"`

	Side       string     `json:"side"`
	Price      feedFloat  `json:"price"`
	Size       feedFloat  `json:"size"`
	FeeRateBps feedMillis `json:"fee_rate_bps"`

	PriceChanges []wirePriceChange `json:"price_changes"`
}

// ResolvedMarketID returns the market id regardless of which field spelling
// the event used.
func (m *Message) ResolvedMarketID() string {
	if m.Market != "" {
		return m.Market
	}
	return m.MarketID
}

// ExchangeTS returns the venue timestamp in ms epoch, 0 when absent.
func (m *Message) ExchangeTS() int64 { return int64(m.Timestamp) }

// SplitEvents flattens one WS frame into individual event payloads. The
// feed sends either a single object or a JSON array of objects.
func SplitEvents(raw []byte) [][]byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '[' {
		return [][]byte{trimmed}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(trimmed, &arr); err != nil {
		return nil
	}
	out := make([][]byte, 0, len(arr))
	for _, e := range arr {
		out = append(out, []byte(e))
	}
	return out
}

// Decode parses one event payload. ok=false for frames that are not JSON
// objects (the feed sends "PONG" and similar keepalive text).
func Decode(payload []byte) (*Message, bool) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// ParseBook converts a "book" event into a full snapshot. Requires both a
// market and an asset id; levels outside [0, 1] or with negative size are
// dropped here, before they reach an engine.
func ParseBook(msg *Message, ingestTS int64) (domain.BookSnapshot, bool) {
	if msg.EventType != EventBook {
		return domain.BookSnapshot{}, false
	}
	marketID := msg.ResolvedMarketID()
	if marketID == "" || msg.AssetID == "" {
		return domain.BookSnapshot{}, false
	}

	bidsRaw := msg.Bids
	if len(bidsRaw) == 0 {
		bidsRaw = msg.Buys
	}
	asksRaw := msg.Asks
	if len(asksRaw) == 0 {
		asksRaw = msg.Sells
	}

	return domain.BookSnapshot{
		MarketID:   marketID,
		AssetID:    msg.AssetID,
		Venue:      domain.DefaultVenue,
		Bids:       normalizeLevels(bidsRaw),
		Asks:       normalizeLevels(asksRaw),
		ExchangeTS: int64(msg.Timestamp),
		IngestTS:   ingestTS,
	}, true
}

func normalizeLevels(raw []wireLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		p, s := float64(lv.Price), float64(lv.Size)
		if p >= 0 && p <= 1 && s >= 0 {
			out = append(out, domain.PriceLevel{Price: p, Size: s})
		}
	}
	return out
}

// ParsePriceChanges converts a "price_change" event into one delta per
// entry. Entries with sides other than BUY/SELL are skipped.
func ParsePriceChanges(msg *Message, ingestTS int64) []domain.BookDelta {
	if msg.EventType != EventPriceChange {
		return nil
	}
	marketID := msg.ResolvedMarketID()
	exchangeTS := int64(msg.Timestamp)

	out := make([]domain.BookDelta, 0, len(msg.PriceChanges))
	for _, pc := range msg.PriceChanges {
		side := strings.ToUpper(pc.Side)
		if side == "" {
			side = domain.SideBuy
		}
		if side != domain.SideBuy && side != domain.SideSell {
			continue
		}
		out = append(out, domain.BookDelta{
			MarketID:   marketID,
			AssetID:    pc.AssetID,
			Venue:      domain.DefaultVenue,
			Side:       side,
			Price:      float64(pc.Price),
			Size:       float64(pc.Size),
			ExchangeTS: exchangeTS,
			IngestTS:   ingestTS,
			BestBid:    float64(pc.BestBid),
			BestAsk:    float64(pc.BestAsk),
		})
	}
	return out
}

// ParseLastTrade converts a "last_trade_price" event into a trade print.
func ParseLastTrade(msg *Message, ingestTS int64) (domain.TradePrint, bool) {
	if msg.EventType != EventLastTrade {
		return domain.TradePrint{}, false
	}
	side := strings.ToUpper(msg.Side)
	if side == "" {
		side = domain.SideBuy
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return domain.TradePrint{}, false
	}
	return domain.TradePrint{
		MarketID:   msg.ResolvedMarketID(),
		AssetID:    msg.AssetID,
		Venue:      domain.DefaultVenue,
		Side:       side,
		Price:      float64(msg.Price),
		Size:       float64(msg.Size),
		ExchangeTS: int64(msg.Timestamp),
		IngestTS:   ingestTS,
		FeeRateBps: int64(msg.FeeRateBps),
	}, true
}

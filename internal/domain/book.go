package domain

// Side values as the venue sends them.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// DefaultVenue tags entities from the Polymarket CLOB feed.
const DefaultVenue = "polymarket"

// PriceLevel is a single (price, resting size) entry in an order book.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot is a full L2 order book for one (market, asset).
// Timestamps are ms epoch, 0 when unknown.
type BookSnapshot struct {
	MarketID   string       `json:"market_id"`
	AssetID    string       `json:"asset_id"`
	Venue      string       `json:"venue"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ExchangeTS int64        `json:"exchange_ts,omitempty"`
	IngestTS   int64        `json:"ingest_ts,omitempty"`
}

// BookDelta is an incremental update to a single price level.
// Size is the absolute resting size after the change; 0 removes the level.
type BookDelta struct {
	MarketID   string  `json:"market_id"`
	AssetID    string  `json:"asset_id"`
	Venue      string  `json:"venue"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	ExchangeTS int64   `json:"exchange_ts,omitempty"`
	IngestTS   int64   `json:"ingest_ts,omitempty"`
	// Venue-reported best prices after this change, 0 when absent.
	BestBid float64 `json:"best_bid,omitempty"`
	BestAsk float64 `json:"best_ask,omitempty"`
}

// TradePrint is an executed trade reported by the venue.
type TradePrint struct {
	MarketID   string  `json:"market_id"`
	AssetID    string  `json:"asset_id"`
	Venue      string  `json:"venue"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	ExchangeTS int64   `json:"exchange_ts,omitempty"`
	IngestTS   int64   `json:"ingest_ts,omitempty"`
	FeeRateBps int64   `json:"fee_rate_bps,omitempty"`
}

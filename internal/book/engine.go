package book

import (
	"strings"

	"github.com/google/btree"

	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/pkg/quant"
)

const levelsDegree = 32

// level is one resting price level, keyed by quantized price.
type level struct {
	key  quant.PriceKey
	size float64
}

func levelLess(a, b level) bool { return a.key < b.key }

func newSide() *btree.BTreeG[level] {
	return btree.NewG(levelsDegree, levelLess)
}

// Engine is an in-memory L2 order book for a single (market, asset).
// Both sides are B-trees ordered ascending by price key; bids read from the
// tail, asks from the head.
//
// The engine is feed-resilient by design: no operation returns an error.
// Malformed snapshot entries are dropped, deltas before the first snapshot
// are ignored, and unrecognized sides default to SELL. None of that may be
// turned into strict validation; callers rely on the permissive behavior
// when upstream data is noisy. Crossed books are accepted and reported
// as-is.
//
// Not safe for concurrent use: each engine is owned by exactly one
// goroutine (the ingest loop live, the replayer offline).
type Engine struct {
	marketID string
	assetID  string

	bids *btree.BTreeG[level]
	asks *btree.BTreeG[level]

	hasSnapshot bool
}

// New creates an empty engine. Identifiers are opaque and immutable.
func New(marketID, assetID string) *Engine {
	return &Engine{
		marketID: marketID,
		assetID:  assetID,
		bids:     newSide(),
		asks:     newSide(),
	}
}

func (e *Engine) MarketID() string { return e.marketID }
func (e *Engine) AssetID() string  { return e.assetID }

// HasSnapshot reports whether at least one snapshot has been applied.
// Deltas are ignored until then.
func (e *Engine) HasSnapshot() bool { return e.hasSnapshot }

// ApplySnapshot replaces the whole book. Entries are kept only when the
// size is non-negative and the price is inside [0, 1]; everything else is
// dropped silently (noisy feeds are tolerated, not rejected). Zero-size
// entries never materialize a level. When two entries quantize to the same
// key the later one wins.
//
// The gate opens unconditionally, even for an empty snapshot: an empty
// book is a valid "flat" state, distinct from "no snapshot yet".
func (e *Engine) ApplySnapshot(bids, asks []domain.PriceLevel) {
	nb := newSide()
	na := newSide()
	for _, lv := range bids {
		if lv.Size > 0 && lv.Price >= 0 && lv.Price <= 1 {
			nb.ReplaceOrInsert(level{key: quant.PriceToKey(lv.Price), size: lv.Size})
		}
	}
	for _, lv := range asks {
		if lv.Size > 0 && lv.Price >= 0 && lv.Price <= 1 {
			na.ReplaceOrInsert(level{key: quant.PriceToKey(lv.Price), size: lv.Size})
		}
	}
	e.bids = nb
	e.asks = na
	e.hasSnapshot = true
}

// ApplyDelta sets the absolute resting size at one price level.
// A non-positive size removes the level (removing an absent level is fine).
// Ignored until the first snapshot has arrived.
//
// Unlike ApplySnapshot, the price is not range-checked here: it clamps
// through quantization and is accepted. The asymmetry mirrors the upstream
// feed contract and is pinned by tests.
func (e *Engine) ApplyDelta(side string, price, size float64) {
	if !e.hasSnapshot {
		return
	}
	tree := e.asks
	if strings.EqualFold(side, domain.SideBuy) {
		tree = e.bids
	}
	key := quant.PriceToKey(price)
	if size <= 0 {
		tree.Delete(level{key: key})
		return
	}
	tree.ReplaceOrInsert(level{key: key, size: size})
}

// BestBid returns the highest bid price, ok=false when the side is empty.
func (e *Engine) BestBid() (float64, bool) {
	if lv, ok := e.bids.Max(); ok {
		return quant.KeyToPrice(lv.key), true
	}
	return 0, false
}

// BestAsk returns the lowest ask price, ok=false when the side is empty.
func (e *Engine) BestAsk() (float64, bool) {
	if lv, ok := e.asks.Min(); ok {
		return quant.KeyToPrice(lv.key), true
	}
	return 0, false
}

// MidPrice returns the midpoint of best bid and best ask. With only one
// side populated it falls back to that side's best; with neither, ok=false.
func (e *Engine) MidPrice() (float64, bool) {
	bb, hasBid := e.BestBid()
	ba, hasAsk := e.BestAsk()
	switch {
	case hasBid && hasAsk:
		return (bb + ba) / 2, true
	case hasBid:
		return bb, true
	case hasAsk:
		return ba, true
	}
	return 0, false
}

// Spread returns best_ask - best_bid, ok=false unless both sides exist.
// The value can be negative: crossed books are reported, not repaired.
func (e *Engine) Spread() (float64, bool) {
	bb, hasBid := e.BestBid()
	ba, hasAsk := e.BestAsk()
	if !hasBid || !hasAsk {
		return 0, false
	}
	return ba - bb, true
}

// Size returns the resting size at the given side and price, 0 when the
// level does not exist.
func (e *Engine) Size(side string, price float64) float64 {
	tree := e.asks
	if strings.EqualFold(side, domain.SideBuy) {
		tree = e.bids
	}
	if lv, ok := tree.Get(level{key: quant.PriceToKey(price)}); ok {
		return lv.size
	}
	return 0
}

// BidLevels and AskLevels report the current level counts.
func (e *Engine) BidLevels() int { return e.bids.Len() }
func (e *Engine) AskLevels() int { return e.asks.Len() }

// Depth returns the top n bids (best first, descending price) and top n
// asks (best first, ascending price).
func (e *Engine) Depth(n int) (bids, asks []domain.PriceLevel) {
	if n <= 0 {
		return nil, nil
	}
	e.bids.Descend(func(lv level) bool {
		bids = append(bids, domain.PriceLevel{Price: quant.KeyToPrice(lv.key), Size: lv.size})
		return len(bids) < n
	})
	e.asks.Ascend(func(lv level) bool {
		asks = append(asks, domain.PriceLevel{Price: quant.KeyToPrice(lv.key), Size: lv.size})
		return len(asks) < n
	})
	return bids, asks
}

// Snapshot exports the current state, bids descending and asks ascending.
func (e *Engine) Snapshot(exchangeTS, ingestTS int64) domain.BookSnapshot {
	snap := domain.BookSnapshot{
		MarketID:   e.marketID,
		AssetID:    e.assetID,
		Venue:      domain.DefaultVenue,
		Bids:       make([]domain.PriceLevel, 0, e.bids.Len()),
		Asks:       make([]domain.PriceLevel, 0, e.asks.Len()),
		ExchangeTS: exchangeTS,
		IngestTS:   ingestTS,
	}
	e.bids.Descend(func(lv level) bool {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: quant.KeyToPrice(lv.key), Size: lv.size})
		return true
	})
	e.asks.Ascend(func(lv level) bool {
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: quant.KeyToPrice(lv.key), Size: lv.size})
		return true
	})
	return snap
}

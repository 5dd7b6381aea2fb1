package sim

import (
	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/domain"
)

// Quote is one resting order a strategy wants in the market.
type Quote struct {
	Side  string
	Price float64
	Size  float64
}

// Strategy is driven by replayed market data. Implementations must be
// deterministic for a given event sequence.
type Strategy interface {
	Name() string
	// OnBookUpdate is called after each event that changed the book.
	OnBookUpdate(marketID, assetID string, e *book.Engine)
	// OnTrade is called for each trade print.
	OnTrade(trade domain.TradePrint)
	// Quotes returns the strategy's current desired quotes.
	Quotes() []Quote
}

// BasicMM quotes both sides around mid, widening with the observed spread
// and skewing away from accumulated inventory.
type BasicMM struct {
	SpreadFrac  float64 // minimum half-spread as a fraction of mid
	SkewPerUnit float64 // price skew per unit of inventory
	QuoteSize   float64

	inventory float64
	quotes    []Quote
}

// NewBasicMM returns a market maker with the given parameters; zero values
// fall back to defaults.
func NewBasicMM(spreadFrac, skewPerUnit, quoteSize float64) *BasicMM {
	if spreadFrac <= 0 {
		spreadFrac = 0.01
	}
	if skewPerUnit <= 0 {
		skewPerUnit = 0.001
	}
	if quoteSize <= 0 {
		quoteSize = 10
	}
	return &BasicMM{SpreadFrac: spreadFrac, SkewPerUnit: skewPerUnit, QuoteSize: quoteSize}
}

func (s *BasicMM) Name() string { return "mm_basic" }

func (s *BasicMM) OnBookUpdate(marketID, assetID string, e *book.Engine) {
	mid, ok := e.MidPrice()
	if !ok {
		return
	}
	spread, ok := e.Spread()
	if !ok || spread <= 0 {
		spread = 0.01
	}

	half := spread / 2
	if minHalf := s.SpreadFrac * mid; half < minHalf {
		half = minHalf
	}
	skew := s.inventory * s.SkewPerUnit

	bid := clampPrice(mid - half - skew)
	ask := clampPrice(mid + half - skew)
	s.quotes = []Quote{
		{Side: domain.SideBuy, Price: bid, Size: s.QuoteSize},
		{Side: domain.SideSell, Price: ask, Size: s.QuoteSize},
	}
}

func (s *BasicMM) OnTrade(trade domain.TradePrint) {
	// Aggressive buys lift our offers, aggressive sells hit our bids.
	if trade.Side == domain.SideBuy {
		s.inventory -= trade.Size
	} else {
		s.inventory += trade.Size
	}
}

func (s *BasicMM) Quotes() []Quote {
	out := make([]Quote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

func clampPrice(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

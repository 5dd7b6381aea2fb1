package sim

import "github.com/almastelek/PredMrkt/internal/domain"

// Fill is one simulated execution.
type Fill struct {
	MarketID  string
	AssetID   string
	Side      string
	Price     float64
	Size      float64
	Timestamp int64
}

// TouchFillModel fills a quote when the mid price touches it: buys fill
// when mid falls to the bid, sells when mid rises to the ask. LatencyMs is
// added to the fill timestamp, modeling order-entry delay.
type TouchFillModel struct {
	LatencyMs int64
}

// CheckFill returns a fill if the mid crossed the quote, ok=false otherwise.
func (m *TouchFillModel) CheckFill(q Quote, mid float64, ts int64, marketID, assetID string) (Fill, bool) {
	if q.Size <= 0 {
		return Fill{}, false
	}
	crossed := (q.Side == domain.SideBuy && mid <= q.Price) ||
		(q.Side == domain.SideSell && mid >= q.Price)
	if !crossed {
		return Fill{}, false
	}
	return Fill{
		MarketID:  marketID,
		AssetID:   assetID,
		Side:      q.Side,
		Price:     q.Price,
		Size:      q.Size,
		Timestamp: ts + m.LatencyMs,
	}, true
}

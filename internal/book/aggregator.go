package book

import (
	"github.com/almastelek/PredMrkt/internal/domain"
)

type engineKey struct {
	marketID string
	assetID  string
}

// Aggregator holds one Engine per (market, asset) and routes normalized
// feed entities to them. Like the engines it owns, it is single-writer:
// the ingest loop (or the replayer) is the only goroutine touching it.
type Aggregator struct {
	engines map[engineKey]*Engine
}

func NewAggregator() *Aggregator {
	return &Aggregator{engines: make(map[engineKey]*Engine)}
}

func (a *Aggregator) engine(marketID, assetID string) *Engine {
	k := engineKey{marketID: marketID, assetID: assetID}
	e, ok := a.engines[k]
	if !ok {
		e = New(marketID, assetID)
		a.engines[k] = e
	}
	return e
}

// ApplySnapshot routes a full book to the matching engine, creating it on
// first sight.
func (a *Aggregator) ApplySnapshot(snap domain.BookSnapshot) {
	a.engine(snap.MarketID, snap.AssetID).ApplySnapshot(snap.Bids, snap.Asks)
}

// ApplyDelta routes a level update to the matching engine.
func (a *Aggregator) ApplyDelta(d domain.BookDelta) {
	a.engine(d.MarketID, d.AssetID).ApplyDelta(d.Side, d.Price, d.Size)
}

// Engine returns the engine for (marketID, assetID) if one exists.
func (a *Aggregator) Engine(marketID, assetID string) (*Engine, bool) {
	e, ok := a.engines[engineKey{marketID: marketID, assetID: assetID}]
	return e, ok
}

// Engines returns a copy of the current engine set.
func (a *Aggregator) Engines() []*Engine {
	out := make([]*Engine, 0, len(a.engines))
	for _, e := range a.engines {
		out = append(out, e)
	}
	return out
}

// Len reports how many (market, asset) books are tracked.
func (a *Aggregator) Len() int { return len(a.engines) }

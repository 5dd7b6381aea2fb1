package sim

import (
	"context"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/feed/polymarket"
	"github.com/almastelek/PredMrkt/internal/storage"
)

// RunOptions selects the event slice and fill behavior for one run.
type RunOptions struct {
	MarketID  string
	AssetID   string
	StartTS   int64
	EndTS     int64
	LatencyMs int64
	Params    map[string]any
}

// Result summarizes a finished run.
type Result struct {
	RunID           string
	StrategyName    string
	MarketID        string
	FinalInventory  float64
	RealizedPnL     float64
	FillCount       int
	EventsProcessed int
}

// Run replays the market's events, drives the strategy, applies the touch
// fill model to its quotes, and persists the result. Deterministic apart
// from the generated run id and created_at.
func Run(ctx context.Context, store *storage.Store, strat Strategy, opts RunOptions) (Result, error) {
	agg := book.NewAggregator()
	fillModel := &TouchFillModel{LatencyMs: opts.LatencyMs}
	portfolio := NewPortfolio()
	events := 0

	err := store.StreamRawEvents(ctx, opts.MarketID, opts.StartTS, opts.EndTS,
		func(payload []byte, ingestTS int64) bool {
			msg, ok := polymarket.Decode(payload)
			if !ok {
				return true
			}
			events++

			marketKey := msg.ResolvedMarketID()

			switch msg.EventType {
			case polymarket.EventBook:
				if snap, ok := polymarket.ParseBook(msg, ingestTS); ok {
					agg.ApplySnapshot(snap)
				}
			case polymarket.EventPriceChange:
				for _, d := range polymarket.ParsePriceChanges(msg, ingestTS) {
					agg.ApplyDelta(d)
				}
			case polymarket.EventLastTrade:
				if tp, ok := polymarket.ParseLastTrade(msg, ingestTS); ok {
					strat.OnTrade(tp)
				}
			}

			e, ok := agg.Engine(marketKey, opts.AssetID)
			if !ok || !e.HasSnapshot() {
				return true
			}
			strat.OnBookUpdate(marketKey, opts.AssetID, e)

			mid, ok := e.MidPrice()
			if !ok {
				return true
			}
			for _, q := range strat.Quotes() {
				if fill, ok := fillModel.CheckFill(q, mid, ingestTS, marketKey, opts.AssetID); ok {
					portfolio.ApplyFill(fill)
				}
			}
			return true
		})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RunID:           uuid.NewString()[:8],
		StrategyName:    strat.Name(),
		MarketID:        opts.MarketID,
		FinalInventory:  portfolio.Inventory(),
		RealizedPnL:     portfolio.RealizedPnL(),
		FillCount:       portfolio.FillCount(),
		EventsProcessed: events,
	}

	if err := store.InsertSimRun(ctx, storage.SimRun{
		RunID:           result.RunID,
		StrategyName:    result.StrategyName,
		MarketID:        result.MarketID,
		Params:          opts.Params,
		FinalInventory:  result.FinalInventory,
		RealizedPnL:     result.RealizedPnL,
		FillCount:       result.FillCount,
		EventsProcessed: result.EventsProcessed,
		CreatedAt:       time.Now().UnixMilli(),
	}); err != nil {
		return result, err
	}

	slog.Info("simulation finished",
		"run_id", result.RunID,
		"strategy", result.StrategyName,
		"fills", result.FillCount,
		"pnl", result.RealizedPnL,
		"events", result.EventsProcessed)
	return result, nil
}

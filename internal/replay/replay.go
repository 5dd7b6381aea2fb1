package replay

import (
	"context"

	"github.com/almastelek/PredMrkt/internal/book"
	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/internal/feed/polymarket"
	"github.com/almastelek/PredMrkt/internal/storage"
)

// Replayer reconstructs book state from the raw event log. Replay is
// deterministic: the same database and parameters always produce the same
// series, since events apply in insertion order with no wall-clock input.
type Replayer struct {
	store *storage.Store
}

func New(store *storage.Store) *Replayer {
	return &Replayer{store: store}
}

// Options bound a replay. MarketID matches canonically (with or without
// the 0x prefix); zero timestamps leave that bound open.
type Options struct {
	MarketID string
	AssetID  string
	StartTS  int64
	EndTS    int64
}

// Rebuild replays the filtered log into a fresh aggregator and returns it.
func (r *Replayer) Rebuild(ctx context.Context, opts Options) (*book.Aggregator, error) {
	agg := book.NewAggregator()
	err := r.stream(ctx, opts, func(msg *polymarket.Message, ingestTS int64) {
		applyMessage(agg, msg, ingestTS)
	})
	return agg, err
}

func (r *Replayer) stream(ctx context.Context, opts Options, fn func(msg *polymarket.Message, ingestTS int64)) error {
	return r.store.StreamRawEvents(ctx, opts.MarketID, opts.StartTS, opts.EndTS,
		func(payload []byte, ingestTS int64) bool {
			if msg, ok := polymarket.Decode(payload); ok {
				fn(msg, ingestTS)
			}
			return true
		})
}

func applyMessage(agg *book.Aggregator, msg *polymarket.Message, ingestTS int64) {
	switch msg.EventType {
	case polymarket.EventBook:
		if snap, ok := polymarket.ParseBook(msg, ingestTS); ok {
			agg.ApplySnapshot(snap)
		}
	case polymarket.EventPriceChange:
		for _, d := range polymarket.ParsePriceChanges(msg, ingestTS) {
			agg.ApplyDelta(d)
		}
	}
}

// MidPoint is one step of a replayed mid-price series. OK is false while
// the book for the requested asset has no price yet.
type MidPoint struct {
	TS  int64   `json:"ts"`
	Mid float64 `json:"mid"`
	OK  bool    `json:"ok"`
}

// MidSeries replays and returns one point per event: the asset's mid price
// after that event applied.
func (r *Replayer) MidSeries(ctx context.Context, opts Options) ([]MidPoint, error) {
	agg := book.NewAggregator()
	var out []MidPoint

	err := r.stream(ctx, opts, func(msg *polymarket.Message, ingestTS int64) {
		applyMessage(agg, msg, ingestTS)

		// Engines are keyed by the payload's market id spelling, which may
		// differ from the requested one (0x prefix).
		marketKey := msg.ResolvedMarketID()
		if marketKey == "" {
			marketKey = opts.MarketID
		}
		pt := MidPoint{TS: ingestTS}
		if e, ok := agg.Engine(marketKey, opts.AssetID); ok {
			pt.Mid, pt.OK = e.MidPrice()
		}
		out = append(out, pt)
	})
	return out, err
}

// ChartRow is one time bucket of the replayed chart series.
type ChartRow struct {
	TS       int64   `json:"ts"`
	Mid      float64 `json:"mid"`
	MidOK    bool    `json:"mid_ok"`
	Spread   float64 `json:"spread"`
	SpreadOK bool    `json:"spread_ok"`
	DepthBid float64 `json:"depth_bid"`
	DepthAsk float64 `json:"depth_ask"`
	OFI      float64 `json:"ofi"`
}

// ChartSeries replays into bucketMs-wide time buckets and emits one row per
// bucket that saw events: mid, spread, top-depthN depth per side, and the
// bucket's order flow imbalance. OFI counts signed resting-size changes
// from deltas: bid size growth is positive pressure, ask size growth
// negative.
func (r *Replayer) ChartSeries(ctx context.Context, opts Options, bucketMs int64, depthN int) ([]ChartRow, error) {
	if bucketMs <= 0 {
		bucketMs = 1000
	}
	if depthN <= 0 {
		depthN = 5
	}

	agg := book.NewAggregator()
	var rows []ChartRow
	var (
		haveBucket bool
		bucketTS   int64
		bucketOFI  float64
		marketKey  string
	)

	emit := func() {
		e, ok := agg.Engine(marketKey, opts.AssetID)
		if !ok {
			return
		}
		row := ChartRow{TS: bucketTS, OFI: bucketOFI}
		row.Mid, row.MidOK = e.MidPrice()
		row.Spread, row.SpreadOK = e.Spread()
		bids, asks := e.Depth(depthN)
		for _, lv := range bids {
			row.DepthBid += lv.Size
		}
		for _, lv := range asks {
			row.DepthAsk += lv.Size
		}
		rows = append(rows, row)
	}

	err := r.stream(ctx, opts, func(msg *polymarket.Message, ingestTS int64) {
		if mk := msg.ResolvedMarketID(); mk != "" {
			marketKey = mk
		}

		tsBucket := (ingestTS / bucketMs) * bucketMs
		if haveBucket && tsBucket != bucketTS {
			emit()
			bucketOFI = 0
		}
		bucketTS = tsBucket
		haveBucket = true

		switch msg.EventType {
		case polymarket.EventBook:
			if snap, ok := polymarket.ParseBook(msg, ingestTS); ok {
				agg.ApplySnapshot(snap)
			}
		case polymarket.EventPriceChange:
			for _, d := range polymarket.ParsePriceChanges(msg, ingestTS) {
				// Signed size change at the touched level, measured
				// before the delta applies.
				if e, ok := agg.Engine(d.MarketID, d.AssetID); ok && d.AssetID == opts.AssetID {
					old := e.Size(d.Side, d.Price)
					diff := d.Size - old
					if d.Side == domain.SideBuy {
						bucketOFI += diff
					} else {
						bucketOFI -= diff
					}
				}
				agg.ApplyDelta(d)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if haveBucket {
		emit()
	}
	return rows, nil
}

package book

import "math"

// Derived per-book metrics. All side-channel reads: nothing here mutates
// an engine or changes its behavior.

// SpreadPct returns the spread as a percentage of mid price.
func SpreadPct(e *Engine) (float64, bool) {
	mid, okMid := e.MidPrice()
	sp, okSp := e.Spread()
	if !okMid || !okSp || mid <= 0 {
		return 0, false
	}
	return sp / mid * 100, true
}

// Imbalance returns (bid_volume - ask_volume) / (bid_volume + ask_volume)
// over the top n levels, in [-1, 1]. ok=false when both sides are empty.
func Imbalance(e *Engine, n int) (float64, bool) {
	bids, asks := e.Depth(n)
	var bidVol, askVol float64
	for _, lv := range bids {
		bidVol += lv.Size
	}
	for _, lv := range asks {
		askVol += lv.Size
	}
	total := bidVol + askVol
	if total == 0 {
		return 0, false
	}
	return (bidVol - askVol) / total, true
}

// MidSeries is a rolling mid-price history, used as a volatility proxy.
// Timestamps are ms epoch and assumed non-decreasing.
type MidSeries struct {
	maxLen int
	ts     []int64
	prices []float64
}

// NewMidSeries creates a rolling series keeping at most maxLen points.
func NewMidSeries(maxLen int) *MidSeries {
	if maxLen <= 0 {
		maxLen = 100
	}
	return &MidSeries{maxLen: maxLen}
}

// Push appends a point, evicting the oldest when full.
func (s *MidSeries) Push(tsMs int64, price float64) {
	if len(s.prices) == s.maxLen {
		s.ts = s.ts[1:]
		s.prices = s.prices[1:]
	}
	s.ts = append(s.ts, tsMs)
	s.prices = append(s.prices, price)
}

// Len returns the number of retained points.
func (s *MidSeries) Len() int { return len(s.prices) }

// Last returns the most recent point.
func (s *MidSeries) Last() (tsMs int64, price float64, ok bool) {
	if len(s.prices) == 0 {
		return 0, 0, false
	}
	n := len(s.prices) - 1
	return s.ts[n], s.prices[n], true
}

// Volatility returns the standard deviation of mid prices within the
// trailing window ending at the newest point. Needs at least two points
// in the window.
func (s *MidSeries) Volatility(windowMs int64) (float64, bool) {
	if len(s.prices) < 2 {
		return 0, false
	}
	cutoff := s.ts[len(s.ts)-1] - windowMs
	var window []float64
	for i, t := range s.ts {
		if t >= cutoff {
			window = s.prices[i:]
			break
		}
	}
	if len(window) < 2 {
		return 0, false
	}
	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / float64(len(window))
	var variance float64
	for _, p := range window {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(window))
	return math.Sqrt(variance), true
}

package quant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PriceKey is a probability price quantized onto the fixed grid [0, KeyScale].
// E.g. 0.485 -> 485,000. Keys give the sorted books exact ordering and
// equality; two float prices that round to the same key are the same level.
type PriceKey uint64

// KeyScale is the number of grid steps per unit of price (10^6).
const KeyScale = 1_000_000

// PriceToKey converts a float price to a PriceKey.
// The price is clamped to [0, 1] first, so any input maps onto the grid.
func PriceToKey(p float64) PriceKey {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return KeyScale
	}
	return PriceKey(math.Round(p * KeyScale))
}

// KeyToPrice converts a PriceKey back to a float price.
func KeyToPrice(k PriceKey) float64 {
	return float64(k) / KeyScale
}

func (k PriceKey) String() string {
	return fmt.Sprintf("%.6f", KeyToPrice(k))
}

// ParseFloat parses a feed numeric that may be quoted, empty, or garbage.
// Returns 0 on anything unparseable. Only used at the boundary.
func ParseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseMillis parses a millisecond epoch that may arrive as a quoted string.
// Returns 0 when absent or unparseable.
func ParseMillis(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

package domain

// Outcome is a single outcome token (e.g. Yes/No) within a market.
type Outcome struct {
	TokenID string  `json:"token_id"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"` // probability in [0, 1]
}

// Market is the canonical, venue-agnostic market record used for
// discovery and tracking.
type Market struct {
	MarketID    string    `json:"market_id"`
	Venue       string    `json:"venue"`
	ConditionID string    `json:"condition_id,omitempty"`
	Question    string    `json:"question"`
	Title       string    `json:"title"`
	Category    string    `json:"category,omitempty"`
	Volume24h   float64   `json:"volume_24h"`
	Liquidity   float64   `json:"liquidity"`
	Active      bool      `json:"active"`
	Outcomes    []Outcome `json:"outcomes"`
	LastUpdated int64     `json:"last_updated,omitempty"` // ms epoch
}

// AssetIDs returns the outcome token IDs of the market, skipping blanks.
func (m *Market) AssetIDs() []string {
	ids := make([]string, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		if o.TokenID != "" {
			ids = append(ids, o.TokenID)
		}
	}
	return ids
}

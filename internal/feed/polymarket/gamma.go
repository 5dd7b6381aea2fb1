package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/almastelek/PredMrkt/internal/domain"
	"github.com/almastelek/PredMrkt/internal/infra"
	"github.com/almastelek/PredMrkt/pkg/quant"
)

const userAgent = "predmrkt/1.0 (+https://github.com/almastelek/PredMrkt)"

// NormalizeConditionID canonicalizes a condition id for use as a market
// key: trimmed, lowercased, without the 0x prefix. Gamma and the WS feed
// disagree on the prefix, so everything is stored in this form.
func NormalizeConditionID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}

// gammaMarket mirrors the Gamma /markets response. Outcome fields arrive
// as JSON arrays encoded inside strings.
type gammaMarket struct {
	ID            string          `json:"id"`
	ConditionID   string          `json:"conditionId"`
	Question      string          `json:"question"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Volume24h     json.RawMessage `json:"volume24hr"`
	Volume        json.RawMessage `json:"volume"`
	Liquidity     json.RawMessage `json:"liquidity"`
	LiquidityNum  json.RawMessage `json:"liquidityNum"`
	Active        bool            `json:"active"`
	Closed        bool            `json:"closed"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
}

// GammaClient discovers markets via the Gamma REST API, behind the shared
// rate limiter and a circuit breaker.
type GammaClient struct {
	baseURL string
	http    *http.Client
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
}

// NewGammaClient creates a client for the given API base, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: infra.GetGammaLimiter(),
		breaker: infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("gamma")),
	}
}

// FetchMarkets returns up to limit active markets in canonical form.
// Markets that fail to parse are skipped, not fatal.
func (c *GammaClient) FetchMarkets(ctx context.Context, limit int) ([]domain.Market, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("gamma circuit open")
	}
	c.limiter.Wait()

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("closed", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("gamma request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("gamma status %d", resp.StatusCode)
	}

	var rows []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("gamma decode: %w", err)
	}
	c.breaker.RecordSuccess()

	markets := make([]domain.Market, 0, len(rows))
	for _, row := range rows {
		if row.Closed || !row.Active {
			continue
		}
		m, err := parseMarket(row)
		if err != nil {
			slog.Warn("skipping market", "gamma_id", row.ID, "err", err)
			continue
		}
		markets = append(markets, m)
	}
	return markets, nil
}

func parseMarket(raw gammaMarket) (domain.Market, error) {
	conditionID := NormalizeConditionID(raw.ConditionID)
	marketID := conditionID
	if marketID == "" {
		marketID = raw.ID
	}
	if marketID == "" {
		return domain.Market{}, fmt.Errorf("market without id")
	}

	title := raw.Question
	if title == "" {
		title = raw.Title
	}

	volume := rawNumber(raw.Volume24h)
	if volume == 0 {
		volume = rawNumber(raw.Volume)
	}
	liquidity := rawNumber(raw.Liquidity)
	if liquidity == 0 {
		liquidity = rawNumber(raw.LiquidityNum)
	}

	return domain.Market{
		MarketID:    marketID,
		Venue:       domain.DefaultVenue,
		ConditionID: conditionID,
		Question:    raw.Question,
		Title:       title,
		Category:    raw.Category,
		Volume24h:   volume,
		Liquidity:   liquidity,
		Active:      raw.Active && !raw.Closed,
		Outcomes:    parseOutcomes(raw.Outcomes, raw.OutcomePrices, raw.ClobTokenIDs),
		LastUpdated: time.Now().UnixMilli(),
	}, nil
}

// rawNumber reads a Gamma numeric that may be a JSON number or a quoted
// string. Absent or unparseable values read as 0.
func rawNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	return quant.ParseFloat(strings.Trim(string(raw), `"`))
}

// stringArray decodes either a JSON array of strings or such an array
// encoded inside a JSON string (Gamma uses both).
func stringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var direct []string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var nested string
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(nested), &direct); err != nil {
		return nil
	}
	return direct
}

func parseOutcomes(names, prices, tokenIDs json.RawMessage) []domain.Outcome {
	nameList := stringArray(names)
	priceList := stringArray(prices)
	tokenList := stringArray(tokenIDs)

	out := make([]domain.Outcome, 0, len(nameList))
	for i, name := range nameList {
		o := domain.Outcome{Name: name}
		if i < len(priceList) {
			o.Price = quant.ParseFloat(priceList[i])
		}
		if i < len(tokenList) {
			o.TokenID = tokenList[i]
		}
		out = append(out, o)
	}
	return out
}

// SelectOptions filters and ranks markets for tracking.
type SelectOptions struct {
	TrackCount    int
	MinVolume24h  float64
	MinLiquidity  float64
	AllowCategory []string
	DenyCategory  []string
	Pinned        []string
}

// SelectTopMarkets applies the filters, sorts by 24h volume then liquidity
// descending, and returns pinned markets first followed by the top of the
// ranking, up to TrackCount.
func SelectTopMarkets(markets []domain.Market, opts SelectOptions) []domain.Market {
	allow := make(map[string]bool, len(opts.AllowCategory))
	for _, c := range opts.AllowCategory {
		allow[c] = true
	}
	deny := make(map[string]bool, len(opts.DenyCategory))
	for _, c := range opts.DenyCategory {
		deny[c] = true
	}

	filtered := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !m.Active {
			continue
		}
		if m.Volume24h < opts.MinVolume24h || m.Liquidity < opts.MinLiquidity {
			continue
		}
		if m.Category != "" && len(deny) > 0 && deny[m.Category] {
			continue
		}
		if m.Category != "" && len(allow) > 0 && !allow[m.Category] {
			continue
		}
		filtered = append(filtered, m)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Volume24h != filtered[j].Volume24h {
			return filtered[i].Volume24h > filtered[j].Volume24h
		}
		return filtered[i].Liquidity > filtered[j].Liquidity
	})

	seen := make(map[string]bool)
	selected := make([]domain.Market, 0, opts.TrackCount)
	for _, pin := range opts.Pinned {
		for _, m := range filtered {
			if m.MarketID == pin && !seen[m.MarketID] {
				selected = append(selected, m)
				seen[m.MarketID] = true
				break
			}
		}
	}
	for _, m := range filtered {
		if len(selected) >= opts.TrackCount {
			break
		}
		if !seen[m.MarketID] {
			selected = append(selected, m)
			seen[m.MarketID] = true
		}
	}
	return selected
}

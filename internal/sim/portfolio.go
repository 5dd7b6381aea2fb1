package sim

import (
	"github.com/shopspring/decimal"

	"github.com/almastelek/PredMrkt/internal/domain"
)

// Portfolio tracks inventory, cash, and mark-to-market PnL for one run.
// Bookkeeping uses decimals so long runs of small fills don't accumulate
// float drift; the exported views convert back to float64.
type Portfolio struct {
	inventory decimal.Decimal
	cash      decimal.Decimal
	realized  decimal.Decimal
	fillCount int
}

func NewPortfolio() *Portfolio {
	return &Portfolio{}
}

// ApplyFill books a fill: buys add inventory and spend cash, sells the
// reverse. Realized PnL marks the position to the fill price.
func (p *Portfolio) ApplyFill(f Fill) {
	price := decimal.NewFromFloat(f.Price)
	size := decimal.NewFromFloat(f.Size)
	notional := price.Mul(size)

	if f.Side == domain.SideBuy {
		p.inventory = p.inventory.Add(size)
		p.cash = p.cash.Sub(notional)
	} else {
		p.inventory = p.inventory.Sub(size)
		p.cash = p.cash.Add(notional)
	}
	p.realized = p.cash.Add(p.inventory.Mul(price))
	p.fillCount++
}

// UnrealizedPnL marks the current position to the given price.
func (p *Portfolio) UnrealizedPnL(markPrice float64) float64 {
	mark := decimal.NewFromFloat(markPrice)
	v, _ := p.cash.Add(p.inventory.Mul(mark)).Float64()
	return v
}

func (p *Portfolio) Inventory() float64 {
	v, _ := p.inventory.Float64()
	return v
}

func (p *Portfolio) Cash() float64 {
	v, _ := p.cash.Float64()
	return v
}

func (p *Portfolio) RealizedPnL() float64 {
	v, _ := p.realized.Float64()
	return v
}

func (p *Portfolio) FillCount() int { return p.fillCount }

// Package orderplan turns a target portfolio into the trades needed to reach it.
package orderplan

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecouncil/internal/domain/allocation"
)

// Side of an order intent
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderIntent is a suggested trade. Execution is left to downstream consumers.
type OrderIntent struct {
	AllocationID uuid.UUID       `json:"allocation_id"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	TargetWeight float64         `json:"target_weight"`
	WeightChange float64         `json:"weight_change"`
	Notional     decimal.Decimal `json:"notional"`
	Reasoning    string          `json:"reasoning"`
}

// notionalPlaces is the quote currency precision of intents
const notionalPlaces = 2

// Build derives order intents from alloc, one per symbol whose traded notional
// reaches minNotional. It returns nil when no rebalance is needed. Intents are
// sorted by symbol.
func Build(alloc *allocation.PortfolioAllocation, minNotional decimal.Decimal) []OrderIntent {
	if alloc == nil || !alloc.RebalancingNeeded {
		return nil
	}

	value := decimal.NewFromFloat(alloc.TotalPortfolioValue)
	var out []OrderIntent
	for _, sym := range alloc.Symbols() {
		a := alloc.TargetAllocations[sym]
		if a == nil || a.WeightChange == 0 {
			continue
		}

		notional := value.Mul(decimal.NewFromFloat(a.WeightChange)).Abs().Round(notionalPlaces)
		if notional.IsZero() || notional.LessThan(minNotional) {
			continue
		}

		side := SideBuy
		if a.WeightChange < 0 {
			side = SideSell
		}
		f, _ := notional.Float64()
		out = append(out, OrderIntent{
			AllocationID: alloc.ID,
			Symbol:       sym,
			Side:         side,
			TargetWeight: a.TargetWeight,
			WeightChange: a.WeightChange,
			Notional:     notional,
			Reasoning: fmt.Sprintf("%s %s for $%s, weight %.2f%% -> %.2f%%",
				side, sym, humanize.CommafWithDigits(f, notionalPlaces), a.CurrentWeight*100, a.TargetWeight*100),
		})
	}

	return out
}

// Totals sums buy and sell notional
func Totals(intents []OrderIntent) (buy, sell decimal.Decimal) {
	for _, in := range intents {
		if in.Side == SideBuy {
			buy = buy.Add(in.Notional)
		} else {
			sell = sell.Add(in.Notional)
		}
	}
	return buy, sell
}

package core

import (
	"github.com/shopspring/decimal"
)

const quantityPrecision int32 = 6 // MWh resolution used for reporting totals

// Summary aggregates the trades of one clearing result.
type Summary struct {
	TotalVolume float64            `json:"total_volume"` // MWh
	Turnover    float64            `json:"turnover"`     // TotalVolume * clearing price
	Sold        map[string]float64 `json:"sold"`         // seller id -> MWh
	Bought      map[string]float64 `json:"bought"`       // buyer id -> MWh
}

// Summarize computes per-participant volumes and totals for result.
// Uses decimal arithmetic so that repeated partial fills add up exactly.
func Summarize(result *ClearingResult) Summary {
	summary := Summary{
		Sold:   make(map[string]float64),
		Bought: make(map[string]float64),
	}
	if result == nil || len(result.Trades) == 0 {
		return summary
	}

	total := decimal.Zero
	sold := make(map[string]decimal.Decimal)
	bought := make(map[string]decimal.Decimal)

	for _, trade := range result.Trades {
		q := decimal.NewFromFloat(trade.Quantity)
		total = total.Add(q)
		sold[trade.SellerID] = sold[trade.SellerID].Add(q)
		bought[trade.BuyerID] = bought[trade.BuyerID].Add(q)
	}

	summary.TotalVolume = total.Round(quantityPrecision).InexactFloat64()
	if result.ClearingPrice != nil {
		summary.Turnover = total.Mul(decimal.NewFromFloat(*result.ClearingPrice)).Round(quantityPrecision).InexactFloat64()
	}
	for id, q := range sold {
		summary.Sold[id] = q.Round(quantityPrecision).InexactFloat64()
	}
	for id, q := range bought {
		summary.Bought[id] = q.Round(quantityPrecision).InexactFloat64()
	}

	return summary
}

// PricesEqual compares two prices at quantityPrecision using decimal arithmetic.
func PricesEqual(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(quantityPrecision).Equal(decimal.NewFromFloat(b).Round(quantityPrecision))
}

package core

import (
	"slices"
	"sort"
)

// Clear executes the merit-order double auction for a single interval with
// uniform pricing.
//
// Parameters:
//   - supply: generator offers, any order
//   - demand: buyer bids, any order
//
// Returns:
//   - ClearingResult with trades in match order, the uniform clearing price,
//     the termination reason and the unmatched residuals
//   - *InvalidBidError if any bid is invalid; no partial result is returned
//
// Processing flow:
//  1. Validate every bid of both sides
//  2. Copy and sort supply ascending, demand descending (stable)
//  3. Walk both sides, matching min(remaining) while demand price >= supply price
//  4. Stamp every trade with the price of the last (marginal) match
//
// The caller's bid sets are never modified.
func Clear(supply, demand BidSet) (*ClearingResult, error) {
	if err := ValidateBidSet(SideSupply, supply); err != nil {
		return nil, err
	}
	if err := ValidateBidSet(SideDemand, demand); err != nil {
		return nil, err
	}

	sortedSupply := MeritOrder(SideSupply, supply)
	sortedDemand := MeritOrder(SideDemand, demand)

	if len(sortedSupply) == 0 || len(sortedDemand) == 0 {
		return &ClearingResult{
			Trades:          []Trade{},
			Termination:     TerminationEmptyMarket,
			UnmatchedSupply: sortedSupply,
			UnmatchedDemand: sortedDemand,
		}, nil
	}

	trades := make([]Trade, 0)
	var clearingPrice *float64
	termination := TerminationExhausted

	i, j := 0, 0
	for i < len(sortedSupply) && j < len(sortedDemand) {
		s := &sortedSupply[i]
		d := &sortedDemand[j]

		// Curves have crossed: no further match is possible
		if d.Price < s.Price {
			termination = TerminationPriceCrossed
			break
		}

		matched := min(s.Quantity, d.Quantity)

		// Provisional price at this match; the last one becomes the uniform price
		price := min(s.Price, d.Price)
		clearingPrice = &price

		trades = append(trades, Trade{
			SellerID: s.ParticipantID,
			BuyerID:  d.ParticipantID,
			Quantity: matched,
		})

		s.Quantity -= matched
		d.Quantity -= matched

		if s.Quantity == 0 {
			i++
		}
		if d.Quantity == 0 {
			j++
		}
	}

	if clearingPrice != nil {
		for k := range trades {
			trades[k].Price = *clearingPrice
		}
	}

	return &ClearingResult{
		Trades:          trades,
		ClearingPrice:   clearingPrice,
		Termination:     termination,
		UnmatchedSupply: sortedSupply[i:],
		UnmatchedDemand: sortedDemand[j:],
	}, nil
}

// MeritOrder returns a sorted copy of bids: ascending price for supply,
// descending price for demand. Equal prices keep submission order.
func MeritOrder(side Side, bids BidSet) BidSet {
	sorted := slices.Clone(bids)
	if sorted == nil {
		sorted = BidSet{}
	}

	if side == SideDemand {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Price > sorted[j].Price
		})
	} else {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Price < sorted[j].Price
		})
	}

	return sorted
}

package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBid is matched (via errors.Is) by every *InvalidBidError.
var ErrInvalidBid = errors.New("invalid bid")

// InvalidBidError identifies the bid that caused a clearing call to be rejected.
type InvalidBidError struct {
	Side   Side
	Index  int // position in the caller's BidSet
	Bid    Bid
	Reason string
}

func (e *InvalidBidError) Error() string {
	return fmt.Sprintf("invalid %s bid %d (participant %q, quantity %v, price %v): %s",
		e.Side, e.Index, e.Bid.ParticipantID, e.Bid.Quantity, e.Bid.Price, e.Reason)
}

func (e *InvalidBidError) Unwrap() error {
	return ErrInvalidBid
}

// ValidateBid checks a single bid. Prices may be zero or negative; quantities
// must be strictly positive and finite.
func ValidateBid(bid Bid) error {
	switch {
	case bid.ParticipantID == "":
		return errors.New("empty participant id")
	case math.IsNaN(bid.Quantity) || math.IsInf(bid.Quantity, 0):
		return errors.New("quantity is not a finite number")
	case bid.Quantity <= 0:
		return errors.New("quantity must be positive")
	case math.IsNaN(bid.Price):
		return errors.New("price is not a number")
	}
	return nil
}

// ValidateBidSet returns an *InvalidBidError for the first invalid bid in bids.
func ValidateBidSet(side Side, bids BidSet) error {
	for i, bid := range bids {
		if err := ValidateBid(bid); err != nil {
			return &InvalidBidError{
				Side:   side,
				Index:  i,
				Bid:    bid,
				Reason: err.Error(),
			}
		}
	}
	return nil
}

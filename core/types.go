package core

// Side identifies which half of the market a bid belongs to.
type Side string

const (
	// SideSupply holds generator offers: price is the minimum acceptable price.
	SideSupply Side = "supply"
	// SideDemand holds buyer bids: price is the maximum acceptable price.
	SideDemand Side = "demand"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideSupply || s == SideDemand
}

// Bid is one offer to buy or sell energy for a single interval.
type Bid struct {
	ParticipantID string  `json:"participant_id" cbor:"participant_id"`
	Quantity      float64 `json:"quantity" cbor:"quantity"` // MWh
	Price         float64 `json:"price" cbor:"price"`       // per MWh
}

// BidSet is an unordered collection of bids from one side of the market.
// Callers do not need to sort it; Clear sorts its own working copy.
type BidSet []Bid

// Trade is the result of matching part or all of one supply bid against
// part or all of one demand bid.
type Trade struct {
	SellerID string  `json:"seller_id" cbor:"seller_id"`
	BuyerID  string  `json:"buyer_id" cbor:"buyer_id"`
	Quantity float64 `json:"quantity" cbor:"quantity"`
	Price    float64 `json:"price" cbor:"price"`
}

// Termination records why the merit-order walk stopped.
type Termination string

const (
	// TerminationEmptyMarket means at least one side had no bids.
	TerminationEmptyMarket Termination = "empty_market"
	// TerminationPriceCrossed means the next demand price fell below the next supply price.
	TerminationPriceCrossed Termination = "price_crossed"
	// TerminationExhausted means one side (or both) ran out of bids.
	TerminationExhausted Termination = "exhausted"
)

// ClearingResult contains the complete outcome of clearing one interval.
type ClearingResult struct {
	// Trades in the order they were matched during the walk.
	Trades []Trade `json:"trades"`

	// ClearingPrice is the uniform price for the interval (nil if no trade occurred).
	ClearingPrice *float64 `json:"clearing_price"`

	Termination Termination `json:"termination"`

	// UnmatchedSupply and UnmatchedDemand hold the residual quantity of every bid
	// left (fully or partially) unmatched, in merit order.
	UnmatchedSupply []Bid `json:"unmatched_supply"`
	UnmatchedDemand []Bid `json:"unmatched_demand"`
}

// Cleared reports whether at least one trade occurred.
func (r *ClearingResult) Cleared() bool {
	return r != nil && r.ClearingPrice != nil
}

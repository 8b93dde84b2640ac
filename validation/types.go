package validation

import (
	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

// BaseValidationResult contains the checks common to every receipt
type BaseValidationResult struct {
	SignatureValid    bool
	MarketValid       bool
	ValidationDetails []string
}

// ReceiptValidationResult contains validation results for one participant's view of a receipt
type ReceiptValidationResult struct {
	BaseValidationResult
	TradeHashValid     bool
	BidHashValid       bool
	ClearingPriceValid bool

	// Payload is the decoded receipt content, set once the signature has been checked
	Payload *exchangeapi.ReceiptPayload
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.SignatureValid && r.MarketValid && r.TradeHashValid && r.BidHashValid && r.ClearingPriceValid
}

// SubmittedBid identifies a bid the participant expects the receipt to commit to
type SubmittedBid struct {
	Side core.Side `json:"side"`
	Bid  core.Bid  `json:"bid"`
}

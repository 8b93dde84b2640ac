package validation

import (
	"fmt"
	"slices"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

// ReceiptValidationInput contains all inputs needed for clearing receipt validation
type ReceiptValidationInput struct {
	ReceiptCOSEGzip   exchangeapi.ReceiptCOSEGzip   // Gzipped format from cleared-bid notices
	ReceiptCOSEBase64 exchangeapi.ReceiptCOSEBase64 // Used when ReceiptCOSEGzip is empty
	PublicKeyPEM      string                        // Exchange public key (public_key request)
	MarketID          string
	Interval          int
	Trade             *core.Trade   // nil = no trade to check
	Bid               *SubmittedBid // nil = no bid to check
	ClearingPrice     *float64      // nil = no clearing price expected
}

// ValidateClearingReceipt validates a signed clearing receipt and verifies:
// - The receipt was signed by the exchange key
// - Market and interval match
// - The trade is committed to by the receipt
// - The bid was included in the interval
// - Clearing price matches
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed receipt or key)
func ValidateClearingReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	receipt, err := decodeInputReceipt(input)
	if err != nil {
		return nil, err
	}

	publicKey, err := ParsePublicKeyPEM(input.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange public key: %w", err)
	}

	msg, payload, err := DecodeReceipt(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}

	result := &ReceiptValidationResult{Payload: payload}

	if err := VerifyReceiptSignature(msg, publicKey); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Signature invalid: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "Receipt signature valid")
	}

	result.MarketValid = validateMarket(input, payload, result)
	result.TradeHashValid = validateTradeHash(input, payload, result)
	result.BidHashValid = validateBidHash(input, payload, result)
	result.ClearingPriceValid = validateClearingPrice(input, payload, result)

	return result, nil
}

func decodeInputReceipt(input *ReceiptValidationInput) (exchangeapi.ReceiptCOSE, error) {
	if input.ReceiptCOSEGzip != "" {
		receipt, err := input.ReceiptCOSEGzip.Decompress()
		if err != nil {
			return nil, fmt.Errorf("decompress receipt: %w", err)
		}
		return receipt, nil
	}
	if input.ReceiptCOSEBase64 != "" {
		return input.ReceiptCOSEBase64.Decode()
	}
	return nil, fmt.Errorf("no receipt provided")
}

func validateMarket(input *ReceiptValidationInput, payload *exchangeapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.MarketID != payload.MarketID || input.Interval != payload.Interval {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Market mismatch: expected %s interval %d, receipt has %s interval %d",
			input.MarketID, input.Interval, payload.MarketID, payload.Interval))
		return false
	}

	if payload.HashNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Hash nonce missing from receipt")
		return false
	}

	computed := core.ComputeIntervalHash(payload.MarketID, payload.Interval, payload.HashNonce)
	if computed != payload.IntervalHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Interval hash mismatch: computed %s, receipt has %s", computed, payload.IntervalHash))
		return false
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Market validation passed: %s interval %d", payload.MarketID, payload.Interval))
	return true
}

func validateTradeHash(input *ReceiptValidationInput, payload *exchangeapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.Trade == nil {
		result.ValidationDetails = append(result.ValidationDetails, "No trade to validate")
		return true
	}

	computedHash := core.ComputeTradeHash(*input.Trade, payload.HashNonce)
	if slices.Contains(payload.TradeHashes, computedHash) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Trade hash found in receipt: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Trade hash NOT found in receipt. Computed: %s", computedHash))
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Total trade hashes in receipt: %d", len(payload.TradeHashes)))
	return false
}

func validateBidHash(input *ReceiptValidationInput, payload *exchangeapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.Bid == nil {
		result.ValidationDetails = append(result.ValidationDetails, "No bid to validate")
		return true
	}

	computedHash := core.ComputeBidHash(input.Bid.Side, input.Bid.Bid, payload.HashNonce)
	if slices.Contains(payload.BidHashes, computedHash) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash found in receipt: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Bid hash NOT found in receipt. Computed: %s", computedHash))
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Total bid hashes in receipt: %d", len(payload.BidHashes)))
	return false
}

func validateClearingPrice(input *ReceiptValidationInput, payload *exchangeapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.ClearingPrice == nil {
		if payload.ClearingPrice == nil {
			result.ValidationDetails = append(result.ValidationDetails, "Clearing price validation passed: no trades expected and none in receipt")
			return true
		}
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected no trades, but receipt has price %.6f", *payload.ClearingPrice))
		return false
	}

	if payload.ClearingPrice == nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected %.6f, but receipt has no clearing price", *input.ClearingPrice))
		return false
	}

	if core.PricesEqual(*input.ClearingPrice, *payload.ClearingPrice) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price validation passed: %.6f", *input.ClearingPrice))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Clearing price mismatch: expected %.6f, receipt has %.6f", *input.ClearingPrice, *payload.ClearingPrice))
	return false
}

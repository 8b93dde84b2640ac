package exchange

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/openmerit/elmarket/core"
	"github.com/openmerit/elmarket/exchangeapi"
)

// BuildReceiptPayload commits to every bid and trade of outcome using a fresh nonce.
func BuildReceiptPayload(outcome *IntervalOutcome) (*exchangeapi.ReceiptPayload, error) {
	if outcome == nil || outcome.Result == nil {
		return nil, fmt.Errorf("no outcome to build a receipt for")
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate hash nonce: %w", err)
	}

	tradeHashes := make([]string, 0, len(outcome.Result.Trades))
	for _, trade := range outcome.Result.Trades {
		tradeHashes = append(tradeHashes, core.ComputeTradeHash(trade, nonce))
	}

	bidHashes := make([]string, 0, len(outcome.Bids))
	for _, bid := range outcome.Bids {
		bidHashes = append(bidHashes, core.ComputeBidHash(bid.Side, bid.Bid, nonce))
	}

	return &exchangeapi.ReceiptPayload{
		MarketID:       outcome.MarketID,
		Interval:       outcome.Interval,
		IntervalHash:   core.ComputeIntervalHash(outcome.MarketID, outcome.Interval, nonce),
		TradeHashes:    tradeHashes,
		BidHashes:      bidHashes,
		HashNonce:      nonce,
		ClearingPrice:  outcome.Result.ClearingPrice,
		Termination:    outcome.Result.Termination,
		TotalVolume:    core.Summarize(outcome.Result).TotalVolume,
		TimestampMilli: outcome.ClearedAt.UnixMilli(),
	}, nil
}

// IssueReceipt signs the receipt payload of outcome as a COSE_Sign1 message.
func IssueReceipt(key *SigningKey, outcome *IntervalOutcome) (exchangeapi.ReceiptCOSE, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is nil")
	}

	payload, err := BuildReceiptPayload(outcome)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := exchangeapi.MarshalPayload(payload)
	if err != nil {
		return nil, err
	}

	signer, err := key.signer()
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(ReceiptAlgorithm)
	msg.Payload = payloadBytes

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("failed to sign receipt: %w", err)
	}

	receipt, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	return exchangeapi.ReceiptCOSE(receipt), nil
}

// generateNonce returns 256 bits of hex-encoded randomness.
func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

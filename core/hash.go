package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeTradeHash computes the hash committed to in clearing receipts.
// This is used by both the exchange (to issue receipts) and validation (to verify them).
//
// Formula: SHA256(seller_id + "|" + buyer_id + "|" + sprintf("%.6f", quantity) + "|" + sprintf("%.6f", price) + "|" + nonce)
//
// Quantity and price are formatted to exactly 6 decimal places so that the hash
// does not depend on how the float is represented in memory.
func ComputeTradeHash(trade Trade, nonce string) string {
	data := fmt.Sprintf("%s|%s|%.6f|%.6f|%s", trade.SellerID, trade.BuyerID, trade.Quantity, trade.Price, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeBidHash computes the hash of a submitted bid.
//
// Formula: SHA256(side + "|" + participant_id + "|" + sprintf("%.6f", quantity) + "|" + sprintf("%.6f", price) + "|" + nonce)
func ComputeBidHash(side Side, bid Bid, nonce string) string {
	data := fmt.Sprintf("%s|%s|%.6f|%.6f|%s", side, bid.ParticipantID, bid.Quantity, bid.Price, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeIntervalHash identifies one market interval.
//
// Formula: SHA256(market_id + "|" + interval + "|" + nonce)
func ComputeIntervalHash(marketID string, interval int, nonce string) string {
	data := fmt.Sprintf("%s|%d|%s", marketID, interval, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

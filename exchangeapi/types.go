package exchangeapi

import (
	"time"

	"github.com/openmerit/elmarket/core"
)

// MessageType tags every request and response exchanged with the exchange server.
type MessageType string

const (
	MessageTypePing             MessageType = "ping"
	MessageTypePong             MessageType = "pong"
	MessageTypeSubmitBid        MessageType = "submit_bid"
	MessageTypeSubmitBidResult  MessageType = "submit_bid_response"
	MessageTypeClearInterval    MessageType = "clear_interval"
	MessageTypeClearingResponse MessageType = "clearing_response"
	MessageTypePublicKey        MessageType = "public_key"
	MessageTypePublicKeyResult  MessageType = "public_key_response"
	MessageTypeError            MessageType = "error"
)

// Envelope is decoded first to select a handler by Type.
type Envelope struct {
	Type MessageType `json:"type"`
}

// PingResponse answers a ping.
type PingResponse struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	Timestamp int64       `json:"timestamp"`
}

// ErrorResponse is returned for malformed or unknown requests.
type ErrorResponse struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// EncryptedBidPrice carries a bid price sealed to the exchange's bid key with
// RSA-OAEP/AES-256-GCM, so that it is only readable by the clearing engine.
type EncryptedBidPrice struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64-encoded RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64-encoded AES-GCM encrypted {"price": X}
	Nonce            string `json:"nonce"`                    // base64-encoded GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // "SHA-256" (default) or "SHA-1" for RSA-OAEP
}

// SubmitBidRequest places one bid into the open interval of a market.
// When EncryptedPrice is set, Bid.Price is ignored and replaced by the sealed price.
type SubmitBidRequest struct {
	Type           MessageType        `json:"type"`
	MarketID       string             `json:"market_id"`
	Side           core.Side          `json:"side"`
	Bid            core.Bid           `json:"bid"`
	EncryptedPrice *EncryptedBidPrice `json:"encrypted_price,omitempty"`
}

// SubmitBidResponse acknowledges (or rejects) a submitted bid.
type SubmitBidResponse struct {
	Type     MessageType `json:"type"`
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	BidID    string      `json:"bid_id,omitempty"`
	Interval int         `json:"interval"`
}

// ClearIntervalRequest closes the open interval of a market and clears it.
type ClearIntervalRequest struct {
	Type     MessageType `json:"type"`
	MarketID string      `json:"market_id"`
}

// ClearingResponse carries the outcome of one cleared interval.
type ClearingResponse struct {
	Type           MessageType       `json:"type"`
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	MarketID       string            `json:"market_id"`
	Interval       int               `json:"interval"`
	Trades         []core.Trade      `json:"trades,omitempty"`
	ClearingPrice  *float64          `json:"clearing_price,omitempty"`
	Termination    core.Termination  `json:"termination,omitempty"`
	Receipt        ReceiptCOSEBase64 `json:"receipt,omitempty"`
	ProcessingTime int64             `json:"processing_time_ms"`
}

// PublicKeyResponse returns the PEM public key receipts are signed with and
// the PEM RSA key bid prices may be sealed to.
type PublicKeyResponse struct {
	Type      MessageType `json:"type"`
	PublicKey string      `json:"public_key"`
	Algorithm string      `json:"algorithm"`
	BidKey    string      `json:"bid_key"`
}

// ClearedBidNotice is delivered to the seller and to the buyer of every trade.
type ClearedBidNotice struct {
	MarketID string    `json:"market_id"`
	Interval int       `json:"interval"`
	SellerID string    `json:"seller_id"`
	BuyerID  string    `json:"buyer_id"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

// Trade returns the trade the notice was derived from.
func (n ClearedBidNotice) Trade() core.Trade {
	return core.Trade{
		SellerID: n.SellerID,
		BuyerID:  n.BuyerID,
		Quantity: n.Quantity,
		Price:    n.Price,
	}
}

// ReceiptPayload is the CBOR document signed into a clearing receipt.
type ReceiptPayload struct {
	MarketID       string           `cbor:"market_id" json:"market_id"`
	Interval       int              `cbor:"interval" json:"interval"`
	IntervalHash   string           `cbor:"interval_hash" json:"interval_hash"`
	TradeHashes    []string         `cbor:"trade_hashes" json:"trade_hashes"`
	BidHashes      []string         `cbor:"bid_hashes" json:"bid_hashes"`
	HashNonce      string           `cbor:"hash_nonce" json:"hash_nonce"`
	ClearingPrice  *float64         `cbor:"clearing_price" json:"clearing_price"`
	Termination    core.Termination `cbor:"termination" json:"termination"`
	TotalVolume    float64          `cbor:"total_volume" json:"total_volume"`
	TimestampMilli int64            `cbor:"timestamp" json:"timestamp"`
}

package exchangeapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/openmerit/elmarket/core"
)

// TestReceiptCOSE_Encode tests encoding raw COSE bytes to base64
func TestReceiptCOSE_Encode(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data"))

	encoded := coseBytes.EncodeBase64()
	check.NotEqual(t, "", encoded.String())

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

// TestReceiptCOSE_EncodeURLSafe tests URL-safe encoding
func TestReceiptCOSE_EncodeURLSafe(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-url-encoding?"))

	encoded := coseBytes.EncodeURLSafe()
	check.True(t, !strings.Contains(encoded.String(), "="))

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decoded)
}

// TestReceiptCOSE_CompressGzip tests GZIP compression with URL-safe encoding
func TestReceiptCOSE_CompressGzip(t *testing.T) {
	coseBytes := ReceiptCOSE([]byte("mock-cose-receipt-data-for-compression-testing"))

	compressed, err := coseBytes.CompressGzip()
	check.Nil(t, err)

	compressedStr := compressed.String()
	check.True(t, !strings.Contains(compressedStr, "+"))
	check.True(t, !strings.Contains(compressedStr, "/"))
	check.True(t, !strings.Contains(compressedStr, "="))

	decompressed, err := compressed.Decompress()
	check.Nil(t, err)
	check.Equal(t, coseBytes, decompressed)

	// Deterministic
	again, err := coseBytes.CompressGzip()
	check.Nil(t, err)
	check.Equal(t, compressed, again)
}

func TestReceiptCOSEBase64_Decode(t *testing.T) {
	tests := []struct {
		name      string
		input     ReceiptCOSEBase64
		wantErr   bool
		errSubstr string
	}{
		{
			name:  "valid base64",
			input: "bW9jay1jb3NlLXJlY2VpcHQ=",
		},
		{
			name:      "invalid base64 - illegal characters",
			input:     "not-valid-base64!!!@@@",
			wantErr:   true,
			errSubstr: "decode COSE base64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.input.Decode()

			if tt.wantErr {
				check.NotNil(t, err)
				check.True(t, strings.Contains(err.Error(), tt.errSubstr))
				check.Nil(t, result)
			} else {
				check.Nil(t, err)
				check.Equal(t, "mock-cose-receipt", string(result))
			}
		})
	}
}

func TestReceiptCOSEGzip_DecompressInvalid(t *testing.T) {
	_, err := ReceiptCOSEGzip("!!!").Decompress()
	check.NotNil(t, err)

	// Valid base64 but not gzip
	_, err = ReceiptCOSEGzip("bm90LWd6aXA").Decompress()
	check.NotNil(t, err)
}

func TestReceiptPayload_RoundTrip(t *testing.T) {
	price := 37.5
	payload := &ReceiptPayload{
		MarketID:       "dk1",
		Interval:       3,
		IntervalHash:   "abc",
		TradeHashes:    []string{"h1", "h2"},
		BidHashes:      []string{"b1"},
		HashNonce:      "nonce",
		ClearingPrice:  &price,
		Termination:    core.TerminationPriceCrossed,
		TotalVolume:    995,
		TimestampMilli: 1700000000000,
	}

	data, err := MarshalPayload(payload)
	assert.Nil(t, err)

	// Deterministic encoding
	again, err := MarshalPayload(payload)
	assert.Nil(t, err)
	check.Equal(t, data, again)

	decoded, err := UnmarshalPayload(data)
	assert.Nil(t, err)
	check.Equal(t, payload, decoded)
}

func TestReceiptPayload_NoClearingPrice(t *testing.T) {
	payload := &ReceiptPayload{MarketID: "dk1", Termination: core.TerminationEmptyMarket}

	data, err := MarshalPayload(payload)
	assert.Nil(t, err)

	decoded, err := UnmarshalPayload(data)
	assert.Nil(t, err)
	check.Nil(t, decoded.ClearingPrice)
	check.Equal(t, core.TerminationEmptyMarket, decoded.Termination)
}

func TestSubmitBidRequest_JSON(t *testing.T) {
	raw := `{"type":"submit_bid","market_id":"dk1","side":"supply","bid":{"participant_id":"G1","quantity":120,"price":0}}`

	var envelope Envelope
	assert.Nil(t, json.Unmarshal([]byte(raw), &envelope))
	check.Equal(t, MessageTypeSubmitBid, envelope.Type)

	var req SubmitBidRequest
	assert.Nil(t, json.Unmarshal([]byte(raw), &req))
	check.Equal(t, core.SideSupply, req.Side)
	check.Equal(t, core.Bid{ParticipantID: "G1", Quantity: 120}, req.Bid)
}

func TestClearedBidNotice_Trade(t *testing.T) {
	notice := ClearedBidNotice{MarketID: "dk1", SellerID: "G1", BuyerID: "D1", Quantity: 10, Price: 5}
	check.Equal(t, core.Trade{SellerID: "G1", BuyerID: "D1", Quantity: 10, Price: 5}, notice.Trade())
}

package exchangeapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ReceiptCOSE holds the raw COSE_Sign1 bytes of a clearing receipt.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is a standard base64 encoding of ReceiptCOSE for JSON transport.
type ReceiptCOSEBase64 string

// ReceiptCOSEGzip is a gzip-compressed, URL-safe base64 encoding of ReceiptCOSE.
type ReceiptCOSEGzip string

// EncodeBase64 encodes receipt bytes with standard base64.
func (r ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(r))
}

// EncodeURLSafe encodes receipt bytes with unpadded URL-safe base64.
func (r ReceiptCOSE) EncodeURLSafe() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.RawURLEncoding.EncodeToString(r))
}

// CompressGzip gzips the receipt and encodes it as unpadded URL-safe base64.
func (r ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(r); err != nil {
		return "", fmt.Errorf("gzip receipt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gzip receipt: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// String returns the encoded form.
func (r ReceiptCOSEBase64) String() string {
	return string(r)
}

// Decode accepts both standard and unpadded URL-safe base64.
func (r ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(r))
	if err == nil {
		return ReceiptCOSE(data), nil
	}
	data, urlErr := base64.RawURLEncoding.DecodeString(string(r))
	if urlErr != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

// String returns the encoded form.
func (r ReceiptCOSEGzip) String() string {
	return string(r)
}

// Decompress reverses CompressGzip.
func (r ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(r))
	if err != nil {
		return nil, fmt.Errorf("decode gzip base64: %w", err)
	}

	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompress receipt: %w", err)
	}
	return ReceiptCOSE(data), nil
}

// MarshalPayload encodes a receipt payload as deterministic CBOR.
func MarshalPayload(payload *ReceiptPayload) ([]byte, error) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create CBOR encoder: %w", err)
	}
	data, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes a CBOR receipt payload.
func UnmarshalPayload(data []byte) (*ReceiptPayload, error) {
	var payload ReceiptPayload
	if err := cbor.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse receipt payload: %w", err)
	}
	return &payload, nil
}

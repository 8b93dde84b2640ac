package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/openmerit/elmarket/exchangeapi"
)

// ParsePublicKeyPEM parses the PEM public key published by the exchange
func ParsePublicKeyPEM(publicKeyPEM string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not ECDSA")
	}
	return ecdsaKey, nil
}

// DecodeReceipt parses a COSE_Sign1 receipt without checking its signature
func DecodeReceipt(receipt exchangeapi.ReceiptCOSE) (*cose.Sign1Message, *exchangeapi.ReceiptPayload, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(receipt); err != nil {
		return nil, nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	payload, err := exchangeapi.UnmarshalPayload(msg.Payload)
	if err != nil {
		return nil, nil, err
	}
	return &msg, payload, nil
}

// VerifyReceiptSignature verifies the ES256 signature of a COSE_Sign1 receipt
func VerifyReceiptSignature(msg *cose.Sign1Message, publicKey *ecdsa.PublicKey) error {
	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return fmt.Errorf("read algorithm header: %w", err)
	}
	if alg != cose.AlgorithmES256 {
		return fmt.Errorf("unexpected receipt algorithm %s", alg)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, publicKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	// Receipts carry no external_aad
	if err := msg.Verify(nil, verifier); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}

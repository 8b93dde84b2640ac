package exchange

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"hash"
	"math"

	"github.com/openmerit/elmarket/exchangeapi"
)

// HashAlgorithm selects the RSA-OAEP hash of a sealed price.
type HashAlgorithm string

const (
	HashAlgorithmSHA256 HashAlgorithm = "SHA-256"
	// HashAlgorithmSHA1 is accepted for older clients only.
	HashAlgorithmSHA1 HashAlgorithm = "SHA-1"
)

const bidKeyBits = 2048

func newHash(hashAlg HashAlgorithm) (hash.Hash, error) {
	switch hashAlg {
	case HashAlgorithmSHA256, "":
		return sha256.New(), nil
	case HashAlgorithmSHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", hashAlg)
	}
}

// sealedPrice is the plaintext of an EncryptedBidPrice.
type sealedPrice struct {
	Price float64 `json:"price"`
}

// BidKey is the exchange's RSA key pair that participants seal bid prices to.
type BidKey struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey
}

// NewBidKey generates a fresh RSA-2048 bid key.
func NewBidKey() (*BidKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, bidKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate bid key: %w", err)
	}
	return &BidKey{privateKey: privateKey, PublicKey: &privateKey.PublicKey}, nil
}

// PublicKeyPEM returns the public bid key in PEM format
func (k *BidKey) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(k.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bid key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes})), nil
}

// OpenPrice decrypts a sealed bid price.
func (k *BidKey) OpenPrice(sealed *exchangeapi.EncryptedBidPrice) (float64, error) {
	if sealed == nil {
		return 0, fmt.Errorf("no sealed price")
	}

	plaintext, err := DecryptHybrid(sealed.AESKeyEncrypted, sealed.EncryptedPayload, sealed.Nonce,
		k.privateKey, HashAlgorithm(sealed.HashAlgorithm))
	if err != nil {
		return 0, err
	}

	var payload sealedPrice
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return 0, fmt.Errorf("invalid sealed price payload: %w", err)
	}
	if math.IsNaN(payload.Price) || math.IsInf(payload.Price, 0) {
		return 0, fmt.Errorf("sealed price is not finite")
	}
	return payload.Price, nil
}

// ParseBidKeyPEM parses a public bid key as returned by the public_key request.
func ParseBidKeyPEM(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse bid key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("bid key is not RSA")
	}
	return rsaKey, nil
}

// SealPrice encrypts price to a bid key, as a participant does before submitting.
func SealPrice(price float64, bidKey *rsa.PublicKey, hashAlg HashAlgorithm) (*exchangeapi.EncryptedBidPrice, error) {
	plaintext, err := json.Marshal(sealedPrice{Price: price})
	if err != nil {
		return nil, fmt.Errorf("marshal sealed price: %w", err)
	}

	sealed, err := EncryptHybrid(plaintext, bidKey, hashAlg)
	if err != nil {
		return nil, err
	}
	sealed.HashAlgorithm = string(hashAlg)
	return sealed, nil
}

// EncryptHybrid encrypts plaintext with a fresh AES-256-GCM key, itself
// encrypted to publicKey with RSA-OAEP. All fields are base64-encoded.
func EncryptHybrid(plaintext []byte, publicKey *rsa.PublicKey, hashAlg HashAlgorithm) (*exchangeapi.EncryptedBidPrice, error) {
	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("failed to generate AES key: %w", err)
	}

	aesgcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	encryptedKey, err := rsa.EncryptOAEP(hasher, rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt AES key: %w", err)
	}

	return &exchangeapi.EncryptedBidPrice{
		AESKeyEncrypted:  base64.StdEncoding.EncodeToString(encryptedKey),
		EncryptedPayload: base64.StdEncoding.EncodeToString(aesgcm.Seal(nil, nonce, plaintext, nil)),
		Nonce:            base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// DecryptHybrid reverses EncryptHybrid.
func DecryptHybrid(encryptedAESKey, encryptedPayload, nonceB64 string, privateKey *rsa.PrivateKey, hashAlg HashAlgorithm) ([]byte, error) {
	encryptedKeyBytes, err := base64.StdEncoding.DecodeString(encryptedAESKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted AES key: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted payload: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey, err := rsa.DecryptOAEP(hasher, rand.Reader, privateKey, encryptedKeyBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt AES key: %w", err)
	}
	if len(aesKey) != 32 {
		return nil, fmt.Errorf("invalid AES key length: expected 32 bytes, got %d", len(aesKey))
	}

	aesgcm, err := newGCM(aesKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: expected %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

func newGCM(aesKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesgcm, nil
}

// Package local implements a Signer backed by an in-process ECDSA key.
// It is intended for server-side payers and tests; interactive users
// should go through the wallet package instead.
package local

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/gateway-fm/ups-go/internal/eip712"
)

// Signer signs with a raw secp256k1 private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner parses a hex private key, with or without the 0x prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("local: invalid private key: %w", err)
	}
	return NewSignerFromKey(privateKey), nil
}

// NewSignerFromKey wraps an existing key.
func NewSignerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Generate creates a signer with a fresh random key.
func Generate() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("local: generate key: %w", err)
	}
	return NewSignerFromKey(key), nil
}

// Address returns the checksummed account address.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignMessage signs a human-readable message with the EIP-191 personal
// message prefix, matching what personal_sign produces.
func (s *Signer) SignMessage(_ context.Context, message string) (string, error) {
	digest := accounts.TextHash([]byte(message))
	return s.sign(digest)
}

// SignTypedData signs the EIP-712 digest of the typed data.
func (s *Signer) SignTypedData(_ context.Context, typedData apitypes.TypedData) (string, error) {
	digest, err := eip712.Digest(typedData)
	if err != nil {
		return "", fmt.Errorf("local: compute digest: %w", err)
	}
	return s.sign(digest)
}

// sign produces a 65-byte r||s||v signature with the Ethereum v offset.
func (s *Signer) sign(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("local: sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

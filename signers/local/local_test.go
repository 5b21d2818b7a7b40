package local

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/ups-go/internal/eip712"
)

// Well-known test key; never fund it.
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewSigner(t *testing.T) {
	signer, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"; signer.Address() != want {
		t.Errorf("Expected address %s, got %s", want, signer.Address())
	}

	// The prefix is optional.
	bare, err := NewSigner(strings.TrimPrefix(testKey, "0x"))
	if err != nil {
		t.Fatalf("NewSigner without prefix failed: %v", err)
	}
	if bare.Address() != signer.Address() {
		t.Error("Expected the same address with and without 0x prefix")
	}

	if _, err := NewSigner("not-a-key"); err == nil {
		t.Error("Expected error for malformed key")
	}
}

func recoverAddress(t *testing.T, digest []byte, signature string) common.Address {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("Expected 65-byte signature, got %d", len(sig))
	}
	if sig[64] < 27 {
		t.Fatalf("Expected Ethereum v offset, got %d", sig[64])
	}
	sig[64] -= 27

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("recover public key: %v", err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func TestSignMessage_Recoverable(t *testing.T) {
	signer, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	message := "Connect to UPSx402"
	signature, err := signer.SignMessage(context.Background(), message)
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}

	recovered := recoverAddress(t, accounts.TextHash([]byte(message)), signature)
	if recovered.Hex() != signer.Address() {
		t.Errorf("Recovered %s, want %s", recovered.Hex(), signer.Address())
	}
}

func TestSignTypedData_Recoverable(t *testing.T) {
	signer, err := NewSigner(testKey)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	auth, err := eip712.NewAuthorization(
		common.HexToAddress(signer.Address()),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(1000000),
		300,
	)
	if err != nil {
		t.Fatalf("NewAuthorization failed: %v", err)
	}
	typed := eip712.TypedData(auth, big.NewInt(8453), common.HexToAddress("0x3333333333333333333333333333333333333333"), "USD Coin", "2")

	signature, err := signer.SignTypedData(context.Background(), typed)
	if err != nil {
		t.Fatalf("SignTypedData failed: %v", err)
	}

	digest, err := eip712.Digest(typed)
	if err != nil {
		t.Fatalf("Digest failed: %v", err)
	}
	recovered := recoverAddress(t, digest, signature)
	if recovered.Hex() != signer.Address() {
		t.Errorf("Recovered %s, want %s", recovered.Hex(), signer.Address())
	}
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if a.Address() == b.Address() {
		t.Error("Expected distinct generated keys")
	}
}

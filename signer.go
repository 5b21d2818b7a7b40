package ups

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the signing capability consumed by the SDK. A browser
// wallet bridged over EIP-1193 (package wallet) and a local private key
// (package signers/local) both implement it.
type Signer interface {
	// Address returns the current signer address, or empty when no
	// account is bound.
	Address() string

	// SignMessage signs a human-readable text message (personal_sign).
	// Returns the 0x-hex signature.
	SignMessage(ctx context.Context, message string) (string, error)

	// SignTypedData signs EIP-712 structured data
	// (eth_signTypedData_v4). Returns the 0x-hex signature.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)
}

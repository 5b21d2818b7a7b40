package ups

import (
	"fmt"
	"math/big"
	"regexp"
)

// evmAddressRegex matches 0x-prefixed 20-byte hex addresses.
var evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAmount checks that an amount is a non-negative decimal
// integer in atomic units. Zero is allowed.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateAddress checks that an address is a plausible EVM address.
func ValidateAddress(address string) error {
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid address %q: want 0x followed by 40 hex characters", address)
	}
	return nil
}

// ValidateRequirements checks the invariants of a payment-requirements
// value: parseable amount and chain id, well-formed asset and recipient
// addresses, and a positive timeout.
func ValidateRequirements(req PaymentRequirements) error {
	if req.Scheme == "" {
		return fmt.Errorf("requirements: scheme is empty")
	}
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("requirements: %w", err)
	}
	if _, err := ChainID(req.Network); err != nil {
		return fmt.Errorf("requirements: %w", err)
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("requirements: asset: %w", err)
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("requirements: payTo: %w", err)
	}
	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("requirements: maxTimeoutSeconds must be positive, got %d", req.MaxTimeoutSeconds)
	}
	return nil
}

package ups

import (
	"errors"
	"time"
)

// Sentinel errors for UPS client operations.
var (
	// ErrNoSender indicates a payment has no resolvable payer address.
	ErrNoSender = errors.New("ups: no sender address")

	// ErrInvalidChainID indicates the network does not yield a numeric
	// chain id.
	ErrInvalidChainID = errors.New("ups: invalid chain ID")

	// ErrInvalidAmount indicates an amount that is not a non-negative
	// decimal integer in atomic units.
	ErrInvalidAmount = errors.New("ups: invalid amount")

	// ErrVerificationFailed indicates the facilitator rejected the
	// payment at the verify phase.
	ErrVerificationFailed = errors.New("ups: payment verification failed")

	// ErrSettlementFailed indicates the facilitator rejected the
	// payment at the settle phase.
	ErrSettlementFailed = errors.New("ups: payment settlement failed")

	// ErrMalformedHeader indicates a payment header that is not
	// "x402 " + base64 JSON.
	ErrMalformedHeader = errors.New("ups: malformed payment header")

	// ErrNotAuthenticated indicates an operation that requires an
	// active session.
	ErrNotAuthenticated = errors.New("ups: not authenticated")

	// ErrWalletNotConnected indicates a signer with no bound address.
	ErrWalletNotConnected = errors.New("ups: wallet not connected")

	// ErrUserRejected indicates the wallet user declined the request
	// (EIP-1193 code 4001).
	ErrUserRejected = errors.New("ups: user rejected request")
)

// ErrorCode classifies an Error for programmatic handling.
type ErrorCode string

const (
	// CodeNetwork is a transport-level failure: connectivity, timeout,
	// or a non-2xx status other than 401.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeAuth is an authentication failure: HTTP 401 or a rejected
	// signature challenge. Never retried.
	CodeAuth ErrorCode = "AUTH_ERROR"

	// CodeWallet is a signer failure, including user rejection.
	CodeWallet ErrorCode = "WALLET_ERROR"

	// CodePayment is a protocol-level payment rejection.
	CodePayment ErrorCode = "PAYMENT_ERROR"

	// CodeRateLimit is an HTTP 429 that survived the retry budget.
	CodeRateLimit ErrorCode = "RATE_LIMIT_ERROR"
)

// Error is a structured SDK error. Backend-supplied detail is preserved
// verbatim so callers can decide whether to retry with a fresh
// authorization.
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// Message is the human-readable description.
	Message string

	// Status is the HTTP status for transport failures, zero otherwise.
	Status int

	// Details carries the parsed JSON error body when available, or the
	// raw response text when the body was not JSON.
	Details any

	// Err is the underlying cause.
	Err error

	// retryAfter is the server-requested backoff for rate limits.
	retryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// RetryAfter reports the server-requested delay before retrying, or
// zero when none was given. The retry package consults this on rate
// limits.
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// NewNetworkError builds a transport failure.
func NewNetworkError(message string, status int, details any, err error) *Error {
	return &Error{Code: CodeNetwork, Message: message, Status: status, Details: details, Err: err}
}

// NewAuthError builds an authentication failure.
func NewAuthError(message string, err error) *Error {
	return &Error{Code: CodeAuth, Message: message, Status: 401, Err: err}
}

// NewWalletError builds a signer failure.
func NewWalletError(message string, err error) *Error {
	return &Error{Code: CodeWallet, Message: message, Err: err}
}

// NewPaymentError builds a payment-protocol failure.
func NewPaymentError(message string, err error) *Error {
	return &Error{Code: CodePayment, Message: message, Err: err}
}

// newRateLimitError builds a 429 failure carrying the Retry-After hint.
func newRateLimitError(retryAfter time.Duration, details any) *Error {
	return &Error{
		Code:       CodeRateLimit,
		Message:    "rate limited",
		Status:     429,
		Details:    details,
		retryAfter: retryAfter,
	}
}

// CodeOf extracts the ErrorCode from err, or empty when err is not an
// SDK error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether a failed request may be retried with the
// same parameters. Authentication and payment failures are terminal;
// transport failures and rate limits are not.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetwork, CodeRateLimit:
		return true
	default:
		return false
	}
}

// Package ups is the Go client SDK for the UPS payment platform.
//
// The SDK connects a signing capability (a browser wallet bridged over
// EIP-1193, or a local key) to the UPS backend: it authenticates via a
// wallet-signature challenge, manages custodial smart accounts, and
// builds, signs, verifies, and settles x402 token-transfer payments
// against the backend's facilitator endpoints.
//
// Payments use protocol version 1: an EIP-712 TransferWithAuthorization
// signature wrapped in a base64 JSON envelope and transported as a
// header value of the form "x402 " + base64.
package ups

import (
	"log/slog"
	"net/http"
	"time"
)

// X402Version is the payment protocol version carried in every envelope.
const X402Version = 1

// Config configures a Client.
type Config struct {
	// BaseURL is the UPS backend URL (e.g. "https://api.ups.example").
	BaseURL string

	// Network is the default blockchain network in CAIP-2 format
	// (e.g. "eip155:8453").
	Network string

	// ChainID is the numeric chain id. Parsed from Network when zero.
	ChainID int64

	// Timeout is the per-attempt HTTP timeout. Defaults to 30s.
	Timeout time.Duration

	// RetryAttempts is the number of additional attempts after the first
	// failed request. Defaults to 3 (four attempts in total); a negative
	// value disables retries.
	RetryAttempts int

	// RefreshInterval bounds how often the session token is refreshed.
	// Defaults to one minute.
	RefreshInterval time.Duration

	// HTTPClient is the underlying HTTP client. Defaults to a fresh
	// http.Client; the per-attempt timeout is applied via context.
	HTTPClient *http.Client

	// Logger receives session and transport diagnostics.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// withDefaults returns a copy of the config with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	// Zero means unset; a negative value disables retries and is
	// clamped where it is consumed.
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// AuthState is a snapshot of the session state. Observers receive copies;
// the live state is owned exclusively by the Session.
type AuthState struct {
	// IsAuthenticated is true exactly when Token is non-empty.
	IsAuthenticated bool

	// Token is the opaque bearer credential, or empty.
	Token string

	// ExpiresAt is the absolute token expiry, zero when unauthenticated.
	ExpiresAt time.Time

	// Address is the wallet address bound to the session, or empty.
	Address string
}

// AuthResult is the token grant returned by /auth/login, /auth/register
// and /auth/refresh.
type AuthResult struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// User is a backend user record.
type User struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

// ConnectResult is returned by the unified /auth/connect endpoint.
type ConnectResult struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	IsNewUser bool   `json:"isNewUser"`
}

// PaymentType tags the kind of payment carried in the requirements'
// extra metadata. The backend interprets the tag; the payment engine
// treats it as opaque.
type PaymentType string

const (
	PaymentTypeDirect  PaymentType = "DIRECT"
	PaymentTypeEscrow  PaymentType = "ESCROW"
	PaymentTypeInvoice PaymentType = "INVOICE"
)

// PaymentRequirements describes what must be paid.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier. Only "exact" exists today.
	Scheme string `json:"scheme"`

	// Network is the blockchain network in CAIP-2 format ("eip155:8453").
	Network string `json:"network"`

	// MaxAmountRequired is the amount in atomic token units as a decimal
	// integer string. Never a float: atomic amounts must be exact.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address.
	Asset string `json:"asset"`

	// PayTo is the recipient address.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds the authorization validity window.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	Resource    string `json:"resource,omitempty"`
	Description string `json:"description,omitempty"`

	// Extra carries the EIP-712 domain name/version and payment-kind
	// metadata (escrow arbiter/release time, invoice linkage). See
	// PaymentKind for the typed constructor surface.
	Extra map[string]any `json:"extra,omitempty"`

	// From optionally overrides the payer address.
	From string `json:"from,omitempty"`
}

// PaymentKind is the typed form of the payment-kind metadata smuggled
// through PaymentRequirements.Extra. Application code constructs one of
// Direct, Escrow or InvoiceRef; it is flattened into the wire map only
// at the edge.
type PaymentKind interface {
	// apply writes the kind's wire fields into the extra map.
	apply(extra map[string]any)
}

// Direct is a plain transfer. It adds no extra metadata.
type Direct struct{}

func (Direct) apply(map[string]any) {}

// Escrow describes an escrowed payment: funds are held until the
// arbiter releases them or the release time passes.
type Escrow struct {
	Arbiter     string
	ReleaseTime int64
	Payee       string
}

func (e Escrow) apply(extra map[string]any) {
	extra["payment_type"] = string(PaymentTypeEscrow)
	if e.Arbiter != "" {
		extra["arbiter"] = e.Arbiter
	}
	extra["release_time"] = e.ReleaseTime
	if e.Payee != "" {
		extra["payee"] = e.Payee
	}
}

// InvoiceRef links a payment to an invoice.
type InvoiceRef struct {
	InvoiceID   string
	PaymentType PaymentType // settlement mode of the invoice: DIRECT or ESCROW
}

func (r InvoiceRef) apply(extra map[string]any) {
	extra["payment_type"] = string(PaymentTypeInvoice)
	extra["invoice_id"] = r.InvoiceID
	if r.PaymentType != "" {
		extra["invoice_payment_type"] = string(r.PaymentType)
	}
}

// WithKind returns a copy of the requirements with the payment kind's
// metadata merged into Extra. Domain name/version entries already
// present are preserved.
func (r PaymentRequirements) WithKind(kind PaymentKind) PaymentRequirements {
	extra := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		extra[k] = v
	}
	kind.apply(extra)
	r.Extra = extra
	return r
}

// domainName returns the EIP-712 domain name from Extra, or the
// protocol default.
func (r PaymentRequirements) domainName() string {
	if s, ok := r.Extra["name"].(string); ok && s != "" {
		return s
	}
	return "x402 Payment Token"
}

// domainVersion returns the EIP-712 domain version from Extra, or the
// protocol default.
func (r PaymentRequirements) domainVersion() string {
	if s, ok := r.Extra["version"].(string); ok && s != "" {
		return s
	}
	return "1"
}

// PaymentAuthorization is a single-use transfer intent. It is built
// fresh for every payment, never persisted, and never reused: a consumed
// or expired authorization must be rejected by the backend.
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // atomic amount, decimal string
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"` // 32 random bytes, 0x-hex
}

// SignedAuthorization is a PaymentAuthorization with its EIP-712
// signature attached. This is the unit serialized into the wire payload.
type SignedAuthorization struct {
	PaymentAuthorization
	Signature string `json:"signature"`
}

// VerifyResponse is returned by POST /x402/verify.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is returned by POST /x402/settle.
//
// ErrorReason may accompany a successful settlement as informational
// detail; the Success flag alone decides the outcome.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// SupportedKind describes one scheme/network pair the facilitator
// accepts.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is returned by GET /x402/supported.
type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions,omitempty"`
	Signers    map[string][]string `json:"signers,omitempty"`
}

// AccountStatus is the lifecycle state of a smart account.
type AccountStatus string

const (
	AccountPending       AccountStatus = "pending"
	AccountKYCInProgress AccountStatus = "kyc_in_progress"
	AccountActive        AccountStatus = "active"
	AccountFrozen        AccountStatus = "frozen"
	AccountClosed        AccountStatus = "closed"
)

// Account is a custodial smart account tracked by the backend.
type Account struct {
	ID            string        `json:"id"`
	OwnerAddress  string        `json:"owner_address"`
	WalletAddress string        `json:"wallet_address"`
	Status        AccountStatus `json:"status"`
	KYCLevel      int           `json:"kyc_level"`
	UserID        string        `json:"user_id,omitempty"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at,omitempty"`
}

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoicePending       InvoiceStatus = "PENDING"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceCancelled     InvoiceStatus = "CANCELLED"
	InvoiceExpired       InvoiceStatus = "EXPIRED"
)

// Invoice is an invoice record. Amounts are atomic-unit decimal strings.
type Invoice struct {
	InvoiceID   string        `json:"invoice_id"`
	Merchant    string        `json:"merchant"`
	Payer       string        `json:"payer,omitempty"`
	Amount      string        `json:"amount"`
	PaidAmount  string        `json:"paid_amount"`
	DueDate     int64         `json:"due_date"`
	CreatedAt   int64         `json:"created_at"`
	PaymentType PaymentType   `json:"payment_type"`
	Status      InvoiceStatus `json:"status"`
	MetadataURI string        `json:"metadata_uri,omitempty"`
}

// EscrowStatus is the lifecycle state of an escrow.
type EscrowStatus string

const (
	EscrowActive   EscrowStatus = "ACTIVE"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// EscrowRecord is an escrow tracked by the backend.
type EscrowRecord struct {
	EscrowID    string       `json:"escrowId"`
	Payer       string       `json:"payer"`
	Payee       string       `json:"payee"`
	Amount      string       `json:"amount"`
	Arbiter     string       `json:"arbiter"`
	ReleaseTime int64        `json:"releaseTime"`
	Status      EscrowStatus `json:"status"`
}

// EscrowActionResponse is returned by escrow release/refund.
type EscrowActionResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
}

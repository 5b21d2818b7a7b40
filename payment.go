package ups

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/ups-go/internal/eip712"
)

// defaultInvoiceTimeoutSeconds bounds invoice-payment authorizations
// when the caller does not specify a window.
const defaultInvoiceTimeoutSeconds = 3600

// PaymentService drives the x402 verify-then-settle exchange: it
// builds a transfer authorization, obtains an EIP-712 signature from
// the signer, encodes the payment header, and submits it to the
// facilitator.
//
// Verify and settle are deliberately unauthenticated at the transport
// layer: payment authenticity is proven by the signature itself, not by
// a session token.
type PaymentService struct {
	http   *HTTPClient
	signer Signer
}

// NewPaymentService creates a payment engine over the given transport
// and signer. The signer may be nil when every payment names its payer
// explicitly.
func NewPaymentService(http *HTTPClient, signer Signer) *PaymentService {
	return &PaymentService{http: http, signer: signer}
}

// PayRequest names what to pay and, optionally, who pays.
type PayRequest struct {
	Requirements PaymentRequirements

	// From overrides the payer address. When empty, the requirements'
	// From field is used, then the signer's current address.
	From string
}

// facilitatorRequest is the body of the verify and settle endpoints.
type facilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentHeader       string              `json:"paymentHeader"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// Pay executes a full payment: build authorization, sign, verify,
// settle. Verify must report valid before settle is attempted; a
// rejected verification never reaches settlement. The authorization is
// single-use: a retry after any failure builds a fresh one with a new
// nonce and validity window.
func (p *PaymentService) Pay(ctx context.Context, req PayRequest) (*SettleResponse, error) {
	from := req.From
	if from == "" {
		from = req.Requirements.From
	}
	if from == "" && p.signer != nil {
		from = p.signer.Address()
	}
	if from == "" {
		return nil, NewPaymentError("No sender address provided", ErrNoSender)
	}

	// The backend resolves the payer's smart account from the
	// requirements for EIP-1271 signature checks, so From always
	// travels with them.
	requirements := req.Requirements
	requirements.From = from

	auth, err := p.BuildAuthorization(requirements, from)
	if err != nil {
		return nil, err
	}

	signed, err := p.SignAuthorization(ctx, auth, requirements)
	if err != nil {
		return nil, err
	}

	header, err := EncodePaymentHeader(signed, requirements)
	if err != nil {
		return nil, err
	}

	verification, err := p.VerifyHeader(ctx, header, requirements)
	if err != nil {
		return nil, err
	}
	if !verification.IsValid {
		return nil, NewPaymentError(
			fmt.Sprintf("Payment verification failed: %s", verification.InvalidReason),
			ErrVerificationFailed)
	}

	return p.SettleHeader(ctx, header, requirements)
}

// PayInvoiceParams supplies the settlement details an invoice record
// does not carry. The engine performs no unit conversion: Amount is the
// atomic-unit decimal string to transfer.
type PayInvoiceParams struct {
	Amount  string
	Asset   string
	Network string
	From    string

	// PayTo overrides the recipient; defaults to the invoice merchant.
	PayTo string

	// MaxTimeoutSeconds bounds the authorization window; defaults to
	// one hour.
	MaxTimeoutSeconds int
}

// PayInvoice pays an invoice by deriving payment requirements from the
// invoice record, tagging them with the invoice linkage, and delegating
// to Pay.
func (p *PaymentService) PayInvoice(ctx context.Context, invoice Invoice, params PayInvoiceParams) (*SettleResponse, error) {
	payTo := params.PayTo
	if payTo == "" {
		payTo = invoice.Merchant
	}
	timeout := params.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = defaultInvoiceTimeoutSeconds
	}

	requirements := PaymentRequirements{
		Scheme:            "exact",
		Network:           params.Network,
		MaxAmountRequired: params.Amount,
		Asset:             params.Asset,
		PayTo:             payTo,
		MaxTimeoutSeconds: timeout,
	}.WithKind(InvoiceRef{
		InvoiceID:   invoice.InvoiceID,
		PaymentType: invoice.PaymentType,
	})

	return p.Pay(ctx, PayRequest{Requirements: requirements, From: params.From})
}

// BuildAuthorization constructs a fresh single-use transfer
// authorization for the requirements: value = maxAmountRequired, valid
// from 60 seconds ago until maxTimeoutSeconds from now, random 32-byte
// nonce.
func (p *PaymentService) BuildAuthorization(requirements PaymentRequirements, from string) (PaymentAuthorization, error) {
	value, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok || value.Sign() < 0 {
		return PaymentAuthorization{}, NewPaymentError(
			fmt.Sprintf("invalid payment amount %q", requirements.MaxAmountRequired),
			ErrInvalidAmount)
	}

	auth, err := eip712.NewAuthorization(
		common.HexToAddress(from),
		common.HexToAddress(requirements.PayTo),
		value,
		requirements.MaxTimeoutSeconds,
	)
	if err != nil {
		return PaymentAuthorization{}, NewPaymentError("failed to build authorization", err)
	}

	return PaymentAuthorization{
		From:        from,
		To:          requirements.PayTo,
		Value:       requirements.MaxAmountRequired,
		ValidAfter:  auth.ValidAfter.Int64(),
		ValidBefore: auth.ValidBefore.Int64(),
		Nonce:       common.BytesToHash(auth.Nonce[:]).Hex(),
	}, nil
}

// SignAuthorization binds the authorization to the token contract via
// EIP-712 typed data and requests the signature from the signer.
func (p *PaymentService) SignAuthorization(ctx context.Context, auth PaymentAuthorization, requirements PaymentRequirements) (SignedAuthorization, error) {
	if p.signer == nil {
		return SignedAuthorization{}, NewWalletError("no signer configured", ErrWalletNotConnected)
	}

	chainID, err := ChainID(requirements.Network)
	if err != nil {
		return SignedAuthorization{}, NewPaymentError("Invalid chain ID", err)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return SignedAuthorization{}, NewPaymentError(
			fmt.Sprintf("invalid authorization value %q", auth.Value), ErrInvalidAmount)
	}

	typed := eip712.TypedData(
		&eip712.Authorization{
			From:        common.HexToAddress(auth.From),
			To:          common.HexToAddress(auth.To),
			Value:       value,
			ValidAfter:  big.NewInt(auth.ValidAfter),
			ValidBefore: big.NewInt(auth.ValidBefore),
			Nonce:       common.HexToHash(auth.Nonce),
		},
		big.NewInt(chainID),
		common.HexToAddress(requirements.Asset),
		requirements.domainName(),
		requirements.domainVersion(),
	)

	signature, err := p.signer.SignTypedData(ctx, typed)
	if err != nil {
		return SignedAuthorization{}, err
	}

	return SignedAuthorization{PaymentAuthorization: auth, Signature: signature}, nil
}

// Verify submits a signed authorization for validation without
// executing it.
func (p *PaymentService) Verify(ctx context.Context, signed SignedAuthorization, requirements PaymentRequirements) (*VerifyResponse, error) {
	header, err := EncodePaymentHeader(signed, requirements)
	if err != nil {
		return nil, err
	}
	return p.VerifyHeader(ctx, header, requirements)
}

// Settle executes a previously verified payment.
func (p *PaymentService) Settle(ctx context.Context, signed SignedAuthorization, requirements PaymentRequirements) (*SettleResponse, error) {
	header, err := EncodePaymentHeader(signed, requirements)
	if err != nil {
		return nil, err
	}
	return p.SettleHeader(ctx, header, requirements)
}

// VerifyHeader submits an already-encoded payment header to
// POST /x402/verify.
func (p *PaymentService) VerifyHeader(ctx context.Context, header string, requirements PaymentRequirements) (*VerifyResponse, error) {
	var resp VerifyResponse
	err := p.http.Post(ctx, "/x402/verify", facilitatorRequest{
		X402Version:         X402Version,
		PaymentHeader:       header,
		PaymentRequirements: requirements,
	}, &resp, SkipAuth())
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettleHeader submits an already-encoded payment header to
// POST /x402/settle. A response with Success false fails with the
// backend's stated reason; an ErrorReason accompanying Success true is
// informational and does not fail the payment.
func (p *PaymentService) SettleHeader(ctx context.Context, header string, requirements PaymentRequirements) (*SettleResponse, error) {
	var resp SettleResponse
	err := p.http.Post(ctx, "/x402/settle", facilitatorRequest{
		X402Version:         X402Version,
		PaymentHeader:       header,
		PaymentRequirements: requirements,
	}, &resp, SkipAuth())
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		message := "Payment settlement failed"
		if resp.ErrorReason != "" {
			message = fmt.Sprintf("Payment settlement failed: %s", resp.ErrorReason)
		}
		return nil, NewPaymentError(message, ErrSettlementFailed)
	}
	return &resp, nil
}

// Supported lists scheme/network pairs the facilitator accepts.
func (p *PaymentService) Supported(ctx context.Context) (*SupportedResponse, error) {
	var resp SupportedResponse
	if err := p.http.Get(ctx, "/x402/supported", &resp, SkipAuth()); err != nil {
		return nil, err
	}
	return &resp, nil
}

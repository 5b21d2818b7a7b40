package ups

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HeaderPrefix precedes the base64 envelope in a payment header value.
const HeaderPrefix = "x402 "

// AcceptedPayment is the requirements summary echoed inside the
// payment envelope.
type AcceptedPayment struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Amount            string `json:"amount"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

// WireAuthorization is the authorization as serialized on the wire.
// The validity bounds travel as decimal strings.
type WireAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Nonce       string `json:"nonce"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
}

// PaymentEnvelope is the JSON structure base64-encoded into the
// payment header.
type PaymentEnvelope struct {
	X402Version int             `json:"x402Version"`
	Accepted    AcceptedPayment `json:"accepted"`
	Payload     struct {
		Authorization WireAuthorization `json:"authorization"`
		Signature     string            `json:"signature"`
	} `json:"payload"`
}

// EncodePaymentHeader serializes a signed authorization and its
// requirements into the transport-safe header value
// "x402 " + base64(JSON envelope).
func EncodePaymentHeader(signed SignedAuthorization, requirements PaymentRequirements) (string, error) {
	env := PaymentEnvelope{
		X402Version: X402Version,
		Accepted: AcceptedPayment{
			Scheme:            requirements.Scheme,
			Network:           requirements.Network,
			Amount:            requirements.MaxAmountRequired,
			Asset:             requirements.Asset,
			PayTo:             requirements.PayTo,
			MaxTimeoutSeconds: requirements.MaxTimeoutSeconds,
		},
	}
	env.Payload.Authorization = WireAuthorization{
		From:        signed.From,
		To:          signed.To,
		Value:       signed.Value,
		Nonce:       signed.Nonce,
		ValidAfter:  strconv.FormatInt(signed.ValidAfter, 10),
		ValidBefore: strconv.FormatInt(signed.ValidBefore, 10),
	}
	env.Payload.Signature = signed.Signature

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal payment envelope: %w", err)
	}
	return HeaderPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentHeader parses a header value produced by
// EncodePaymentHeader. Returns ErrMalformedHeader when the prefix,
// base64, or JSON is invalid.
func DecodePaymentHeader(header string) (*PaymentEnvelope, error) {
	if !strings.HasPrefix(header, HeaderPrefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedHeader, strings.TrimSpace(HeaderPrefix))
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, HeaderPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	var env PaymentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	return &env, nil
}

// SignedAuthorization reconstructs the signed authorization carried in
// the envelope.
func (e *PaymentEnvelope) SignedAuthorization() (SignedAuthorization, error) {
	wire := e.Payload.Authorization

	validAfter, err := strconv.ParseInt(wire.ValidAfter, 10, 64)
	if err != nil {
		return SignedAuthorization{}, fmt.Errorf("%w: validAfter %q", ErrMalformedHeader, wire.ValidAfter)
	}
	validBefore, err := strconv.ParseInt(wire.ValidBefore, 10, 64)
	if err != nil {
		return SignedAuthorization{}, fmt.Errorf("%w: validBefore %q", ErrMalformedHeader, wire.ValidBefore)
	}

	return SignedAuthorization{
		PaymentAuthorization: PaymentAuthorization{
			From:        wire.From,
			To:          wire.To,
			Value:       wire.Value,
			ValidAfter:  validAfter,
			ValidBefore: validBefore,
			Nonce:       wire.Nonce,
		},
		Signature: e.Payload.Signature,
	}, nil
}

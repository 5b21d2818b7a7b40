// Package http provides merchant-side payment gating for net/http
// servers: a middleware that requires a valid x402 payment header
// before the wrapped handler runs.
package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	ups "github.com/gateway-fm/ups-go"
)

// Header names used by the payment exchange.
const (
	PaymentHeader         = "X-Payment"
	PaymentResponseHeader = "X-Payment-Response"
)

// Facilitator verifies and settles encoded payment headers. It is
// implemented by *ups.PaymentService.
type Facilitator interface {
	VerifyHeader(ctx context.Context, header string, requirements ups.PaymentRequirements) (*ups.VerifyResponse, error)
	SettleHeader(ctx context.Context, header string, requirements ups.PaymentRequirements) (*ups.SettleResponse, error)
}

// Config holds the middleware configuration.
type Config struct {
	// Facilitator performs verification and settlement.
	Facilitator Facilitator

	// Requirements lists the payment methods this resource accepts. A
	// submitted payment must match one of them.
	Requirements []ups.PaymentRequirements

	// Description is included in 402 responses.
	Description string

	// VerifyOnly skips settlement; the payment is only verified.
	VerifyOnly bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type contextKey string

// paymentContextKey stores the verification result for the handler.
const paymentContextKey = contextKey("ups_payment")

// paymentRequired is the 402 response body.
type paymentRequired struct {
	X402Version int                       `json:"x402Version"`
	Error       string                    `json:"error"`
	Accepts     []ups.PaymentRequirements `json:"accepts"`
}

// Middleware returns a handler wrapper that gates requests on a valid
// payment. The flow is strict: decode, match a requirement, verify,
// settle, and only then run the handler. A payment rejected at verify
// never reaches settlement.
func Middleware(config Config) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(PaymentHeader)
			if header == "" {
				logger.Info("no payment header provided", "path", r.URL.Path)
				sendPaymentRequired(w, config, "Payment required")
				return
			}

			envelope, err := ups.DecodePaymentHeader(header)
			if err != nil {
				logger.Warn("invalid payment header", "error", err)
				http.Error(w, "Invalid payment header", http.StatusBadRequest)
				return
			}
			if envelope.X402Version != ups.X402Version {
				logger.Warn("unsupported payment version", "version", envelope.X402Version)
				sendPaymentRequired(w, config, "Unsupported x402 version")
				return
			}

			requirement, ok := matchRequirement(envelope, config.Requirements)
			if !ok {
				logger.Warn("no matching payment requirement",
					"network", envelope.Accepted.Network, "asset", envelope.Accepted.Asset)
				sendPaymentRequired(w, config, "No matching payment requirement")
				return
			}

			verification, err := config.Facilitator.VerifyHeader(r.Context(), header, requirement)
			if err != nil {
				logger.Error("payment verification request failed", "error", err)
				http.Error(w, "Payment verification failed", http.StatusServiceUnavailable)
				return
			}
			if !verification.IsValid {
				logger.Warn("payment rejected", "reason", verification.InvalidReason)
				sendPaymentRequired(w, config, verification.InvalidReason)
				return
			}

			if !config.VerifyOnly {
				settlement, err := config.Facilitator.SettleHeader(r.Context(), header, requirement)
				if err != nil {
					if errors.Is(err, ups.ErrSettlementFailed) {
						logger.Warn("settlement rejected", "error", err)
						sendPaymentRequired(w, config, err.Error())
						return
					}
					logger.Error("settlement request failed", "error", err)
					http.Error(w, "Payment settlement failed", http.StatusServiceUnavailable)
					return
				}
				logger.Info("payment settled",
					"payer", settlement.Payer, "transaction", settlement.Transaction)
				setSettlementHeader(w, settlement)
			}

			ctx := context.WithValue(r.Context(), paymentContextKey, verification)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PaymentFromContext returns the verification result for a request that
// passed the middleware, or nil.
func PaymentFromContext(ctx context.Context) *ups.VerifyResponse {
	resp, _ := ctx.Value(paymentContextKey).(*ups.VerifyResponse)
	return resp
}

// matchRequirement finds the configured requirement the envelope pays
// for. Matching is on scheme, network, asset and an exact amount.
func matchRequirement(envelope *ups.PaymentEnvelope, requirements []ups.PaymentRequirements) (ups.PaymentRequirements, bool) {
	accepted := envelope.Accepted
	for _, req := range requirements {
		if req.Scheme != accepted.Scheme || req.Network != accepted.Network {
			continue
		}
		if !strings.EqualFold(req.Asset, accepted.Asset) || !strings.EqualFold(req.PayTo, accepted.PayTo) {
			continue
		}
		if req.MaxAmountRequired != accepted.Amount {
			continue
		}
		return req, true
	}
	return ups.PaymentRequirements{}, false
}

func sendPaymentRequired(w http.ResponseWriter, config Config, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)

	accepts := config.Requirements
	if config.Description != "" {
		accepts = make([]ups.PaymentRequirements, len(config.Requirements))
		copy(accepts, config.Requirements)
		for i := range accepts {
			if accepts[i].Description == "" {
				accepts[i].Description = config.Description
			}
		}
	}

	_ = json.NewEncoder(w).Encode(paymentRequired{
		X402Version: ups.X402Version,
		Error:       errMsg,
		Accepts:     accepts,
	})
}

// setSettlementHeader exposes the settlement result to the payer as a
// base64 JSON header value.
func setSettlementHeader(w http.ResponseWriter, settlement *ups.SettleResponse) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return
	}
	w.Header().Set(PaymentResponseHeader, base64.StdEncoding.EncodeToString(data))
}

// ParseSettlementHeader decodes an X-Payment-Response header value.
// Returns nil when the value is empty or malformed.
func ParseSettlementHeader(value string) *ups.SettleResponse {
	if value == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var settlement ups.SettleResponse
	if err := json.Unmarshal(data, &settlement); err != nil {
		return nil
	}
	return &settlement
}

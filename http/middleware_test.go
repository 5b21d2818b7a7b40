package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ups "github.com/gateway-fm/ups-go"
)

// fakeFacilitator scripts verify/settle outcomes and records calls.
type fakeFacilitator struct {
	verify     ups.VerifyResponse
	verifyErr  error
	settle     ups.SettleResponse
	settleErr  error
	verifyHits int
	settleHits int
}

func (f *fakeFacilitator) VerifyHeader(_ context.Context, _ string, _ ups.PaymentRequirements) (*ups.VerifyResponse, error) {
	f.verifyHits++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	resp := f.verify
	return &resp, nil
}

func (f *fakeFacilitator) SettleHeader(_ context.Context, _ string, _ ups.PaymentRequirements) (*ups.SettleResponse, error) {
	f.settleHits++
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	resp := f.settle
	if !resp.Success {
		return nil, ups.NewPaymentError("Payment settlement failed: "+resp.ErrorReason, ups.ErrSettlementFailed)
	}
	return &resp, nil
}

func gateRequirements() []ups.PaymentRequirements {
	return []ups.PaymentRequirements{{
		Scheme:            "exact",
		Network:           "eip155:8453",
		MaxAmountRequired: "1000000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
	}}
}

func validPaymentHeader(t *testing.T) string {
	t.Helper()
	signed := ups.SignedAuthorization{
		PaymentAuthorization: ups.PaymentAuthorization{
			From:        "0x1111111111111111111111111111111111111111",
			To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			Value:       "1000000",
			ValidAfter:  1700000000,
			ValidBefore: 1700000300,
			Nonce:       "0x" + strings.Repeat("ab", 32),
		},
		Signature: "0xsignature",
	}
	header, err := ups.EncodePaymentHeader(signed, gateRequirements()[0])
	if err != nil {
		t.Fatalf("EncodePaymentHeader failed: %v", err)
	}
	return header
}

func gatedHandler(t *testing.T, facilitator Facilitator, verifyOnly bool) (http.Handler, *bool) {
	t.Helper()
	reached := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		if payment := PaymentFromContext(r.Context()); payment == nil {
			t.Error("Expected verification result in context")
		}
		w.Write([]byte("protected content"))
	})
	gate := Middleware(Config{
		Facilitator:  facilitator,
		Requirements: gateRequirements(),
		VerifyOnly:   verifyOnly,
	})
	return gate(handler), &reached
}

func TestMiddleware_NoPaymentHeader(t *testing.T) {
	facilitator := &fakeFacilitator{}
	handler, reached := gatedHandler(t, facilitator, false)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if *reached {
		t.Error("Handler must not run without payment")
	}

	var body paymentRequired
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if body.X402Version != ups.X402Version || len(body.Accepts) != 1 {
		t.Errorf("Unexpected 402 body: %+v", body)
	}
	if facilitator.verifyHits != 0 {
		t.Error("Verify must not be called without a payment header")
	}
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	handler, reached := gatedHandler(t, &fakeFacilitator{}, false)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, "garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if *reached {
		t.Error("Handler must not run on malformed payment")
	}
}

func TestMiddleware_NoMatchingRequirement(t *testing.T) {
	facilitator := &fakeFacilitator{verify: ups.VerifyResponse{IsValid: true}}
	handler, reached := gatedHandler(t, facilitator, false)

	other := gateRequirements()[0]
	other.MaxAmountRequired = "999"
	header, err := ups.EncodePaymentHeader(ups.SignedAuthorization{
		PaymentAuthorization: ups.PaymentAuthorization{Value: "999", Nonce: "0x00"},
		Signature:            "0xsig",
	}, other)
	if err != nil {
		t.Fatalf("EncodePaymentHeader failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if *reached || facilitator.verifyHits != 0 {
		t.Error("Mismatched payment must be rejected before verification")
	}
}

func TestMiddleware_VerificationRejected(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: ups.VerifyResponse{IsValid: false, InvalidReason: "authorization expired"},
	}
	handler, reached := gatedHandler(t, facilitator, false)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, validPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authorization expired") {
		t.Errorf("Expected reason in body, got %s", rec.Body.String())
	}
	if *reached {
		t.Error("Handler must not run on rejected payment")
	}
	if facilitator.settleHits != 0 {
		t.Error("Settle must not be called for a rejected verification")
	}
}

func TestMiddleware_SettlesAndServes(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: ups.VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"},
		settle: ups.SettleResponse{Success: true, Transaction: "0xtx"},
	}
	handler, reached := gatedHandler(t, facilitator, false)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, validPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !*reached {
		t.Error("Expected handler to run")
	}
	if facilitator.verifyHits != 1 || facilitator.settleHits != 1 {
		t.Errorf("Expected one verify and one settle, got %d/%d", facilitator.verifyHits, facilitator.settleHits)
	}

	settlement := ParseSettlementHeader(rec.Header().Get(PaymentResponseHeader))
	if settlement == nil || settlement.Transaction != "0xtx" {
		t.Errorf("Expected settlement header, got %+v", settlement)
	}
}

func TestMiddleware_SettlementRejected(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: ups.VerifyResponse{IsValid: true},
		settle: ups.SettleResponse{Success: false, ErrorReason: "insufficient balance"},
	}
	handler, reached := gatedHandler(t, facilitator, false)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, validPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "insufficient balance") {
		t.Errorf("Expected reason in body, got %s", rec.Body.String())
	}
	if *reached {
		t.Error("Handler must not run on failed settlement")
	}
}

func TestMiddleware_VerifyOnly(t *testing.T) {
	facilitator := &fakeFacilitator{verify: ups.VerifyResponse{IsValid: true}}
	handler, reached := gatedHandler(t, facilitator, true)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(PaymentHeader, validPaymentHeader(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !*reached {
		t.Error("Expected handler to run")
	}
	if facilitator.settleHits != 0 {
		t.Error("VerifyOnly must skip settlement")
	}
}

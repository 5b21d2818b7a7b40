package gin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	ups "github.com/gateway-fm/ups-go"
	upshttp "github.com/gateway-fm/ups-go/http"
)

type fakeFacilitator struct {
	verify ups.VerifyResponse
	settle ups.SettleResponse
}

func (f *fakeFacilitator) VerifyHeader(_ context.Context, _ string, _ ups.PaymentRequirements) (*ups.VerifyResponse, error) {
	resp := f.verify
	return &resp, nil
}

func (f *fakeFacilitator) SettleHeader(_ context.Context, _ string, _ ups.PaymentRequirements) (*ups.SettleResponse, error) {
	resp := f.settle
	if !resp.Success {
		return nil, ups.NewPaymentError("Payment settlement failed: "+resp.ErrorReason, ups.ErrSettlementFailed)
	}
	return &resp, nil
}

func testRouter(facilitator upshttp.Facilitator, requirements []ups.PaymentRequirements) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(Config{
		Facilitator:  facilitator,
		Requirements: requirements,
	}))
	router.GET("/premium", func(c *gin.Context) {
		payment := PaymentFromContext(c)
		if payment == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no payment in context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payer": payment.Payer})
	})
	return router
}

func requirements() []ups.PaymentRequirements {
	return []ups.PaymentRequirements{{
		Scheme:            "exact",
		Network:           "eip155:8453",
		MaxAmountRequired: "1000000",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
	}}
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	signed := ups.SignedAuthorization{
		PaymentAuthorization: ups.PaymentAuthorization{
			From:        "0x1111111111111111111111111111111111111111",
			To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			Value:       "1000000",
			ValidAfter:  1700000000,
			ValidBefore: 1700000300,
			Nonce:       "0x" + strings.Repeat("cd", 32),
		},
		Signature: "0xsignature",
	}
	header, err := ups.EncodePaymentHeader(signed, requirements()[0])
	if err != nil {
		t.Fatalf("EncodePaymentHeader failed: %v", err)
	}
	return header
}

func TestGinMiddleware_NoPayment(t *testing.T) {
	router := testRouter(&fakeFacilitator{}, requirements())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/premium", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "accepts") {
		t.Errorf("Expected requirements in 402 body, got %s", rec.Body.String())
	}
}

func TestGinMiddleware_ValidPayment(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: ups.VerifyResponse{IsValid: true, Payer: "0x1111111111111111111111111111111111111111"},
		settle: ups.SettleResponse{Success: true, Transaction: "0xtx"},
	}
	router := testRouter(facilitator, requirements())

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(upshttp.PaymentHeader, paymentHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "0x1111111111111111111111111111111111111111") {
		t.Errorf("Expected payer in response, got %s", rec.Body.String())
	}
	if rec.Header().Get(upshttp.PaymentResponseHeader) == "" {
		t.Error("Expected settlement response header")
	}
}

func TestGinMiddleware_RejectedPayment(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: ups.VerifyResponse{IsValid: false, InvalidReason: "bad signature"},
	}
	router := testRouter(facilitator, requirements())

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set(upshttp.PaymentHeader, paymentHeader(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bad signature") {
		t.Errorf("Expected reason in body, got %s", rec.Body.String())
	}
}

// Package gin adapts the payment-gating middleware to Gin. It is a
// thin wrapper: the stdlib http package owns the verify and settle
// logic.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	ups "github.com/gateway-fm/ups-go"
	upshttp "github.com/gateway-fm/ups-go/http"
)

// Config is an alias for the stdlib middleware configuration.
type Config = upshttp.Config

// PaymentContextKey is the gin context key holding the verification
// result for gated handlers.
const PaymentContextKey = "ups_payment"

// Middleware returns a Gin handler that requires a valid payment before
// the route handler runs. On failure the chain is aborted with the
// status the stdlib middleware would have written.
func Middleware(config Config) gin.HandlerFunc {
	gate := upshttp.Middleware(config)

	return func(c *gin.Context) {
		proceeded := false
		gated := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proceeded = true
			c.Request = r
			if payment := upshttp.PaymentFromContext(r.Context()); payment != nil {
				c.Set(PaymentContextKey, payment)
			}
		}))

		gated.ServeHTTP(c.Writer, c.Request)
		if !proceeded {
			c.Abort()
			return
		}
		c.Next()
	}
}

// PaymentFromContext extracts the verification result from the Gin
// context, or nil when the request was not gated.
func PaymentFromContext(c *gin.Context) *ups.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*ups.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}

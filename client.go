package ups

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// connectMessage is the canonical challenge text signed for the
// unified auth flow.
const connectMessage = "Connect to UPSx402"

// Legacy challenge texts for the split login/register flow.
const (
	loginMessage    = "Login to UPSx402"
	registerMessage = "Register for UPSx402"
)

// Client is the composed UPS SDK client. One Client owns one logical
// session; there is no shared global state, so independent sessions are
// independent Client values.
type Client struct {
	config Config
	bus    *Bus
	http   *HTTPClient
	signer Signer

	// Session manages the bearer token and its scheduled refresh.
	Session *Session

	// Payment is the x402 payment engine.
	Payment *PaymentService

	// Account, Invoice, Escrow and User are the backend resource
	// services.
	Account *AccountService
	Invoice *InvoiceService
	Escrow  *EscrowService
	User    *UserService
}

// Option configures a Client.
type Option func(*Client)

// WithSigner attaches the signing capability: a wallet.Wallet, a
// signers/local key, or any other Signer implementation.
func WithSigner(signer Signer) Option {
	return func(c *Client) { c.signer = signer }
}

// New creates a Client for the given backend.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ups: config BaseURL is required")
	}
	if cfg.ChainID == 0 && cfg.Network != "" {
		id, err := ChainID(cfg.Network)
		if err != nil {
			if strings.HasPrefix(cfg.Network, "eip155:") {
				return nil, err
			}
		} else {
			cfg.ChainID = id
		}
	}
	cfg = cfg.withDefaults()

	c := &Client{config: cfg, bus: NewBus()}
	for _, opt := range opts {
		opt(c)
	}

	c.http = NewHTTPClient(cfg, func() string { return c.Session.Token() })
	c.Session = NewSession(c.http, c.bus, cfg)
	c.Payment = NewPaymentService(c.http, c.signer)
	c.Account = NewAccountService(c.http)
	c.Invoice = NewInvoiceService(c.http)
	c.Escrow = NewEscrowService(c.http)
	c.User = NewUserService(c.http)

	return c, nil
}

// Config returns the effective client configuration.
func (c *Client) Config() Config { return c.config }

// Bus returns the client's notification bus.
func (c *Client) Bus() *Bus { return c.bus }

// Signer returns the configured signing capability, or nil.
func (c *Client) Signer() Signer { return c.signer }

// Authenticate performs the unified wallet-signature login: it signs
// the canonical connect message with the configured signer and posts it
// to /auth/connect, registering the wallet on first contact.
func (c *Client) Authenticate(ctx context.Context) (*ConnectResult, error) {
	address, err := c.signerAddress()
	if err != nil {
		return nil, err
	}

	signature, err := c.signer.SignMessage(ctx, connectMessage)
	if err != nil {
		return nil, err
	}

	return c.Session.Connect(ctx, address, connectMessage, signature)
}

// AuthenticateLegacy performs the split login/register flow: it tries
// login first and falls back to registration when the backend does not
// know the wallet.
func (c *Client) AuthenticateLegacy(ctx context.Context) (*AuthResult, error) {
	address, err := c.signerAddress()
	if err != nil {
		return nil, err
	}

	signature, err := c.signer.SignMessage(ctx, loginMessage)
	if err != nil {
		return nil, err
	}

	result, err := c.Session.Login(ctx, address, loginMessage, signature)
	if err == nil {
		return result, nil
	}
	if !isUnknownUser(err) {
		return nil, err
	}

	signature, err = c.signer.SignMessage(ctx, registerMessage)
	if err != nil {
		return nil, err
	}
	return c.Session.Register(ctx, address, registerMessage, signature)
}

// Close terminates the session, cancels the refresh timer, and drops
// every bus subscription.
func (c *Client) Close() {
	c.Session.Logout()
	c.bus.Clear()
}

func (c *Client) signerAddress() (string, error) {
	if c.signer == nil {
		return "", NewWalletError("no signer configured", ErrWalletNotConnected)
	}
	address := c.signer.Address()
	if address == "" {
		return "", NewWalletError("wallet must be connected to authenticate", ErrWalletNotConnected)
	}
	return address, nil
}

// isUnknownUser reports whether an auth failure plausibly means the
// wallet has no backend user yet, in which case registration is tried.
func isUnknownUser(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Status {
	case 400, 401, 404:
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "not found")
}

// Package wallet binds an EIP-1193 provider to the SDK's Signer
// interface. The provider is anything that can service JSON-RPC style
// wallet requests: a browser bridge, a WalletConnect session, or a test
// double.
package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	ups "github.com/gateway-fm/ups-go"
)

// Provider is the EIP-1193 request surface. Params are marshalled to
// JSON positionally.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// EventProvider is implemented by providers that push wallet events.
// The returned function removes the subscription.
type EventProvider interface {
	On(event string, fn func(payload json.RawMessage)) (off func())
}

// RPCError is a JSON-RPC error returned by a provider. Code 4001 is the
// EIP-1193 user-rejection code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

const codeUserRejected = 4001

// Wallet adapts a Provider into a connected signing account. It
// implements ups.Signer once Connect has succeeded.
type Wallet struct {
	provider Provider
	bus      *ups.Bus

	mu      sync.RWMutex
	address string
	chainID int64

	offs []func()
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithBus forwards provider events (accountsChanged, chainChanged,
// disconnect) onto the SDK bus.
func WithBus(bus *ups.Bus) Option {
	return func(w *Wallet) { w.bus = bus }
}

// New creates a Wallet around the provider. Call Connect before using
// it as a signer.
func New(provider Provider, opts ...Option) *Wallet {
	w := &Wallet{provider: provider}
	for _, opt := range opts {
		opt(w)
	}
	w.subscribe()
	return w
}

// Connect requests account access from the provider and records the
// selected account and chain.
func (w *Wallet) Connect(ctx context.Context) (string, error) {
	raw, err := w.provider.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return "", walletError("wallet connection failed", err)
	}

	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", ups.NewWalletError("malformed eth_requestAccounts response", err)
	}
	if len(accounts) == 0 {
		return "", ups.NewWalletError("provider returned no accounts", ups.ErrWalletNotConnected)
	}

	chainID, err := w.fetchChainID(ctx)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	w.address = accounts[0]
	w.chainID = chainID
	w.mu.Unlock()

	if w.bus != nil {
		w.bus.Emit(ups.EventWalletConnected, accounts[0])
	}
	return accounts[0], nil
}

// Disconnect forgets the bound account. Providers have no standard
// disconnect request, so this is purely local state.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	had := w.address != ""
	w.address = ""
	w.chainID = 0
	w.mu.Unlock()

	if had && w.bus != nil {
		w.bus.Emit(ups.EventWalletDisconnected, nil)
	}
}

// Close removes provider event subscriptions and disconnects.
func (w *Wallet) Close() {
	for _, off := range w.offs {
		off()
	}
	w.offs = nil
	w.Disconnect()
}

// Address returns the connected account, or empty when disconnected.
func (w *Wallet) Address() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address
}

// ChainID returns the provider's reported chain id, or zero when
// disconnected.
func (w *Wallet) ChainID() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

// Connected reports whether an account is bound.
func (w *Wallet) Connected() bool { return w.Address() != "" }

// SignMessage signs a human-readable message via personal_sign. The
// message is hex encoded per the provider convention.
func (w *Wallet) SignMessage(ctx context.Context, message string) (string, error) {
	address, err := w.requireAddress()
	if err != nil {
		return "", err
	}

	hexMsg := "0x" + hex.EncodeToString([]byte(message))
	raw, err := w.provider.Request(ctx, "personal_sign", hexMsg, address)
	if err != nil {
		return "", walletError("message signing failed", err)
	}
	return decodeSignature(raw)
}

// SignTypedData signs EIP-712 typed data via eth_signTypedData_v4. The
// typed data is passed as its JSON encoding, which is what providers
// expect for the v4 method.
func (w *Wallet) SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error) {
	address, err := w.requireAddress()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(typedData)
	if err != nil {
		return "", ups.NewWalletError("typed data serialization failed", err)
	}

	raw, err := w.provider.Request(ctx, "eth_signTypedData_v4", address, string(payload))
	if err != nil {
		return "", walletError("typed data signing failed", err)
	}
	return decodeSignature(raw)
}

// SwitchChain asks the provider to switch to the given chain via
// wallet_switchEthereumChain.
func (w *Wallet) SwitchChain(ctx context.Context, chainID int64) error {
	param := map[string]string{"chainId": "0x" + strconv.FormatInt(chainID, 16)}
	if _, err := w.provider.Request(ctx, "wallet_switchEthereumChain", param); err != nil {
		return walletError("chain switch failed", err)
	}
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	return nil
}

func (w *Wallet) fetchChainID(ctx context.Context) (int64, error) {
	raw, err := w.provider.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, walletError("chain id request failed", err)
	}
	var hexID string
	if err := json.Unmarshal(raw, &hexID); err != nil {
		return 0, ups.NewWalletError("malformed eth_chainId response", err)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(hexID, "0x"), 16, 64)
	if err != nil {
		return 0, ups.NewWalletError("malformed eth_chainId response", err)
	}
	return id, nil
}

func (w *Wallet) requireAddress() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.address == "" {
		return "", ups.NewWalletError("wallet is not connected", ups.ErrWalletNotConnected)
	}
	return w.address, nil
}

// subscribe forwards provider push events onto the bus and keeps local
// account state in sync.
func (w *Wallet) subscribe() {
	ep, ok := w.provider.(EventProvider)
	if !ok {
		return
	}

	w.offs = append(w.offs, ep.On("accountsChanged", func(payload json.RawMessage) {
		var accounts []string
		if err := json.Unmarshal(payload, &accounts); err != nil {
			return
		}
		if len(accounts) == 0 {
			w.Disconnect()
			return
		}
		w.mu.Lock()
		w.address = accounts[0]
		w.mu.Unlock()
		if w.bus != nil {
			w.bus.Emit(ups.EventWalletAccountsChanged, accounts)
		}
	}))

	w.offs = append(w.offs, ep.On("chainChanged", func(payload json.RawMessage) {
		var hexID string
		if err := json.Unmarshal(payload, &hexID); err != nil {
			return
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(hexID, "0x"), 16, 64)
		if err != nil {
			return
		}
		w.mu.Lock()
		w.chainID = id
		w.mu.Unlock()
		if w.bus != nil {
			w.bus.Emit(ups.EventWalletChainChanged, id)
		}
	}))

	w.offs = append(w.offs, ep.On("disconnect", func(json.RawMessage) {
		w.Disconnect()
	}))
}

func decodeSignature(raw json.RawMessage) (string, error) {
	var sig string
	if err := json.Unmarshal(raw, &sig); err != nil {
		return "", ups.NewWalletError("malformed signature response", err)
	}
	return sig, nil
}

// walletError maps a provider failure onto the SDK error taxonomy,
// translating the 4001 rejection code to ErrUserRejected.
func walletError(message string, err error) error {
	if rpcErr, ok := err.(*RPCError); ok && rpcErr.Code == codeUserRejected {
		return ups.NewWalletError(message, ups.ErrUserRejected)
	}
	return ups.NewWalletError(message, err)
}

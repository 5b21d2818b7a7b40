package ups

import "sync"

// Event names published on the Bus.
const (
	// EventAuthChanged carries an AuthState snapshot.
	EventAuthChanged = "auth:changed"

	// EventWalletConnected and EventWalletDisconnected carry the wallet
	// address (string) or nil.
	EventWalletConnected    = "wallet:connected"
	EventWalletDisconnected = "wallet:disconnected"

	// EventWalletAccountsChanged carries the new address list ([]string).
	EventWalletAccountsChanged = "wallet:accountsChanged"

	// EventWalletChainChanged carries the new chain id (int64).
	EventWalletChainChanged = "wallet:chainChanged"
)

// Handler receives an event payload.
type Handler func(payload any)

// Bus is an in-process publish/subscribe registry. Session-state and
// wallet changes are published here so callers can observe them without
// polling. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]Handler)}
}

// On registers a handler for an event and returns its removal function.
// Removal is idempotent.
func (b *Bus) On(event string, fn Handler) (off func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[event] == nil {
		b.handlers[event] = make(map[int]Handler)
	}
	b.handlers[event][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.handlers[event]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(b.handlers, event)
			}
		}
	}
}

// Once registers a handler that is removed after its first invocation.
func (b *Bus) Once(event string, fn Handler) (off func()) {
	var once sync.Once
	var remove func()
	remove = b.On(event, func(payload any) {
		once.Do(func() {
			remove()
			fn(payload)
		})
	})
	return remove
}

// Emit delivers the payload to every handler registered for the event.
// Handlers run synchronously on the caller's goroutine, outside the
// registry lock, so a handler may subscribe or unsubscribe.
func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	set := b.handlers[event]
	fns := make([]Handler, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// Clear removes every registered handler.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string]map[int]Handler)
}

package ups

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshSafetyBuffer is how long before expiry a token is considered
// due for refresh.
const refreshSafetyBuffer = 5 * time.Minute

// defaultTokenTTL is assumed when the backend returns a token without
// an expiry and the token itself carries no exp claim.
const defaultTokenTTL = 24 * time.Hour

// Session holds the authentication state against the UPS backend:
// the bearer token, its expiry, and the wallet address bound to it.
//
// A successful login schedules a background refresh; at most one timer
// is pending at a time, and rescheduling cancels the previous one. A
// failed refresh terminates the session; the caller must
// re-authenticate with a fresh wallet signature. Token expiry is not
// watched independently: it is discovered when a refresh fails or a
// protected call returns 401.
type Session struct {
	http            *HTTPClient
	bus             *Bus
	logger          *slog.Logger
	refreshInterval time.Duration

	mu    sync.Mutex
	state AuthState
	timer *time.Timer
}

// NewSession creates an unauthenticated session.
func NewSession(http *HTTPClient, bus *Bus, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		http:            http,
		bus:             bus,
		logger:          cfg.Logger,
		refreshInterval: cfg.RefreshInterval,
	}
}

// connectRequest is the wallet-signature challenge body shared by the
// connect, login and register endpoints.
type connectRequest struct {
	WalletAddress string `json:"wallet_address"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
}

// Connect authenticates via the unified /auth/connect endpoint,
// registering the wallet on first contact. On success the session
// stores the token, schedules a refresh, and publishes EventAuthChanged.
func (s *Session) Connect(ctx context.Context, address, message, signature string) (*ConnectResult, error) {
	var result ConnectResult
	err := s.http.Post(ctx, "/auth/connect", connectRequest{
		WalletAddress: address,
		Message:       message,
		Signature:     signature,
	}, &result, SkipAuth())
	if err != nil {
		return nil, err
	}

	s.authSucceeded(result.Token, result.ExpiresAt, address)
	return &result, nil
}

// Login authenticates via the legacy /auth/login endpoint.
func (s *Session) Login(ctx context.Context, address, message, signature string) (*AuthResult, error) {
	return s.legacyAuth(ctx, "/auth/login", address, message, signature)
}

// Register registers via the legacy /auth/register endpoint.
func (s *Session) Register(ctx context.Context, address, message, signature string) (*AuthResult, error) {
	return s.legacyAuth(ctx, "/auth/register", address, message, signature)
}

func (s *Session) legacyAuth(ctx context.Context, path, address, message, signature string) (*AuthResult, error) {
	var result AuthResult
	err := s.http.Post(ctx, path, connectRequest{
		WalletAddress: address,
		Message:       message,
		Signature:     signature,
	}, &result, SkipAuth())
	if err != nil {
		return nil, err
	}

	s.authSucceeded(result.Token, result.ExpiresAt, address)
	return &result, nil
}

// Refresh rotates the session token. It is a no-op when no token is
// held. A failed refresh is terminal: the session is logged out and the
// caller must re-authenticate via wallet signature.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	token := s.state.Token
	address := s.state.Address
	s.mu.Unlock()
	if token == "" {
		return nil
	}

	var result AuthResult
	if err := s.http.Post(ctx, "/auth/refresh", nil, &result); err != nil {
		s.logger.Warn("token refresh failed, logging out", "error", err)
		s.Logout()
		return err
	}

	s.authSucceeded(result.Token, result.ExpiresAt, address)
	return nil
}

// Logout cancels any pending refresh and resets the session to
// unauthenticated. Idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = AuthState{}
	snapshot := s.state
	s.mu.Unlock()

	s.bus.Emit(EventAuthChanged, snapshot)
}

// Token returns the current bearer token, or empty.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

// State returns a snapshot of the session state.
func (s *Session) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// OnChange subscribes to session-state changes and returns the
// unsubscribe function.
func (s *Session) OnChange(fn func(AuthState)) (off func()) {
	return s.bus.On(EventAuthChanged, func(payload any) {
		if state, ok := payload.(AuthState); ok {
			fn(state)
		}
	})
}

// authSucceeded installs a new token, reschedules the refresh timer,
// and publishes the state change.
func (s *Session) authSucceeded(token, expiresAt, address string) {
	expiry := tokenExpiry(token, expiresAt, time.Now())

	s.mu.Lock()
	s.state = AuthState{
		IsAuthenticated: true,
		Token:           token,
		ExpiresAt:       expiry,
		Address:         address,
	}
	snapshot := s.state
	s.scheduleRefreshLocked(expiry)
	s.mu.Unlock()

	s.bus.Emit(EventAuthChanged, snapshot)
}

// scheduleRefreshLocked replaces the pending refresh timer. Callers
// must hold s.mu.
func (s *Session) scheduleRefreshLocked(expiresAt time.Time) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	delay, ok := refreshDelay(expiresAt, time.Now(), s.refreshInterval)
	if !ok {
		// Already expired: leave the session due for manual
		// re-authentication rather than arm a timer that fires late.
		return
	}

	s.timer = time.AfterFunc(delay, func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.logger.Warn("scheduled refresh failed", "error", err)
		}
	})
}

// refreshDelay computes when the next refresh should run. The second
// return is false when no timer should be armed (token already
// expired). A token within the safety buffer refreshes immediately.
func refreshDelay(expiresAt, now time.Time, interval time.Duration) (time.Duration, bool) {
	if expiresAt.IsZero() {
		return 0, false
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if remaining <= refreshSafetyBuffer {
		return 0, true
	}
	delay := remaining - refreshSafetyBuffer
	if interval < delay {
		delay = interval
	}
	return delay, true
}

// tokenExpiry resolves the token expiry: the backend-supplied RFC 3339
// timestamp wins; failing that the token's own exp claim is read
// (unverified, the backend remains the authority); failing that a
// conservative default TTL applies.
func tokenExpiry(token, expiresAt string, now time.Time) time.Time {
	if expiresAt != "" {
		if t, err := time.Parse(time.RFC3339, expiresAt); err == nil {
			return t
		}
	}

	if claims := parseJWTClaims(token); claims != nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return now.Add(defaultTokenTTL)
}

// parseJWTClaims decodes JWT claims without signature verification.
// Returns nil when the token is not a JWT.
func parseJWTClaims(token string) jwt.MapClaims {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/logging"
)

// TokenRefresher exchanges a refresh token for a new token pair.
// *api.Client satisfies this interface.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*api.TokenPair, error)
}

// Callbacks holds callbacks for session lifecycle events.
type Callbacks struct {
	// OnWarning is called once when the expiry warning is raised.
	OnWarning func(remaining time.Duration)

	// OnCountdownTick is called every countdown tick while the warning is
	// active, with whole seconds remaining until forced logout.
	OnCountdownTick func(secondsRemaining int)

	// OnRefreshed is called after a successful token refresh.
	OnRefreshed func(expiresAt time.Time)

	// OnLogout is called exactly once when the session ends.
	// Reasons: "expired", "refresh_failed", "user_logout".
	OnLogout func(reason string)
}

// Manager tracks the access token's expiry, raises a warning with a
// countdown before forced logout, and performs silent refresh on request.
// It is the single owner of token state; all timer goroutines stop when
// the session ends or Close is called.
type Manager struct {
	refresher TokenRefresher
	log       *logging.Logger
	callbacks Callbacks

	checkInterval    time.Duration
	warningThreshold time.Duration
	countdownTick    time.Duration

	now func() time.Time

	mu              sync.Mutex
	pair            *TokenPair
	warningActive   bool
	ended           bool
	countdownCancel context.CancelFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a session lifecycle manager. Tokens are installed
// separately via SetTokens; Start begins expiry monitoring.
func NewManager(cfg config.SessionConfig, refresher TokenRefresher, log *logging.Logger, callbacks Callbacks) *Manager {
	return &Manager{
		refresher:        refresher,
		log:              log.WithComponent("session"),
		callbacks:        callbacks,
		checkInterval:    cfg.CheckInterval(),
		warningThreshold: cfg.WarningThreshold(),
		countdownTick:    cfg.CountdownTick(),
		now:              time.Now,
	}
}

// SetTokens installs a new token pair, replacing both tokens atomically.
// The expiry is decoded locally from the access token's claims.
func (m *Manager) SetTokens(accessToken, refreshToken string) error {
	pair, err := NewTokenPair(accessToken, refreshToken)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pair = pair
	m.ended = false
	m.clearWarningLocked()
	m.mu.Unlock()

	m.log.Debug("tokens installed", "expires_at", pair.ExpiresAt)
	return nil
}

// AccessToken returns the current access token, or empty when no session
// is active.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair == nil {
		return ""
	}
	return m.pair.AccessToken
}

// Provider returns a TokenProvider view of the manager for the API client.
func (m *Manager) Provider() api.TokenProvider {
	return m.AccessToken
}

// Active reports whether a session is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair != nil && !m.ended
}

// Start begins the expiry monitor. The monitor compares the token expiry
// to now on every check interval and raises the warning once the remaining
// lifetime drops below the threshold.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// check performs one expiry comparison.
func (m *Manager) check(ctx context.Context) {
	m.mu.Lock()
	if m.ended || m.pair == nil || m.warningActive {
		m.mu.Unlock()
		return
	}

	remaining := m.pair.ExpiresAt.Sub(m.now())
	if remaining > m.warningThreshold {
		m.mu.Unlock()
		return
	}

	if remaining <= 0 {
		m.mu.Unlock()
		m.logout("expired")
		return
	}

	m.warningActive = true
	deadline := m.pair.ExpiresAt
	countdownCtx, cancel := context.WithCancel(ctx)
	m.countdownCancel = cancel
	m.mu.Unlock()

	m.log.Warn("session expiring soon", "remaining", remaining.Round(time.Second))
	if m.callbacks.OnWarning != nil {
		m.callbacks.OnWarning(remaining)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.countdown(countdownCtx, deadline)
	}()
}

// countdown ticks at countdown resolution until the deadline passes or the
// warning is cleared by a successful refresh.
func (m *Manager) countdown(ctx context.Context, deadline time.Time) {
	ticker := time.NewTicker(m.countdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining := deadline.Sub(m.now())
			if remaining <= 0 {
				m.logout("expired")
				return
			}
			if m.callbacks.OnCountdownTick != nil {
				m.callbacks.OnCountdownTick(int(remaining.Round(time.Second).Seconds()))
			}
		}
	}
}

// Refresh exchanges the refresh token for a new token pair. Both tokens are
// replaced together and the warning is cleared on success. A failed refresh
// proceeds to logout.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.ended || m.pair == nil {
		m.mu.Unlock()
		return apperrors.ErrNoSession
	}
	refreshToken := m.pair.RefreshToken
	m.mu.Unlock()

	wire, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		m.log.Error("token refresh failed", "error", err)
		m.logout("refresh_failed")
		return apperrors.Join(apperrors.ErrRefreshFailed, err)
	}

	pair, err := NewTokenPair(wire.AccessToken, wire.RefreshToken)
	if err != nil {
		m.logout("refresh_failed")
		return apperrors.Join(apperrors.ErrRefreshFailed, err)
	}

	m.mu.Lock()
	if m.ended {
		// Logout won the race; discard the refreshed pair.
		m.mu.Unlock()
		return apperrors.ErrNoSession
	}
	m.pair = pair
	m.clearWarningLocked()
	m.mu.Unlock()

	m.log.Info("session refreshed", "expires_at", pair.ExpiresAt)
	if m.callbacks.OnRefreshed != nil {
		m.callbacks.OnRefreshed(pair.ExpiresAt)
	}
	return nil
}

// Logout ends the session at the user's request.
func (m *Manager) Logout() {
	m.logout("user_logout")
}

// logout clears the token pair and fires OnLogout exactly once.
func (m *Manager) logout(reason string) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	m.ended = true
	m.pair = nil
	m.clearWarningLocked()
	m.mu.Unlock()

	m.log.Info("session ended", "reason", reason)
	if m.callbacks.OnLogout != nil {
		m.callbacks.OnLogout(reason)
	}
}

// clearWarningLocked cancels any running countdown. Caller holds m.mu.
func (m *Manager) clearWarningLocked() {
	m.warningActive = false
	if m.countdownCancel != nil {
		m.countdownCancel()
		m.countdownCancel = nil
	}
}

// Close stops the monitor and any countdown without ending the session
// server-side. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.clearWarningLocked()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

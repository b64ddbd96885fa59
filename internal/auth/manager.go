package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/examgate/examgate-client/internal/api"
	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/internal/session"
	"github.com/examgate/examgate-client/pkg/events"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNoPendingLogin: Verify2FA was called without a preceding login
	// that required a second factor. A programmer error, not a user one.
	ErrNoPendingLogin = errors.New("no login pending second-factor verification")
)

// LoginStatus is the non-error outcome of a login attempt.
type LoginStatus int

const (
	// LoginComplete: a session was granted and is now active.
	LoginComplete LoginStatus = iota
	// LoginSecondFactorRequired: password accepted, a one-time code is
	// needed before a session is granted.
	LoginSecondFactorRequired
)

// Manager sequences the network calls that change session state and
// translates backend responses into state transitions. It is the single
// subscriber of the unauthorized signal and the only component that
// starts or stops the renewal scheduler.
type Manager struct {
	mu        sync.Mutex
	api       APIClient
	store     *session.Store
	scheduler SessionScheduler
	pending   *models.PendingCredentials
	signedIn  bool

	// onReset is invoked after every full cleanup, standing in for the
	// frontend's hard navigation to the application root that discards
	// residual view state (notably an in-progress exam).
	onReset func()

	unsubscribe func()
}

// NewManager wires the orchestrator. onReset may be nil.
func NewManager(apiClient APIClient, store *session.Store, scheduler SessionScheduler, onReset func()) *Manager {
	return &Manager{
		api:       apiClient,
		store:     store,
		scheduler: scheduler,
		onReset:   onReset,
	}
}

// Subscribe attaches the manager to the unauthorized bus. Call once at
// startup; Close releases the subscription.
func (m *Manager) Subscribe(bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	m.mu.Lock()
	m.unsubscribe = cancel
	m.mu.Unlock()

	go func() {
		for range ch {
			m.handleUnauthorized()
		}
	}()
}

// Close releases the unauthorized subscription and stops the scheduler.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.scheduler.Stop()
}

// Resume restores a persisted session at startup. Returns true when an
// authenticated session is active afterwards.
func (m *Manager) Resume() bool {
	if m.store.Load() == nil {
		return false
	}

	m.mu.Lock()
	m.signedIn = true
	m.mu.Unlock()

	m.scheduler.Start()
	return true
}

// Login authenticates with email and password. Outcomes: LoginComplete
// with an active session, LoginSecondFactorRequired with credentials
// stashed for Verify2FA, or an error with no partial state left behind.
func (m *Manager) Login(ctx context.Context, email, password string) (LoginStatus, error) {
	result, err := m.api.Login(ctx, email, password, "")
	if err != nil {
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
		return 0, err
	}

	if result.RequiresSecondFactor {
		m.mu.Lock()
		m.pending = &models.PendingCredentials{Email: email, Password: password}
		m.mu.Unlock()
		logger.Info("Login requires second factor", zap.String("email", email))
		return LoginSecondFactorRequired, nil
	}

	return m.completeLogin(result.Token, result.User)
}

// Verify2FA resubmits the pending login with the one-time code. The
// pending credentials survive a wrong code so the user can retry; they
// are cleared on success.
func (m *Manager) Verify2FA(ctx context.Context, code string) (LoginStatus, error) {
	m.mu.Lock()
	pending := m.pending
	m.mu.Unlock()

	if pending == nil {
		return 0, ErrNoPendingLogin
	}

	result, err := m.api.Login(ctx, pending.Email, pending.Password, code)
	if err != nil {
		// Wrong or expired code keeps the pending credentials for a
		// retry; any other failure abandons the attempt.
		metrics.SecondFactorVerifications.WithLabelValues("error").Inc()
		if !errors.Is(err, api.ErrSecondFactorInvalid) {
			m.mu.Lock()
			m.pending = nil
			m.mu.Unlock()
		}
		return 0, err
	}

	if result.RequiresSecondFactor {
		// Backend asked again; treat like a wrong code and keep pending.
		metrics.SecondFactorVerifications.WithLabelValues("error").Inc()
		return LoginSecondFactorRequired, nil
	}

	metrics.SecondFactorVerifications.WithLabelValues("success").Inc()
	return m.completeLogin(result.Token, result.User)
}

func (m *Manager) completeLogin(tok string, user *models.User) (LoginStatus, error) {
	if err := m.store.Save(tok, user); err != nil {
		logger.Error("Failed to persist session after login", zap.Error(err))
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
		return 0, err
	}

	m.mu.Lock()
	m.pending = nil
	m.signedIn = true
	m.mu.Unlock()

	m.scheduler.Start()
	logger.Info("Login complete",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return LoginComplete, nil
}

// Logout ends the session. The backend call is best-effort: its failure
// is logged, never surfaced, and cleanup always completes, so logout
// always results in no session.
func (m *Manager) Logout(ctx context.Context) {
	tok := m.store.Token()
	if tok != "" {
		if err := m.api.Logout(ctx, tok); err != nil {
			logger.Warn("Backend logout failed, proceeding with local cleanup", zap.Error(err))
		}
	}
	m.cleanup()
}

// UpdateUser merges profile fields into the active session's user record.
func (m *Manager) UpdateUser(update models.UserUpdate) error {
	return m.store.UpdateUser(update)
}

// MarkActivity records user presence for the scheduler's idle policy.
func (m *Manager) MarkActivity() {
	m.scheduler.MarkActivity()
}

// IsAuthenticated reports whether an authenticated session is active.
func (m *Manager) IsAuthenticated() bool {
	return m.store.IsAuthenticated()
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *models.User {
	return m.store.User()
}

// handleUnauthorized reacts to the shared unauthorized broadcast with
// the same cleanup as Logout, minus the backend call. Signals received
// while already signed out are ignored, which breaks redirect loops the
// same way the frontend skips the landing route.
func (m *Manager) handleUnauthorized() {
	m.mu.Lock()
	wasSignedIn := m.signedIn
	m.mu.Unlock()

	if !wasSignedIn {
		return
	}
	logger.Info("Unauthorized signal received, clearing session")
	m.cleanup()
}

// cleanup tears down every piece of session state: scheduler timers,
// stored token and user, pending credentials, then the reset hook.
func (m *Manager) cleanup() {
	m.scheduler.Stop()
	m.store.Clear()

	m.mu.Lock()
	m.pending = nil
	wasSignedIn := m.signedIn
	m.signedIn = false
	onReset := m.onReset
	m.mu.Unlock()

	if wasSignedIn && onReset != nil {
		onReset()
	}
}

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/internal/storage"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"github.com/examgate/examgate-client/pkg/token"
	"go.uber.org/zap"
)

// Storage keys. Token and user are cleared together on every
// session-ending event; the remembered email is an independent
// preference and deliberately survives Clear.
const (
	keyToken           = "token"
	keyUser            = "user"
	keyRememberedEmail = "remembered_email"
)

var ErrNoActiveSession = errors.New("no active session")

// Store is the single owner of the in-memory session and the only
// writer of the token and user storage keys. Every other component
// reads through its accessors, which keeps the token/user invariant
// enforceable in one place.
type Store struct {
	mu      sync.Mutex
	backend storage.Store
	session *models.Session
}

// NewStore creates a session store over the given storage backend.
func NewStore(backend storage.Store) *Store {
	return &Store{backend: backend}
}

// Load reads the persisted session at startup. Partial state (token
// without user or user without token), an expired token, or a corrupt
// user record all self-heal: both keys are cleared and Load reports no
// session. Storage failures are logged and treated as no session as
// well; loading never fails open into a phantom authenticated state.
func (s *Store) Load() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, tokErr := s.backend.Get(keyToken)
	rawUser, userErr := s.backend.Get(keyUser)

	if tokErr != nil || userErr != nil {
		if !errors.Is(tokErr, storage.ErrKeyNotFound) && tokErr != nil {
			logger.Warn("Failed to read token from storage", zap.Error(tokErr))
		}
		if !errors.Is(userErr, storage.ErrKeyNotFound) && userErr != nil {
			logger.Warn("Failed to read user from storage", zap.Error(userErr))
		}
		// Either key missing or unreadable: a partial session is cleared
		// so it cannot resurface after the next write.
		s.clearLocked()
		return nil
	}

	if token.IsExpired(tok, 0) {
		logger.Info("Stored session token is expired, clearing session")
		s.clearLocked()
		return nil
	}

	user := &models.User{}
	if err := json.Unmarshal([]byte(rawUser), user); err != nil || user.ID == "" {
		logger.Warn("Stored user record is corrupt, clearing session", zap.Error(err))
		s.clearLocked()
		return nil
	}

	s.session = &models.Session{Token: tok, User: user}
	metrics.SessionActive.Set(1)
	logger.Info("Session restored from storage",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return s.snapshotLocked()
}

// Save persists a freshly granted session, replacing whatever was held.
func (s *Store) Save(tok string, user *models.User) error {
	if tok == "" || user == nil {
		return fmt.Errorf("session requires both token and user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rawUser, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}

	if err := s.backend.Set(keyToken, tok); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	if err := s.backend.Set(keyUser, string(rawUser)); err != nil {
		// Token without user violates the invariant; roll the token back.
		if delErr := s.backend.Delete(keyToken); delErr != nil {
			logger.Error("Failed to roll back token after user write failure", zap.Error(delErr))
		}
		return fmt.Errorf("failed to persist user record: %w", err)
	}

	s.session = &models.Session{Token: tok, User: user.Clone()}
	metrics.SessionActive.Set(1)
	return nil
}

// SetToken swaps in a renewed token for the current session.
func (s *Store) SetToken(tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNoActiveSession
	}
	if err := s.backend.Set(keyToken, tok); err != nil {
		return fmt.Errorf("failed to persist renewed token: %w", err)
	}
	s.session.Token = tok
	return nil
}

// UpdateUser merges profile fields into the current user record and
// re-persists it. No-ops when no session is active.
func (s *Store) UpdateUser(update models.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}

	merged := s.session.User.Clone()
	update.Apply(merged)

	rawUser, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}
	if err := s.backend.Set(keyUser, string(rawUser)); err != nil {
		return fmt.Errorf("failed to persist user record: %w", err)
	}

	s.session.User = merged
	return nil
}

// Clear drops the session from memory and storage. Idempotent; storage
// failures are logged and absorbed so cleanup always completes.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	if err := s.backend.Delete(keyToken); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		logger.Warn("Failed to delete token from storage", zap.Error(err))
	}
	if err := s.backend.Delete(keyUser); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		logger.Warn("Failed to delete user from storage", zap.Error(err))
	}
	s.session = nil
	metrics.SessionActive.Set(0)
}

// IsAuthenticated reports whether both a non-expired token and a user
// record are currently held.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.User == nil || s.session.Token == "" {
		return false
	}
	return !token.IsExpired(s.session.Token, 0)
}

// Token returns the current bearer token, or "" when signed out. The
// renewal scheduler re-reads it through this accessor at fire time.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// User returns a copy of the current user record, or nil when signed out.
func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	return s.session.User.Clone()
}

func (s *Store) snapshotLocked() *models.Session {
	return &models.Session{Token: s.session.Token, User: s.session.User.Clone()}
}

// RememberEmail persists the login email as a standalone preference.
// It is not part of the session and survives Clear.
func (s *Store) RememberEmail(email string) {
	if err := s.backend.Set(keyRememberedEmail, email); err != nil {
		logger.Warn("Failed to persist remembered email", zap.Error(err))
	}
}

// RememberedEmail returns the persisted login email, or "".
func (s *Store) RememberedEmail() string {
	email, err := s.backend.Get(keyRememberedEmail)
	if err != nil {
		return ""
	}
	return email
}

// ForgetEmail removes the persisted login email.
func (s *Store) ForgetEmail() {
	if err := s.backend.Delete(keyRememberedEmail); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		logger.Warn("Failed to delete remembered email", zap.Error(err))
	}
}

package stub

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrWrongPassword   = errors.New("wrong password")
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongOTP        = errors.New("wrong one-time code")
)

// Account is a backend-side user record in the stub directory.
type Account struct {
	User                models.User
	PasswordHash        []byte
	TwoFactorEnabled    bool
	SubscriptionExpired bool
	pendingSecret       string
}

// Directory holds the stub backend's accounts, live sessions and
// one-time codes. Sessions and codes live in TTL caches so an abandoned
// login attempt ages out on its own.
type Directory struct {
	mu       sync.Mutex
	accounts map[string]*Account
	sessions *gocache.Cache
	otps     *gocache.Cache
}

// NewDirectory creates a directory with the given session and OTP TTLs.
func NewDirectory(sessionTTL, otpTTL time.Duration) *Directory {
	return &Directory{
		accounts: make(map[string]*Account),
		sessions: gocache.New(sessionTTL, 10*time.Minute),
		otps:     gocache.New(otpTTL, time.Minute),
	}
}

// AddAccount registers an account with a bcrypt-hashed password.
func (d *Directory) AddAccount(user models.User, password string, twoFactor, subscriptionExpired bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[user.Email] = &Account{
		User:                user,
		PasswordHash:        hash,
		TwoFactorEnabled:    twoFactor,
		SubscriptionExpired: subscriptionExpired,
	}
	return nil
}

// SeedFixtures populates one account per role plus an account whose
// subscription has lapsed. Passwords are logged so the dev loop does not
// require reading the source.
func (d *Directory) SeedFixtures() error {
	fixtures := []struct {
		user        models.User
		password    string
		twoFactor   bool
		subsExpired bool
	}{
		{models.User{ID: uuid.NewString(), Name: "Sample Student", Email: "student@examgate.test", Role: models.RoleStudent}, "student-pass", false, false},
		{models.User{ID: uuid.NewString(), Name: "Sample Admin", Email: "admin@examgate.test", Role: models.RoleAdmin, EntityID: uuid.NewString()}, "admin-pass", true, false},
		{models.User{ID: uuid.NewString(), Name: "Sample Superadmin", Email: "superadmin@examgate.test", Role: models.RoleSuperAdmin}, "superadmin-pass", false, false},
		{models.User{ID: uuid.NewString(), Name: "Sample Representative", Email: "rep@examgate.test", Role: models.RoleRepresentative, EntityID: uuid.NewString()}, "rep-pass", false, false},
		{models.User{ID: uuid.NewString(), Name: "Lapsed Subscriber", Email: "expired@examgate.test", Role: models.RoleStudent}, "expired-pass", false, true},
	}

	for _, f := range fixtures {
		if err := d.AddAccount(f.user, f.password, f.twoFactor, f.subsExpired); err != nil {
			return err
		}
		logger.Info("Seeded stub account",
			zap.String("email", f.user.Email),
			zap.String("password", f.password),
			zap.String("role", string(f.user.Role)))
	}
	return nil
}

// Authenticate checks the email/password pair.
func (d *Directory) Authenticate(email, password string) (*Account, error) {
	d.mu.Lock()
	account, ok := d.accounts[email]
	d.mu.Unlock()

	if !ok {
		return nil, ErrAccountNotFound
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	return account, nil
}

// Get returns the account with the given email.
func (d *Directory) Get(email string) (*Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// IssueOTP generates and stores a one-time code for the account.
func (d *Directory) IssueOTP(email string) (string, error) {
	code, err := randomCode(6)
	if err != nil {
		return "", err
	}
	d.otps.SetDefault(email, code)
	return code, nil
}

// CheckOTP verifies a one-time code. A used code is consumed.
func (d *Directory) CheckOTP(email, code string) error {
	stored, found := d.otps.Get(email)
	if !found {
		return ErrWrongOTP
	}
	expected, ok := stored.(string)
	if !ok || expected != code {
		return ErrWrongOTP
	}
	d.otps.Delete(email)
	return nil
}

// CreateSession records a live session and returns its id.
func (d *Directory) CreateSession(email string) string {
	sessionID := uuid.NewString()
	d.sessions.SetDefault(sessionID, email)
	return sessionID
}

// SessionEmail resolves a live session id to the owning account email.
func (d *Directory) SessionEmail(sessionID string) (string, error) {
	value, found := d.sessions.Get(sessionID)
	if !found {
		return "", ErrSessionNotFound
	}
	email, ok := value.(string)
	if !ok {
		return "", ErrSessionNotFound
	}
	return email, nil
}

// RefreshSession extends a live session's TTL, matching the new token.
func (d *Directory) RefreshSession(sessionID string) {
	if email, err := d.SessionEmail(sessionID); err == nil {
		d.sessions.SetDefault(sessionID, email)
	}
}

// DropSession invalidates a session id. Unknown ids are ignored.
func (d *Directory) DropSession(sessionID string) {
	d.sessions.Delete(sessionID)
}

// GenerateTwoFactorSecret creates a pending 2FA secret for the account.
func (d *Directory) GenerateTwoFactorSecret(email string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[email]
	if !ok {
		return "", ErrAccountNotFound
	}
	secret, err := randomCode(8)
	if err != nil {
		return "", err
	}
	account.pendingSecret = secret
	return secret, nil
}

// SetTwoFactor flips 2FA for the account after the code check.
func (d *Directory) SetTwoFactor(email, code string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[email]
	if !ok {
		return ErrAccountNotFound
	}
	if enabled {
		if account.pendingSecret == "" || account.pendingSecret != code {
			return ErrWrongOTP
		}
		account.pendingSecret = ""
	}
	account.TwoFactorEnabled = enabled
	return nil
}

// randomCode returns n random decimal digits.
func randomCode(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}

package auth

import (
	"context"

	"github.com/examgate/examgate-client/internal/api"
)

// APIClient is the slice of the backend client the auth manager needs.
// Declared here so tests can substitute a mock.
type APIClient interface {
	Login(ctx context.Context, email, password, authenticationCode string) (*api.LoginResult, error)
	RenewToken(ctx context.Context, tok string) (string, error)
	Logout(ctx context.Context, tok string) error
}

// SessionScheduler is the slice of the renewal scheduler the auth
// manager drives.
type SessionScheduler interface {
	Start()
	Stop()
	MarkActivity()
}

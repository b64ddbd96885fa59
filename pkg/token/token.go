package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded view of a session token payload.
//
// Decoding is unverified on the client side: the signature is the backend's
// concern and every request is independently rejected there when the token is
// invalid. Expiry checks derived from these claims are advisory only and must
// never be used as an authorization decision.
type Claims struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Decode parses the payload segment of a token without verifying the
// signature. It never panics and returns nil for anything malformed.
func Decode(tokenString string) *Claims {
	if tokenString == "" {
		return nil
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

// ExpiresAt returns the decoded expiry of the token. The second return value
// is false when the token is malformed or carries no expiry claim.
func ExpiresAt(tokenString string) (time.Time, bool) {
	claims := Decode(tokenString)
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TimeUntil returns the remaining lifetime of the token. The result is
// negative when the token has already expired and zero when the token is
// malformed or has no expiry claim.
func TimeUntil(tokenString string) time.Duration {
	exp, ok := ExpiresAt(tokenString)
	if !ok {
		return 0
	}
	return time.Until(exp)
}

// IsExpired reports whether the token is expired, treating a token that
// expires within the buffer as already expired. Malformed tokens and tokens
// without an expiry claim count as expired.
func IsExpired(tokenString string, buffer time.Duration) bool {
	exp, ok := ExpiresAt(tokenString)
	if !ok {
		return true
	}
	return time.Now().Add(buffer).After(exp)
}

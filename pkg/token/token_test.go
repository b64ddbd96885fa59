package token_test

import (
	"testing"
	"time"

	"github.com/examgate/examgate-client/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidToken(t *testing.T) {
	issuer := token.NewIssuer("test-secret", "examgate-test", time.Hour)
	tok, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)

	claims := token.Decode(tok)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, token.TokenTypeSession, claims.TokenType)
	assert.Equal(t, "examgate-test", claims.Issuer)
}

func TestDecode_Malformed(t *testing.T) {
	assert.Nil(t, token.Decode(""))
	assert.Nil(t, token.Decode("not-a-jwt"))
	assert.Nil(t, token.Decode("a.b.c"))
	assert.Nil(t, token.Decode("!!!.???.###"))
}

func TestDecode_DoesNotVerifySignature(t *testing.T) {
	issuer := token.NewIssuer("secret-one", "examgate-test", time.Hour)
	tok, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)

	// Decoding ignores the signature entirely; only Validate checks it.
	other := token.NewIssuer("secret-two", "examgate-test", time.Hour)
	_, err = other.Validate(tok)
	assert.Error(t, err)
	assert.NotNil(t, token.Decode(tok))
}

func TestIsExpired(t *testing.T) {
	issuer := token.NewIssuer("test-secret", "examgate-test", time.Hour)

	valid, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)
	expired, err := issuer.IssueWithTTL("user-1", "session-1", -time.Minute)
	require.NoError(t, err)

	assert.False(t, token.IsExpired(valid, 0))
	assert.True(t, token.IsExpired(expired, 0))

	// Malformed tokens count as expired
	assert.True(t, token.IsExpired("", 0))
	assert.True(t, token.IsExpired("garbage", 0))

	// A token expiring inside the buffer counts as expired
	soon, err := issuer.IssueWithTTL("user-1", "session-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, token.IsExpired(soon, 0))
	assert.True(t, token.IsExpired(soon, 2*time.Minute))
}

func TestTimeUntil(t *testing.T) {
	issuer := token.NewIssuer("test-secret", "examgate-test", time.Hour)

	tok, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)
	remaining := token.TimeUntil(tok)
	assert.Greater(t, remaining, 59*time.Minute)
	assert.LessOrEqual(t, remaining, time.Hour)

	expired, err := issuer.IssueWithTTL("user-1", "session-1", -time.Minute)
	require.NoError(t, err)
	assert.Negative(t, token.TimeUntil(expired))

	assert.Equal(t, time.Duration(0), token.TimeUntil("garbage"))
}

func TestExpiresAt(t *testing.T) {
	issuer := token.NewIssuer("test-secret", "examgate-test", time.Hour)
	tok, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)

	exp, ok := token.ExpiresAt(tok)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	_, ok = token.ExpiresAt("garbage")
	assert.False(t, ok)
}

func TestIssuer_Validate(t *testing.T) {
	issuer := token.NewIssuer("test-secret", "examgate-test", time.Hour)

	tok, err := issuer.Issue("user-1", "session-1")
	require.NoError(t, err)

	claims, err := issuer.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	expired, err := issuer.IssueWithTTL("user-1", "session-1", -time.Minute)
	require.NoError(t, err)
	_, err = issuer.Validate(expired)
	assert.ErrorIs(t, err, token.ErrExpiredToken)

	_, err = issuer.Validate("garbage")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestTimingSafeCompare(t *testing.T) {
	assert.True(t, token.TimingSafeCompare("abc", "abc"))
	assert.False(t, token.TimingSafeCompare("abc", "abd"))
	assert.False(t, token.TimingSafeCompare("abc", "abcd"))
}

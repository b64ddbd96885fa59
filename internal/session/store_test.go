package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/internal/session"
	"github.com/examgate/examgate-client/internal/storage"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Initialize(logger.Config{Level: "debug", Environment: "development"}); err != nil {
		panic(err)
	}
}

var testIssuer = token.NewIssuer("store-test-secret", "examgate-test", time.Hour)

func testUser() *models.User {
	return &models.User{
		ID:    "user-1",
		Name:  "Test Student",
		Email: "student@examgate.test",
		Role:  models.RoleStudent,
	}
}

func mustIssue(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := testIssuer.IssueWithTTL("user-1", "session-1", ttl)
	require.NoError(t, err)
	return tok
}

func TestStore_SaveAndLoad(t *testing.T) {
	backend := storage.NewMemoryStore()
	store := session.NewStore(backend)
	tok := mustIssue(t, time.Hour)

	require.NoError(t, store.Save(tok, testUser()))
	assert.True(t, store.IsAuthenticated())

	// A second store over the same backend restores the session
	restored := session.NewStore(backend).Load()
	require.NotNil(t, restored)
	assert.Equal(t, tok, restored.Token)
	assert.Equal(t, "user-1", restored.User.ID)
	assert.Equal(t, models.RoleStudent, restored.User.Role)
}

func TestStore_SaveRequiresTokenAndUser(t *testing.T) {
	store := session.NewStore(storage.NewMemoryStore())

	assert.Error(t, store.Save("", testUser()))
	assert.Error(t, store.Save(mustIssue(t, time.Hour), nil))
	assert.False(t, store.IsAuthenticated())
}

func TestStore_LoadClearsPartialState(t *testing.T) {
	cases := map[string]func(t *testing.T, backend storage.Store){
		"token without user": func(t *testing.T, backend storage.Store) {
			require.NoError(t, backend.Set("token", mustIssue(t, time.Hour)))
		},
		"user without token": func(t *testing.T, backend storage.Store) {
			raw, err := json.Marshal(testUser())
			require.NoError(t, err)
			require.NoError(t, backend.Set("user", string(raw)))
		},
		"corrupt user record": func(t *testing.T, backend storage.Store) {
			require.NoError(t, backend.Set("token", mustIssue(t, time.Hour)))
			require.NoError(t, backend.Set("user", "{not json"))
		},
		"user record without id": func(t *testing.T, backend storage.Store) {
			require.NoError(t, backend.Set("token", mustIssue(t, time.Hour)))
			require.NoError(t, backend.Set("user", "{}"))
		},
		"expired token": func(t *testing.T, backend storage.Store) {
			raw, err := json.Marshal(testUser())
			require.NoError(t, err)
			require.NoError(t, backend.Set("token", mustIssue(t, -time.Minute)))
			require.NoError(t, backend.Set("user", string(raw)))
		},
	}

	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			backend := storage.NewMemoryStore()
			seed(t, backend)

			store := session.NewStore(backend)
			assert.Nil(t, store.Load())
			assert.False(t, store.IsAuthenticated())

			// Both keys are gone, not just the suspect one
			_, err := backend.Get("token")
			assert.ErrorIs(t, err, storage.ErrKeyNotFound)
			_, err = backend.Get("user")
			assert.ErrorIs(t, err, storage.ErrKeyNotFound)
		})
	}
}

func TestStore_LoadEmptyBackend(t *testing.T) {
	store := session.NewStore(storage.NewMemoryStore())
	assert.Nil(t, store.Load())
	assert.False(t, store.IsAuthenticated())
}

func TestStore_SetToken(t *testing.T) {
	backend := storage.NewMemoryStore()
	store := session.NewStore(backend)

	assert.ErrorIs(t, store.SetToken(mustIssue(t, time.Hour)), session.ErrNoActiveSession)

	require.NoError(t, store.Save(mustIssue(t, time.Minute), testUser()))
	renewed := mustIssue(t, time.Hour)
	require.NoError(t, store.SetToken(renewed))
	assert.Equal(t, renewed, store.Token())

	persisted, err := backend.Get("token")
	require.NoError(t, err)
	assert.Equal(t, renewed, persisted)
}

func TestStore_UpdateUser(t *testing.T) {
	backend := storage.NewMemoryStore()
	store := session.NewStore(backend)

	// No session is a no-op, not an error
	name := "Renamed"
	require.NoError(t, store.UpdateUser(models.UserUpdate{Name: &name}))

	require.NoError(t, store.Save(mustIssue(t, time.Hour), testUser()))
	phone := "+15550100"
	require.NoError(t, store.UpdateUser(models.UserUpdate{Name: &name, Phone: &phone}))

	user := store.User()
	require.NotNil(t, user)
	assert.Equal(t, "Renamed", user.Name)
	assert.Equal(t, "+15550100", user.Phone)
	assert.Equal(t, "student@examgate.test", user.Email)

	// The merged record is what got persisted
	restored := session.NewStore(backend).Load()
	require.NotNil(t, restored)
	assert.Equal(t, "Renamed", restored.User.Name)
}

func TestStore_UserReturnsCopy(t *testing.T) {
	store := session.NewStore(storage.NewMemoryStore())
	require.NoError(t, store.Save(mustIssue(t, time.Hour), testUser()))

	user := store.User()
	user.Name = "Mutated"
	assert.Equal(t, "Test Student", store.User().Name)
}

func TestStore_Clear(t *testing.T) {
	backend := storage.NewMemoryStore()
	store := session.NewStore(backend)
	require.NoError(t, store.Save(mustIssue(t, time.Hour), testUser()))

	store.Clear()
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, store.Token())
	assert.Nil(t, store.User())

	_, err := backend.Get("token")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	// Idempotent
	assert.NotPanics(t, store.Clear)
}

func TestStore_IsAuthenticatedWithExpiredToken(t *testing.T) {
	store := session.NewStore(storage.NewMemoryStore())
	require.NoError(t, store.Save(mustIssue(t, 2*time.Second), testUser()))
	require.True(t, store.IsAuthenticated())

	assert.Eventually(t, func() bool {
		return !store.IsAuthenticated()
	}, 4*time.Second, 50*time.Millisecond)
}

func TestStore_RememberedEmailSurvivesClear(t *testing.T) {
	store := session.NewStore(storage.NewMemoryStore())
	require.NoError(t, store.Save(mustIssue(t, time.Hour), testUser()))

	store.RememberEmail("student@examgate.test")
	store.Clear()
	assert.Equal(t, "student@examgate.test", store.RememberedEmail())

	store.ForgetEmail()
	assert.Empty(t, store.RememberedEmail())
}

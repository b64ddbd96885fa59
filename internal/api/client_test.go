package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/examgate/examgate-client/config"
	"github.com/examgate/examgate-client/internal/api"
	"github.com/examgate/examgate-client/internal/models"
	pkgerrors "github.com/examgate/examgate-client/pkg/errors"
	"github.com/examgate/examgate-client/pkg/events"
	"github.com/examgate/examgate-client/pkg/httpclient"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := logger.Initialize(logger.Config{Level: "debug", Environment: "development"}); err != nil {
		panic(err)
	}
}

func testAPIConfig(baseURL string) config.APIConfig {
	return config.APIConfig{
		BaseURL:        baseURL,
		LoginPath:      "/users/login",
		RenewPath:      "/users/renew-token",
		LogoutPath:     "/users/logout",
		ResendOTPPath:  "/users/resend-otp",
		TimeoutSeconds: 5,
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*api.Client, *events.Bus, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	bus := events.NewBus()
	client := api.NewClient(testAPIConfig(server.URL), httpclient.NewStandardClientWithTimeout(5*time.Second), bus)
	return client, bus, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_Login_Success(t *testing.T) {
	var gotBody models.LoginRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusOK, models.LoginResponse{
			Status: models.StatusSuccess,
			Payload: &models.LoginPayload{
				Token: "granted-token",
				User:  &models.User{ID: "user-1", Email: "student@examgate.test", Role: models.RoleStudent},
			},
		})
	})
	client, _, _ := newTestClient(t, handler)

	result, err := client.Login(context.Background(), "student@examgate.test", "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "granted-token", result.Token)
	assert.Equal(t, "user-1", result.User.ID)
	assert.False(t, result.RequiresSecondFactor)
	assert.Equal(t, "student@examgate.test", gotBody.Email)
	assert.Equal(t, "secret", gotBody.Password)
}

func TestClient_Login_SecondFactorRequired(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.LoginResponse{
			Status:       models.StatusSuccess,
			ResponseCode: models.CodeAuthenticationCodeRequired,
		})
	})
	client, _, _ := newTestClient(t, handler)

	result, err := client.Login(context.Background(), "admin@examgate.test", "secret", "")
	require.NoError(t, err)
	assert.True(t, result.RequiresSecondFactor)
	assert.Empty(t, result.Token)
	assert.Nil(t, result.User)
}

func TestClient_Login_InvalidSecondFactor(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeInvalidAuthenticationCode,
		})
	})
	client, _, _ := newTestClient(t, handler)

	_, err := client.Login(context.Background(), "admin@examgate.test", "secret", "000000")
	assert.ErrorIs(t, err, api.ErrSecondFactorInvalid)
}

func TestClient_Login_InvalidCredentials(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeInvalidCredentials,
		})
	})
	client, _, _ := newTestClient(t, handler)

	_, err := client.Login(context.Background(), "student@examgate.test", "wrong", "")
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)
}

func TestClient_Login_SubscriptionExpired(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeSubscriptionExpired,
		})
	})
	client, _, _ := newTestClient(t, handler)

	_, err := client.Login(context.Background(), "expired@examgate.test", "secret", "")
	assert.ErrorIs(t, err, api.ErrSubscriptionExpired)
}

func TestClient_Login_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, models.LoginResponse{
			Status:  models.StatusFailure,
			Message: "database is down",
		})
	})
	client, _, _ := newTestClient(t, handler)

	_, err := client.Login(context.Background(), "student@examgate.test", "secret", "")
	require.ErrorIs(t, err, api.ErrServer)
	assert.Contains(t, err.Error(), "database is down")
}

func loginDurationSamples(t *testing.T) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "examgate_login_duration_seconds" {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestClient_Login_DurationRecordedOnlyOnSuccess(t *testing.T) {
	rejecting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeInvalidCredentials,
		})
	})
	granting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.LoginResponse{
			Status: models.StatusSuccess,
			Payload: &models.LoginPayload{
				Token: "granted-token",
				User:  &models.User{ID: "user-1", Role: models.RoleStudent},
			},
		})
	})

	client, _, _ := newTestClient(t, rejecting)
	before := loginDurationSamples(t)
	_, err := client.Login(context.Background(), "student@examgate.test", "wrong", "")
	require.ErrorIs(t, err, api.ErrInvalidCredentials)
	assert.Equal(t, before, loginDurationSamples(t), "rejected logins must not land in the duration histogram")

	client, _, _ = newTestClient(t, granting)
	before = loginDurationSamples(t)
	_, err = client.Login(context.Background(), "student@examgate.test", "secret", "")
	require.NoError(t, err)
	assert.Equal(t, before+1, loginDurationSamples(t))
}

func TestClient_Login_DoesNotEmitUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.LoginResponse{Status: models.StatusFailure})
	})
	client, bus, _ := newTestClient(t, handler)
	ch, cancel := bus.Subscribe()
	defer cancel()

	// A rejected login is not a session expiry: no bearer was sent
	_, err := client.Login(context.Background(), "student@examgate.test", "wrong", "")
	require.ErrorIs(t, err, api.ErrInvalidCredentials)

	select {
	case <-ch:
		t.Fatal("login rejection must not broadcast unauthorized")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_RenewToken_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/renew-token", r.URL.Path)
		require.Equal(t, "Bearer old-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, models.RenewResponse{
			Status:  models.StatusSuccess,
			Payload: &models.RenewPayload{Token: "fresh-token"},
		})
	})
	client, _, _ := newTestClient(t, handler)

	newTok, err := client.RenewToken(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", newTok)
}

func TestClient_RenewToken_UnauthorizedEmitsSignal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, models.RenewResponse{Status: models.StatusFailure})
	})
	client, bus, _ := newTestClient(t, handler)
	ch, cancel := bus.Subscribe()
	defer cancel()

	_, err := client.RenewToken(context.Background(), "stale-token")
	require.ErrorIs(t, err, pkgerrors.ErrUnauthorized)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("a rejected bearer must broadcast unauthorized")
	}
}

func TestClient_RenewToken_NetworkErrorRetries(t *testing.T) {
	// A closed server makes every attempt a transport failure, which is
	// the only class the renewal retry predicate matches.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := api.NewClient(testAPIConfig(server.URL), httpclient.NewStandardClientWithTimeout(time.Second), events.NewBus())

	_, err := client.RenewToken(context.Background(), "old-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestClient_Logout(t *testing.T) {
	var gotBearer string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/logout", r.URL.Path)
		gotBearer = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
	})
	client, _, _ := newTestClient(t, handler)

	require.NoError(t, client.Logout(context.Background(), "current-token"))
	assert.Equal(t, "Bearer current-token", gotBearer)
}

func TestClient_Logout_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := api.NewClient(testAPIConfig(server.URL), httpclient.NewStandardClientWithTimeout(time.Second), events.NewBus())
	assert.Error(t, client.Logout(context.Background(), "current-token"))
}

func TestClient_ResendOTP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/resend-otp", r.URL.Path)
		writeJSON(w, http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
	})
	client, _, _ := newTestClient(t, handler)

	assert.NoError(t, client.ResendOTP(context.Background(), "admin@examgate.test"))
}

func TestClient_ResendOTP_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "mail gateway unavailable",
		})
	})
	client, _, _ := newTestClient(t, handler)

	err := client.ResendOTP(context.Background(), "admin@examgate.test")
	require.ErrorIs(t, err, api.ErrServer)
}

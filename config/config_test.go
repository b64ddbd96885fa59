package config_test

import (
	"testing"

	"github.com/examgate/examgate-client/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8085", cfg.API.BaseURL)
	assert.Equal(t, "/users/login", cfg.API.LoginPath)
	assert.Equal(t, "/users/renew-token", cfg.API.RenewPath)
	assert.Equal(t, "/users/logout", cfg.API.LogoutPath)
	assert.Equal(t, 120, cfg.Session.RenewThresholdSeconds)
	assert.Equal(t, 30, cfg.Session.CheckIntervalSeconds)
	assert.Equal(t, config.RenewalPolicyAuto, cfg.Session.RenewalPolicy)
	assert.Equal(t, "default", cfg.Storage.Scope)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.examgate.test")
	t.Setenv("RENEW_THRESHOLD_SECONDS", "60")
	t.Setenv("RENEWAL_POLICY", "prompt")
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORAGE_SCOPE", "tab-7")
	t.Setenv("STUB_ALLOWED_ORIGINS", "https://one.test, https://two.test")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.examgate.test", cfg.API.BaseURL)
	assert.Equal(t, 60, cfg.Session.RenewThresholdSeconds)
	assert.Equal(t, config.RenewalPolicyPrompt, cfg.Session.RenewalPolicy)
	assert.Equal(t, "tab-7", cfg.Storage.Scope)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://one.test", "https://two.test"}, cfg.Stub.AllowedOrigins)
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	t.Setenv("RENEWAL_POLICY", "sometimes")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			API: config.APIConfig{
				BaseURL:    "http://localhost:8085",
				LoginPath:  "/users/login",
				RenewPath:  "/users/renew-token",
				LogoutPath: "/users/logout",
			},
			Session: config.SessionConfig{
				RenewThresholdSeconds: 120,
				CheckIntervalSeconds:  30,
				RenewalPolicy:         config.RenewalPolicyAuto,
			},
			Storage: config.StorageConfig{Scope: "default"},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.API.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.API.RenewPath = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Session.RenewThresholdSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Session.CheckIntervalSeconds = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Session.RenewalPolicy = "manual"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.Scope = ""
	assert.Error(t, cfg.Validate())
}

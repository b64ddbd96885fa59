package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Renewal policies for the session scheduler.
const (
	RenewalPolicyAuto   = "auto"
	RenewalPolicyPrompt = "prompt"
)

// Config holds all application configuration
//
//nolint:govet // Field alignment optimization would reduce readability
type Config struct {
	API         APIConfig
	Session     SessionConfig
	Storage     StorageConfig
	Credentials CredentialsConfig
	Logging     LoggingConfig
	Stub        StubConfig
	AppEnv      string
}

type APIConfig struct {
	BaseURL        string
	LoginPath      string
	RenewPath      string
	LogoutPath     string
	ResendOTPPath  string
	TimeoutSeconds int
}

type SessionConfig struct {
	RenewThresholdSeconds int
	CheckIntervalSeconds  int
	IdleAfterSeconds      int
	RenewalPolicy         string
}

type StorageConfig struct {
	Dir   string
	Scope string
}

type CredentialsConfig struct {
	Email         string
	Password      string
	RememberEmail bool
}

type LoggingConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type StubConfig struct {
	Port            string
	GinMode         string
	AllowedOrigins  []string
	JWTSecret       string
	JWTIssuer       string
	TokenTTLMinutes int
	OTPTTLMinutes   int
	LoginRatePerMin float64
	LoginBurst      int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("API_BASE_URL", "http://localhost:8085")
	v.SetDefault("API_LOGIN_PATH", "/users/login")
	v.SetDefault("API_RENEW_PATH", "/users/renew-token")
	v.SetDefault("API_LOGOUT_PATH", "/users/logout")
	v.SetDefault("API_RESEND_OTP_PATH", "/users/resend-otp")
	v.SetDefault("API_TIMEOUT_SECONDS", 15)
	v.SetDefault("RENEW_THRESHOLD_SECONDS", 120)
	v.SetDefault("CHECK_INTERVAL_SECONDS", 30)
	v.SetDefault("IDLE_AFTER_SECONDS", 300)
	v.SetDefault("RENEWAL_POLICY", RenewalPolicyAuto)
	v.SetDefault("STORAGE_DIR", "")
	v.SetDefault("STORAGE_SCOPE", "default")
	v.SetDefault("REMEMBER_EMAIL", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)

	// Stub backend defaults
	v.SetDefault("STUB_PORT", "8085")
	v.SetDefault("STUB_GIN_MODE", "release")
	v.SetDefault("STUB_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("STUB_JWT_ISSUER", "examgate-stub")
	v.SetDefault("STUB_TOKEN_TTL_MINUTES", 15)
	v.SetDefault("STUB_OTP_TTL_MINUTES", 5)
	v.SetDefault("STUB_LOGIN_RATE_PER_MIN", 10)
	v.SetDefault("STUB_LOGIN_BURST", 5)

	// Automatically read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	_ = v.ReadInConfig() //nolint:errcheck // Ignore error if .env file doesn't exist

	// Parse allowed CORS origins (comma-separated)
	allowedOrigins := []string{}
	originsStr := v.GetString("STUB_ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	cfg := &Config{
		AppEnv: v.GetString("APP_ENV"),
		API: APIConfig{
			BaseURL:        v.GetString("API_BASE_URL"),
			LoginPath:      v.GetString("API_LOGIN_PATH"),
			RenewPath:      v.GetString("API_RENEW_PATH"),
			LogoutPath:     v.GetString("API_LOGOUT_PATH"),
			ResendOTPPath:  v.GetString("API_RESEND_OTP_PATH"),
			TimeoutSeconds: v.GetInt("API_TIMEOUT_SECONDS"),
		},
		Session: SessionConfig{
			RenewThresholdSeconds: v.GetInt("RENEW_THRESHOLD_SECONDS"),
			CheckIntervalSeconds:  v.GetInt("CHECK_INTERVAL_SECONDS"),
			IdleAfterSeconds:      v.GetInt("IDLE_AFTER_SECONDS"),
			RenewalPolicy:         v.GetString("RENEWAL_POLICY"),
		},
		Storage: StorageConfig{
			Dir:   v.GetString("STORAGE_DIR"),
			Scope: v.GetString("STORAGE_SCOPE"),
		},
		Credentials: CredentialsConfig{
			Email:         v.GetString("EXAMGATE_EMAIL"),
			Password:      v.GetString("EXAMGATE_PASSWORD"),
			RememberEmail: v.GetBool("REMEMBER_EMAIL"),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Dir:        v.GetString("LOG_DIR"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Stub: StubConfig{
			Port:            v.GetString("STUB_PORT"),
			GinMode:         v.GetString("STUB_GIN_MODE"),
			AllowedOrigins:  allowedOrigins,
			JWTSecret:       v.GetString("STUB_JWT_SECRET"),
			JWTIssuer:       v.GetString("STUB_JWT_ISSUER"),
			TokenTTLMinutes: v.GetInt("STUB_TOKEN_TTL_MINUTES"),
			OTPTTLMinutes:   v.GetInt("STUB_OTP_TTL_MINUTES"),
			LoginRatePerMin: v.GetFloat64("STUB_LOGIN_RATE_PER_MIN"),
			LoginBurst:      v.GetInt("STUB_LOGIN_BURST"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.API.LoginPath == "" || c.API.RenewPath == "" || c.API.LogoutPath == "" {
		return fmt.Errorf("API_LOGIN_PATH, API_RENEW_PATH and API_LOGOUT_PATH are required")
	}

	if c.Session.RenewThresholdSeconds <= 0 {
		return fmt.Errorf("RENEW_THRESHOLD_SECONDS must be positive")
	}
	if c.Session.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("CHECK_INTERVAL_SECONDS must be positive")
	}
	if c.Session.RenewalPolicy != RenewalPolicyAuto && c.Session.RenewalPolicy != RenewalPolicyPrompt {
		return fmt.Errorf("RENEWAL_POLICY must be %q or %q", RenewalPolicyAuto, RenewalPolicyPrompt)
	}

	if c.Storage.Scope == "" {
		return fmt.Errorf("STORAGE_SCOPE is required")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

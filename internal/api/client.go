package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/examgate/examgate-client/config"
	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/pkg/circuitbreaker"
	"github.com/examgate/examgate-client/pkg/errors"
	"github.com/examgate/examgate-client/pkg/events"
	"github.com/examgate/examgate-client/pkg/httpclient"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"github.com/examgate/examgate-client/pkg/retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// LoginResult is the outcome of a login call. Exactly one of the two
// shapes is populated: a granted session (Token and User), or
// RequiresSecondFactor with both empty.
type LoginResult struct {
	Token                string
	User                 *models.User
	RequiresSecondFactor bool
}

// Client talks to the exam-platform auth endpoints. Any response that
// rejects the current token broadcasts the unauthorized signal on the
// bus; the client itself never touches session state.
type Client struct {
	cfg          config.APIConfig
	http         httpclient.Client
	unauthorized *events.Bus
	renewBreaker *gobreaker.CircuitBreaker
}

// NewClient creates an API client for the configured backend.
func NewClient(cfg config.APIConfig, hc httpclient.Client, unauthorized *events.Bus) *Client {
	return &Client{
		cfg:          cfg,
		http:         hc,
		unauthorized: unauthorized,
		renewBreaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("renew-token")),
	}
}

// Login authenticates with email and password, optionally carrying a
// second-factor code. Three outcomes: a granted session, a
// RequiresSecondFactor result, or an error from the taxonomy.
func (c *Client) Login(ctx context.Context, email, password, authenticationCode string) (*LoginResult, error) {
	start := time.Now()

	reqBody := models.LoginRequest{
		Email:              email,
		Password:           password,
		AuthenticationCode: authenticationCode,
	}

	var resp models.LoginResponse
	status, err := c.postJSON(ctx, c.cfg.LoginPath, "", reqBody, &resp)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("network_error").Inc()
		return nil, err
	}

	switch {
	case resp.ResponseCode == models.CodeAuthenticationCodeRequired:
		metrics.LoginAttempts.WithLabelValues("second_factor_required").Inc()
		return &LoginResult{RequiresSecondFactor: true}, nil

	case resp.ResponseCode == models.CodeInvalidAuthenticationCode:
		metrics.LoginAttempts.WithLabelValues("second_factor_invalid").Inc()
		return nil, ErrSecondFactorInvalid

	case resp.ResponseCode == models.CodeSubscriptionExpired:
		metrics.LoginAttempts.WithLabelValues("subscription_expired").Inc()
		return nil, ErrSubscriptionExpired

	case resp.Status == models.StatusSuccess && resp.Payload != nil && resp.Payload.Token != "" && resp.Payload.User != nil:
		metrics.LoginAttempts.WithLabelValues("success").Inc()
		// Only granted sessions land in the duration histogram; rejected
		// attempts would skew it toward the fast-fail path.
		metrics.LoginDuration.Observe(metrics.MeasureDuration(start))
		return &LoginResult{Token: resp.Payload.Token, User: resp.Payload.User}, nil

	case status >= http.StatusInternalServerError:
		metrics.LoginAttempts.WithLabelValues("server_error").Inc()
		return nil, serverError(resp.Message)

	default:
		// Generic rejection: deliberately indistinguishable whether the
		// email or the password was wrong.
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
}

// RenewToken exchanges a still-valid token for a fresh one. Transport
// failures are retried; a definitive rejection is not. Repeated backend
// failures open the circuit breaker so a dying backend is not hammered
// every threshold window.
func (c *Client) RenewToken(ctx context.Context, tok string) (string, error) {
	return retry.DoWithResult(ctx, retry.RenewalConfig(), "renew-token", func() (string, error) {
		newTok, err := circuitbreaker.Execute(c.renewBreaker, func() (string, error) {
			var resp models.RenewResponse
			status, err := c.postJSON(ctx, c.cfg.RenewPath, tok, nil, &resp)
			if err != nil {
				return "", err
			}
			if status == http.StatusUnauthorized {
				return "", errors.ErrUnauthorized
			}
			if resp.Status != models.StatusSuccess || resp.Payload == nil || resp.Payload.Token == "" {
				return "", serverError(resp.Message)
			}
			return resp.Payload.Token, nil
		})
		if err != nil {
			return "", circuitbreaker.FormatError("renew-token", err)
		}
		return newTok, nil
	})
}

// Logout asks the backend to invalidate the session. Callers treat this
// as best-effort: local cleanup proceeds whatever happens here.
func (c *Client) Logout(ctx context.Context, tok string) error {
	var resp models.StatusResponse
	if _, err := c.postJSON(ctx, c.cfg.LogoutPath, tok, nil, &resp); err != nil {
		return err
	}
	return nil
}

// ResendOTP asks the backend to re-send the second-factor code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	var resp models.StatusResponse
	status, err := c.postJSON(ctx, c.cfg.ResendOTPPath, "", models.ResendOTPRequest{Email: email}, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverError(resp.Message)
	}
	return nil
}

// postJSON sends an authenticated JSON POST and decodes the response
// body. A 401 broadcasts the unauthorized signal before returning. The
// HTTP status is returned alongside so callers can branch on it; wire
// bodies are decoded even for error statuses since the backend carries
// its response codes there.
func (c *Client) postJSON(ctx context.Context, path, bearer string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("API request failed", zap.String("path", path), zap.Error(err))
		return 0, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && bearer != "" {
		logger.Warn("Backend rejected the current token", zap.String("path", path))
		metrics.UnauthorizedSignals.Inc()
		c.unauthorized.Emit()
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func serverError(message string) error {
	if message != "" {
		return fmt.Errorf("%s: %w", message, ErrServer)
	}
	return ErrServer
}

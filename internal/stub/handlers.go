package stub

import (
	"net/http"
	"strings"

	"github.com/examgate/examgate-client/internal/models"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const contextKeyEmail = "account_email"

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.LoginResponse{
			Status:  models.StatusFailure,
			Message: "Invalid login request",
		})
		return
	}

	account, err := s.directory.Authenticate(req.Email, req.Password)
	if err != nil {
		logger.Warn("Stub login rejected", zap.String("email", req.Email), zap.Error(err))
		c.JSON(http.StatusUnauthorized, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeInvalidCredentials,
			Message:      "Invalid email or password",
		})
		return
	}

	if account.SubscriptionExpired {
		c.JSON(http.StatusForbidden, models.LoginResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeSubscriptionExpired,
			Message:      "Your subscription has expired",
		})
		return
	}

	if account.TwoFactorEnabled {
		if req.AuthenticationCode == "" {
			code, err := s.directory.IssueOTP(req.Email)
			if err != nil {
				c.JSON(http.StatusInternalServerError, models.LoginResponse{
					Status:  models.StatusFailure,
					Message: "Failed to generate authentication code",
				})
				return
			}
			// A real backend delivers this out of band; the stub logs it.
			logger.Info("Stub OTP issued",
				zap.String("email", req.Email),
				zap.String("code", code))

			c.JSON(http.StatusOK, models.LoginResponse{
				ResponseCode: models.CodeAuthenticationCodeRequired,
				Message:      "Authentication code required",
			})
			return
		}

		if err := s.directory.CheckOTP(req.Email, req.AuthenticationCode); err != nil {
			c.JSON(http.StatusUnauthorized, models.LoginResponse{
				Status:       models.StatusFailure,
				ResponseCode: models.CodeInvalidAuthenticationCode,
				Message:      "Invalid authentication code",
			})
			return
		}
	}

	sessionID := s.directory.CreateSession(account.User.Email)
	tok, err := s.issuer.Issue(account.User.ID, sessionID)
	if err != nil {
		logger.Error("Stub failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.LoginResponse{
			Status:  models.StatusFailure,
			Message: "Failed to issue session token",
		})
		return
	}

	user := account.User
	c.JSON(http.StatusOK, models.LoginResponse{
		Status:  models.StatusSuccess,
		Payload: &models.LoginPayload{Token: tok, User: &user},
	})
}

func (s *Server) handleRenewToken(c *gin.Context) {
	claims, ok := s.validBearer(c)
	if !ok {
		return
	}

	tok, err := s.issuer.Issue(claims.UserID, claims.SessionID)
	if err != nil {
		logger.Error("Stub failed to renew token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.RenewResponse{
			Status:  models.StatusFailure,
			Message: "Failed to renew session token",
		})
		return
	}
	s.directory.RefreshSession(claims.SessionID)

	c.JSON(http.StatusOK, models.RenewResponse{
		Status:  models.StatusSuccess,
		Payload: &models.RenewPayload{Token: tok},
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	// Best-effort: even an expired token identifies the session to drop.
	if claims := token.Decode(bearerToken(c)); claims != nil && claims.SessionID != "" {
		s.directory.DropSession(claims.SessionID)
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
}

func (s *Server) handleResendOTP(c *gin.Context) {
	var req models.ResendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Invalid request",
		})
		return
	}

	account, err := s.directory.Get(req.Email)
	if err != nil || !account.TwoFactorEnabled {
		// Do not reveal whether the email exists.
		c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
		return
	}

	code, err := s.directory.IssueOTP(req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Failed to generate authentication code",
		})
		return
	}
	logger.Info("Stub OTP re-issued",
		zap.String("email", req.Email),
		zap.String("code", code))

	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
}

func (s *Server) handleGenerate2FA(c *gin.Context) {
	email := c.GetString(contextKeyEmail)
	secret, err := s.directory.GenerateTwoFactorSecret(email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.TwoFactorGenerateResponse{
			Status:  models.StatusFailure,
			Message: "Failed to generate secret",
		})
		return
	}

	c.JSON(http.StatusOK, models.TwoFactorGenerateResponse{
		Status:  models.StatusSuccess,
		Payload: &models.TwoFactorGeneratePayload{Secret: secret},
	})
}

func (s *Server) handleEnable2FA(c *gin.Context) {
	s.toggleTwoFactor(c, true)
}

func (s *Server) handleDisable2FA(c *gin.Context) {
	s.toggleTwoFactor(c, false)
}

func (s *Server) toggleTwoFactor(c *gin.Context, enabled bool) {
	var req models.TwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Invalid request",
		})
		return
	}

	email := c.GetString(contextKeyEmail)
	if err := s.directory.SetTwoFactor(email, req.AuthenticationCode, enabled); err != nil {
		c.JSON(http.StatusUnauthorized, models.StatusResponse{
			Status:       models.StatusFailure,
			ResponseCode: models.CodeInvalidAuthenticationCode,
			Message:      "Invalid authentication code",
		})
		return
	}

	c.JSON(http.StatusOK, models.StatusResponse{Status: models.StatusSuccess})
}

// sessionAuthMiddleware validates the bearer token and resolves the
// owning account for protected endpoints.
func (s *Server) sessionAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := s.validBearer(c)
		if !ok {
			c.Abort()
			return
		}

		email, err := s.directory.SessionEmail(claims.SessionID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.StatusResponse{
				Status:  models.StatusFailure,
				Message: "Session not found",
			})
			c.Abort()
			return
		}

		c.Set(contextKeyEmail, email)
		c.Next()
	}
}

// validBearer validates the Authorization header and checks the session
// is still live. Writes the 401 itself and reports ok=false on failure.
func (s *Server) validBearer(c *gin.Context) (*token.Claims, bool) {
	tok := bearerToken(c)
	if tok == "" {
		c.JSON(http.StatusUnauthorized, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Missing bearer token",
		})
		return nil, false
	}

	claims, err := s.issuer.Validate(tok)
	if err != nil {
		c.JSON(http.StatusUnauthorized, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Invalid or expired token",
		})
		return nil, false
	}

	if _, err := s.directory.SessionEmail(claims.SessionID); err != nil {
		c.JSON(http.StatusUnauthorized, models.StatusResponse{
			Status:  models.StatusFailure,
			Message: "Session not found",
		})
		return nil, false
	}
	return claims, true
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

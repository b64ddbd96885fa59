package stub

import (
	"fmt"
	"strconv"
	"time"

	"github.com/examgate/examgate-client/config"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"github.com/examgate/examgate-client/pkg/token"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server is the development stand-in for the exam-platform backend: it
// implements the auth endpoints the session client consumes, with the
// same wire shapes and response codes, so the client library can be
// exercised end to end without production infrastructure.
type Server struct {
	Engine    *gin.Engine
	directory *Directory
	issuer    *token.Issuer
	limiter   *rateLimiter
}

// NewServer builds the stub router. The caller owns running it.
func NewServer(cfg config.StubConfig) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("STUB_JWT_SECRET is required")
	}

	tokenTTL := time.Duration(cfg.TokenTTLMinutes) * time.Minute
	otpTTL := time.Duration(cfg.OTPTTLMinutes) * time.Minute

	s := &Server{
		directory: NewDirectory(tokenTTL, otpTTL),
		issuer:    token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, tokenTTL),
		limiter:   newRateLimiter(perMinute(cfg.LoginRatePerMin), cfg.LoginBurst),
	}
	if err := s.directory.SeedFixtures(); err != nil {
		return nil, fmt.Errorf("failed to seed fixtures: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestMetricsMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	users := router.Group("/users")
	users.POST("/login", s.limiter.Middleware(), s.handleLogin)
	users.POST("/renew-token", s.handleRenewToken)
	users.POST("/logout", s.handleLogout)
	users.POST("/resend-otp", s.limiter.Middleware(), s.handleResendOTP)

	twoFactor := users.Group("/2fa")
	twoFactor.Use(s.sessionAuthMiddleware())
	twoFactor.POST("/generate", s.handleGenerate2FA)
	twoFactor.POST("/enable", s.handleEnable2FA)
	twoFactor.POST("/disable", s.handleDisable2FA)

	s.Engine = router
	return s, nil
}

// Close releases background resources.
func (s *Server) Close() {
	s.limiter.Close()
}

// Directory exposes the account directory for tests.
func (s *Server) Directory() *Directory {
	return s.directory
}

// Issuer exposes the token issuer for tests.
func (s *Server) Issuer() *token.Issuer {
	return s.issuer
}

func perMinute(perMin float64) rate.Limit {
	return rate.Limit(perMin / 60.0)
}

// requestMetricsMiddleware records request counts and latency the same
// way the production API does.
func requestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequestTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route, status).
			Observe(metrics.MeasureDuration(start))

		if c.Writer.Status() >= 500 {
			logger.Error("HTTP request failed",
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.String("status", status))
		}
	}
}

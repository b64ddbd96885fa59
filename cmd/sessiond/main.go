package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/examgate/examgate-client/config"
	"github.com/examgate/examgate-client/internal/api"
	"github.com/examgate/examgate-client/internal/auth"
	"github.com/examgate/examgate-client/internal/session"
	"github.com/examgate/examgate-client/internal/storage"
	"github.com/examgate/examgate-client/pkg/events"
	"github.com/examgate/examgate-client/pkg/httpclient"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"go.uber.org/zap"
)

const secondFactorAttempts = 3

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.AppEnv,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting session agent",
		zap.String("environment", cfg.AppEnv),
		zap.String("api_base_url", cfg.API.BaseURL))

	metrics.RecordInfrastructureMetrics()

	// Storage backend: file-backed when a directory is configured,
	// process memory otherwise.
	var backend storage.Store
	if cfg.Storage.Dir != "" {
		fileStore, err := storage.NewFileStore(cfg.Storage.Dir, cfg.Storage.Scope)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
		backend = fileStore
	} else {
		backend = storage.NewMemoryStore()
	}

	store := session.NewStore(backend)
	unauthorized := events.NewBus()

	httpClient := httpclient.NewStandardClientWithTimeout(
		time.Duration(cfg.API.TimeoutSeconds) * time.Second)
	apiClient := api.NewClient(cfg.API, httpClient, unauthorized)

	scheduler := session.NewScheduler(store, apiClient.RenewToken, unauthorized, session.SchedulerConfig{
		RenewThreshold: time.Duration(cfg.Session.RenewThresholdSeconds) * time.Second,
		CheckInterval:  time.Duration(cfg.Session.CheckIntervalSeconds) * time.Second,
		IdleAfter:      time.Duration(cfg.Session.IdleAfterSeconds) * time.Second,
		Policy:         cfg.Session.RenewalPolicy,
	})

	// A headless agent has no one to show a prompt to: always keep the
	// session alive when the prompt policy asks.
	scheduler.SetPromptHandler(func(remaining time.Duration) {
		logger.Info("Renewal prompt raised; agent renews automatically",
			zap.Duration("remaining", remaining))
		scheduler.PromptRenew()
	})

	manager := auth.NewManager(apiClient, store, scheduler, func() {
		logger.Info("Session reset: all local state discarded")
	})
	manager.Subscribe(unauthorized)
	defer manager.Close()

	if manager.Resume() {
		user := manager.User()
		logger.Info("Resumed persisted session",
			zap.String("user_id", user.ID),
			zap.String("role", string(user.Role)))
	} else {
		if err := login(manager, store, cfg); err != nil {
			logger.Fatal("Login failed", zap.Error(err))
		}
	}

	// Wait for interrupt, then log out so the backend session is closed too
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down session agent...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.Logout(ctx)

	logger.Info("Session agent exited")
}

func login(manager *auth.Manager, store *session.Store, cfg *config.Config) error {
	email := cfg.Credentials.Email
	if email == "" {
		email = store.RememberedEmail()
	}
	if email == "" || cfg.Credentials.Password == "" {
		return fmt.Errorf("EXAMGATE_EMAIL and EXAMGATE_PASSWORD must be set when no session is persisted")
	}

	ctx := context.Background()
	status, err := manager.Login(ctx, email, cfg.Credentials.Password)
	if err != nil {
		return err
	}

	if status == auth.LoginSecondFactorRequired {
		if err := verifySecondFactor(ctx, manager); err != nil {
			return err
		}
	}

	if cfg.Credentials.RememberEmail {
		store.RememberEmail(email)
	}

	user := manager.User()
	logger.Info("Signed in",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return nil
}

func verifySecondFactor(ctx context.Context, manager *auth.Manager) error {
	reader := bufio.NewReader(os.Stdin)
	for attempt := 1; attempt <= secondFactorAttempts; attempt++ {
		fmt.Fprint(os.Stderr, "Authentication code: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read authentication code: %w", err)
		}

		status, err := manager.Verify2FA(ctx, strings.TrimSpace(line))
		if err != nil {
			if errors.Is(err, api.ErrSecondFactorInvalid) && attempt < secondFactorAttempts {
				fmt.Fprintln(os.Stderr, "Invalid code, try again.")
				continue
			}
			return err
		}
		if status == auth.LoginComplete {
			return nil
		}
	}
	return api.ErrSecondFactorInvalid
}

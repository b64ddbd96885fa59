package session

import (
	"context"
	"sync"
	"time"

	"github.com/examgate/examgate-client/pkg/events"
	"github.com/examgate/examgate-client/pkg/logger"
	"github.com/examgate/examgate-client/pkg/metrics"
	"github.com/examgate/examgate-client/pkg/token"
	"go.uber.org/zap"
)

// State names the renewal scheduler's position in its lifecycle.
type State string

const (
	// StateIdle: no session, no timers running.
	StateIdle State = "idle"
	// StateScheduled: a one-shot renewal timer is armed.
	StateScheduled State = "scheduled"
	// StateRenewing: the renewal call is in flight.
	StateRenewing State = "renewing"
	// StateExpired: the session ended; timers cleared, unauthorized emitted.
	StateExpired State = "expired"
)

// Renewal policies. Under PolicyAuto the token is always renewed
// silently. Under PolicyPrompt an idle user is asked first, with a
// countdown that forces the session closed at token expiry.
const (
	PolicyAuto   = "auto"
	PolicyPrompt = "prompt"
)

// RenewFunc exchanges a still-valid token for a fresh one.
type RenewFunc func(ctx context.Context, tok string) (string, error)

// SchedulerConfig tunes the renewal scheduler. Zero values fall back to
// defaults matching the production frontend.
type SchedulerConfig struct {
	// RenewThreshold is how long before expiry the renewal fires.
	RenewThreshold time.Duration
	// CheckInterval is the cadence of the independent expiry poll.
	CheckInterval time.Duration
	// IdleAfter is how long without activity counts as idle.
	IdleAfter time.Duration
	// CallTimeout bounds a single renewal HTTP call.
	CallTimeout time.Duration
	// Policy is PolicyAuto or PolicyPrompt.
	Policy string
}

func (c *SchedulerConfig) applyDefaults() {
	if c.RenewThreshold <= 0 {
		c.RenewThreshold = 2 * time.Minute
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 5 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.Policy == "" {
		c.Policy = PolicyAuto
	}
}

// Scheduler keeps the session alive across the token's lifetime without
// manual user action. It is an explicit state machine: one-shot renewal
// timer, independent periodic expiry check (guards against clock jumps,
// storage tampering and missed timers while suspended), and an
// idle-aware prompt policy.
//
// Every timer-driven transition carries the generation it was armed
// under; Stop, Start and expiry bump the generation, so a timer or an
// in-flight renewal response from a previous session is discarded
// instead of acting on stale state.
type Scheduler struct {
	mu           sync.Mutex
	cfg          SchedulerConfig
	store        *Store
	renew        RenewFunc
	unauthorized *events.Bus
	onPrompt     func(remaining time.Duration)

	state        State
	gen          uint64
	renewTimer   *time.Timer
	promptTimer  *time.Timer
	checkDone    chan struct{}
	lastActivity time.Time
}

// NewScheduler creates a scheduler over the session store. The renew
// function is called with the token current at fire time, never the one
// captured at schedule time. The bus receives the unauthorized signal
// whenever the session expires.
func NewScheduler(store *Store, renew RenewFunc, unauthorized *events.Bus, cfg SchedulerConfig) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:          cfg,
		store:        store,
		renew:        renew,
		unauthorized: unauthorized,
		state:        StateIdle,
	}
}

// SetPromptHandler installs the callback invoked when the prompt policy
// decides to ask the user before renewing. Must be set before Start.
func (s *Scheduler) SetPromptHandler(fn func(remaining time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPrompt = fn
}

// Start begins managing the session currently held by the store. A
// token already at or past expiry transitions straight to Expired.
// Calling Start again supersedes any previous run.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.gen++
	g := s.gen
	s.stopTimersLocked()
	s.lastActivity = time.Now()

	scheduled := s.scheduleLocked(g)
	if scheduled {
		s.checkDone = make(chan struct{})
		go s.periodicCheck(g, s.checkDone)
	}
	s.mu.Unlock()

	if !scheduled {
		s.expire(g)
	}
}

// Stop cancels all timers and returns to Idle without touching the
// session. Used on logout and teardown, where the caller owns cleanup.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.stopTimersLocked()
	s.setStateLocked(StateIdle)
}

// MarkActivity records user presence for the idle policy.
func (s *Scheduler) MarkActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// scheduleLocked arms the renewal timer from the token the store holds
// right now. Returns false when there is no token or it is already
// expired.
func (s *Scheduler) scheduleLocked(g uint64) bool {
	tok := s.store.Token()
	if tok == "" {
		return false
	}
	remaining := token.TimeUntil(tok)
	if remaining <= 0 {
		return false
	}

	delay := remaining - s.cfg.RenewThreshold
	if delay < 0 {
		delay = 0
	}

	s.setStateLocked(StateScheduled)
	s.renewTimer = time.AfterFunc(delay, func() { s.onRenewTimer(g) })

	logger.Debug("Renewal scheduled",
		zap.Duration("fires_in", delay),
		zap.Duration("token_remaining", remaining))
	return true
}

func (s *Scheduler) onRenewTimer(g uint64) {
	s.mu.Lock()
	if g != s.gen || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}

	// Re-read the current token: a login or logout may have replaced it
	// between scheduling and firing.
	tok := s.store.Token()
	if tok == "" || token.IsExpired(tok, 0) {
		s.mu.Unlock()
		s.expire(g)
		return
	}

	if s.cfg.Policy == PolicyPrompt && time.Since(s.lastActivity) >= s.cfg.IdleAfter {
		remaining := token.TimeUntil(tok)
		s.promptTimer = time.AfterFunc(remaining, func() { s.onPromptCountdown(g) })
		onPrompt := s.onPrompt
		s.mu.Unlock()

		logger.Info("User idle at renewal time, prompting before renewal",
			zap.Duration("remaining", remaining))
		if onPrompt != nil {
			onPrompt(remaining)
		}
		return
	}
	s.mu.Unlock()

	s.doRenew(g, tok)
}

// onPromptCountdown fires when the user never answered the renewal
// prompt: the token is now at expiry, so the session is forced closed.
func (s *Scheduler) onPromptCountdown(g uint64) {
	logger.Info("Renewal prompt unanswered before expiry, closing session")
	s.expire(g)
}

// PromptRenew is the user's "keep me signed in" answer. Cancels the
// countdown and renews immediately.
func (s *Scheduler) PromptRenew() {
	s.mu.Lock()
	if s.promptTimer == nil {
		s.mu.Unlock()
		return
	}
	s.promptTimer.Stop()
	s.promptTimer = nil
	s.lastActivity = time.Now()
	g := s.gen
	tok := s.store.Token()
	s.mu.Unlock()

	if tok == "" {
		s.expire(g)
		return
	}
	s.doRenew(g, tok)
}

// PromptLogout is the user's "sign me out" answer. Cancels the countdown
// and ends the session.
func (s *Scheduler) PromptLogout() {
	s.mu.Lock()
	if s.promptTimer == nil {
		s.mu.Unlock()
		return
	}
	s.promptTimer.Stop()
	s.promptTimer = nil
	g := s.gen
	s.mu.Unlock()

	s.expire(g)
}

// PromptDismiss treats a dismissed prompt as the user becoming active
// again: the countdown is cancelled without renewing or logging out and
// the renewal timer is re-armed at half the remaining token lifetime,
// so a now-active user gets a silent renewal on the next firing.
func (s *Scheduler) PromptDismiss() {
	s.mu.Lock()
	if s.promptTimer == nil {
		s.mu.Unlock()
		return
	}
	s.promptTimer.Stop()
	s.promptTimer = nil
	s.lastActivity = time.Now()
	g := s.gen

	remaining := token.TimeUntil(s.store.Token())
	if remaining <= 0 {
		s.mu.Unlock()
		s.expire(g)
		return
	}
	s.setStateLocked(StateScheduled)
	s.renewTimer = time.AfterFunc(remaining/2, func() { s.onRenewTimer(g) })
	s.mu.Unlock()
}

func (s *Scheduler) doRenew(g uint64, tok string) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateRenewing)
	s.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()
	newTok, err := s.renew(ctx, tok)

	s.mu.Lock()
	if g != s.gen {
		// The session was replaced or torn down while the call was in
		// flight; discard the response rather than resurrecting it.
		s.mu.Unlock()
		logger.Info("Discarding renewal response for superseded session")
		return
	}

	if err != nil {
		s.mu.Unlock()
		metrics.TokenRenewals.WithLabelValues("error").Inc()
		logger.Warn("Token renewal failed, closing session", zap.Error(err))
		s.expire(g)
		return
	}

	if err := s.store.SetToken(newTok); err != nil {
		s.mu.Unlock()
		metrics.TokenRenewals.WithLabelValues("error").Inc()
		logger.Error("Failed to persist renewed token, closing session", zap.Error(err))
		s.expire(g)
		return
	}

	metrics.TokenRenewals.WithLabelValues("success").Inc()
	metrics.RenewalDuration.Observe(metrics.MeasureDuration(start))
	logger.Info("Token renewed", zap.Duration("duration", time.Since(start)))

	rearmed := s.scheduleLocked(g)
	s.mu.Unlock()

	if !rearmed {
		s.expire(g)
	}
}

// periodicCheck polls token expiry independently of the renewal timer.
func (s *Scheduler) periodicCheck(g uint64, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if g != s.gen {
				s.mu.Unlock()
				return
			}
			tok := s.store.Token()
			expired := tok == "" || token.IsExpired(tok, 0)
			s.mu.Unlock()

			if expired {
				logger.Warn("Periodic check found token missing or expired")
				s.expire(g)
				return
			}
		}
	}
}

// expire ends the session: timers cleared, store cleared, unauthorized
// emitted. The generation bump makes it fire at most once per session
// however many racing paths reach it.
func (s *Scheduler) expire(g uint64) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopTimersLocked()
	s.setStateLocked(StateExpired)
	// Clear under the lock: a Start from a fresh login serializes behind
	// the whole teardown instead of racing between the generation bump
	// and the wipe. Lock order is scheduler then store, never reversed.
	s.store.Clear()
	s.mu.Unlock()

	metrics.UnauthorizedSignals.Inc()
	s.unauthorized.Emit()
}

func (s *Scheduler) stopTimersLocked() {
	if s.renewTimer != nil {
		s.renewTimer.Stop()
		s.renewTimer = nil
	}
	if s.promptTimer != nil {
		s.promptTimer.Stop()
		s.promptTimer = nil
	}
	if s.checkDone != nil {
		close(s.checkDone)
		s.checkDone = nil
	}
}

func (s *Scheduler) setStateLocked(to State) {
	if s.state == to {
		return
	}
	metrics.SchedulerTransitions.WithLabelValues(string(s.state), string(to)).Inc()
	s.state = to
}

package timetable

import (
	"sync"
	"time"

	"github.com/haplink/haplink/internal/logging"
	"github.com/haplink/haplink/internal/metrics"
)

// Runner drives Tick once per minute while the app is foregrounded.
//
// ForceLogout invokes onLogout to completion before the runner stops itself;
// ShowWarning is delivered through onWarn exactly once per qualifying tick.
type Runner struct {
	period   time.Duration
	now      func() time.Time
	onWarn   func(remaining time.Duration)
	onLogout func()

	mu    sync.Mutex
	state State
	stop  chan struct{}
}

// NewRunner creates a stopped runner. now may be nil for the wall clock.
func NewRunner(period time.Duration, now func() time.Time, onWarn func(time.Duration), onLogout func()) *Runner {
	if period <= 0 {
		period = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Runner{period: period, now: now, onWarn: onWarn, onLogout: onLogout}
}

// SetState installs a freshly evaluated auto-logout state.
func (r *Runner) SetState(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

// State returns the current auto-logout state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins ticking. Starting an already-running runner restarts it.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.stop != nil {
		close(r.stop)
	}
	stop := make(chan struct{})
	r.stop = stop
	state := r.state
	r.mu.Unlock()

	if !state.Enabled {
		return
	}
	logging.Info("auto-logout scheduler started",
		logging.String("logout_at", state.LogoutAt.Format(time.RFC3339)))

	go func() {
		ticker := time.NewTicker(r.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if r.runTick() {
					return
				}
			}
		}
	}()
}

// Stop cancels the ticker. Safe to call when already stopped.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// runTick evaluates one tick; returns true when the loop must exit.
func (r *Runner) runTick() bool {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	now := r.now()
	switch Tick(state, now) {
	case ForceLogout:
		logging.Info("timetable deadline reached, forcing logout")
		metrics.RecordForcedLogout()
		if r.onLogout != nil {
			r.onLogout()
		}
		r.Stop()
		return true
	case ShowWarning:
		remaining := state.LogoutAt.Sub(now)
		logging.Info("auto-logout warning", logging.Duration("remaining", remaining))
		if r.onWarn != nil {
			r.onWarn(remaining)
		}
	case StopScheduler:
		r.Stop()
		return true
	}
	return false
}

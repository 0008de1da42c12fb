package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haplink/haplink/internal/hap"
	"github.com/haplink/haplink/internal/logging"
	"github.com/haplink/haplink/internal/metrics"
	"github.com/haplink/haplink/internal/timetable"
)

// ErrInvalidCredentials is terminal for a login attempt and must be surfaced
// to the user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLoginInProgress is returned when a login overlaps an in-flight one.
var ErrLoginInProgress = errors.New("login already in progress")

// staleAfter is the maximum silence before the server session must be
// re-established with a full re-login. An elapsed time outside [0, 1080s]
// counts as stale; negative means the clock was rolled back.
const defaultStaleAfter = 1080 * time.Second

// StateStore is the slice of durable preferences the manager touches.
// Implemented by *prefs.Store.
type StateStore interface {
	SetServerURL(string) error
	SetSiteName(string) error
	DeviceMode() string
	ClearPaste() error
}

// Options configures a Manager.
type Options struct {
	Secrets         SecretStore
	Store           StateStore
	Clock           Clock
	StaleAfter      time.Duration
	KeepAlivePeriod time.Duration
}

// Manager authenticates, holds the active session, and keeps it alive.
type Manager struct {
	client  *hap.Client
	secrets SecretStore
	store   StateStore
	clock   Clock

	staleAfter      time.Duration
	keepAlivePeriod time.Duration

	mu             sync.Mutex
	sess           *Session
	authenticating bool
	kaStop         chan struct{}
	logoutHooks    []func()
}

// NewManager creates a manager around an authenticated client.
func NewManager(client *hap.Client, opts Options) *Manager {
	if opts.Secrets == nil {
		opts.Secrets = NewEnclaveStore()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.KeepAlivePeriod == 0 {
		opts.KeepAlivePeriod = time.Minute
	}
	return &Manager{
		client:          client,
		secrets:         opts.Secrets,
		store:           opts.Store,
		clock:           opts.Clock,
		staleAfter:      opts.StaleAfter,
		keepAlivePeriod: opts.KeepAlivePeriod,
	}
}

// OnLogout registers a hook run synchronously at the end of Logout. Used by
// the app to stop the auto-logout runner and drop UI state.
func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutHooks = append(m.logoutHooks, fn)
}

// Session returns a copy of the active session, or nil when logged out.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	cp := *m.sess
	return &cp
}

// LoggedIn reports whether a session is active.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess != nil
}

// Login authenticates and populates the session. When the device mode is
// unset or shared, the user's timetable is fetched and evaluated before
// returning, so callers receive the auto-logout state with the session.
//
// Pipeline: Authenticating -> FetchingTimetable -> Ready.
func (m *Manager) Login(ctx context.Context, serverURL, username, password string) (*Session, timetable.State, error) {
	m.mu.Lock()
	if m.authenticating {
		m.mu.Unlock()
		return nil, timetable.State{}, ErrLoginInProgress
	}
	m.authenticating = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.authenticating = false
		m.mu.Unlock()
	}()

	logging.Info("authenticating", logging.String("username", username))
	resp, err := m.client.Authenticate(ctx, username, password)
	if err != nil {
		return nil, timetable.State{}, fmt.Errorf("logon: %w", err)
	}
	if !resp.IsValid {
		return nil, timetable.State{}, ErrInvalidCredentials
	}

	if err := m.secrets.Put(resp.Username, []byte(password)); err != nil {
		return nil, timetable.State{}, fmt.Errorf("store secret: %w", err)
	}

	deviceMode := ModeUnset
	if m.store != nil {
		deviceMode = m.store.DeviceMode()
	}

	sess := &Session{
		ServerURL:   serverURL,
		Username:    resp.Username,
		SiteName:    resp.SiteName,
		FirstName:   resp.FirstName,
		Token1:      resp.Token1,
		Token2:      resp.Token2,
		Token2Name:  resp.Token2Name,
		Roles:       parseRoles(resp.Roles),
		DeviceMode:  deviceMode,
		LastContact: m.clock.Now(),
	}

	m.client.SetTokens(sess.Token1, sess.Token2Name, sess.Token2)

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SetServerURL(serverURL); err != nil {
			logging.Warn("persist server url", logging.Err(err))
		}
		if err := m.store.SetSiteName(resp.SiteName); err != nil {
			logging.Warn("persist site name", logging.Err(err))
		}
	}

	// Timetable lookup only matters where devices rotate between users.
	autoLogout := timetable.State{}
	if deviceMode == ModeUnset || deviceMode == ModeShared {
		autoLogout = m.fetchAutoLogoutState(ctx, resp.Username)
	}

	logging.Info("logged in",
		logging.String("site", resp.SiteName),
		logging.String("username", resp.Username))
	return m.Session(), autoLogout, nil
}

// fetchAutoLogoutState loads and evaluates the timetable. Failure means "no
// auto-logout", never a user-visible error.
func (m *Manager) fetchAutoLogoutState(ctx context.Context, username string) timetable.State {
	wire, err := m.client.FetchTimetable(ctx, username)
	if err != nil {
		logging.Warn("timetable unavailable, auto-logout disabled", logging.Err(err))
		return timetable.State{}
	}

	entries := make([]timetable.Entry, 0, len(wire))
	for _, w := range wire {
		e, err := timetable.NewEntry(w.Day, w.Period, w.Start, w.End)
		if err != nil {
			logging.Warn("skipping malformed timetable entry",
				logging.String("period", w.Period), logging.Err(err))
			continue
		}
		entries = append(entries, e)
	}
	return timetable.Evaluate(entries, m.clock.Now())
}

// isStale applies the staleness window to an elapsed duration. Exactly
// staleAfter is still fresh; negative elapsed time counts as stale.
func (m *Manager) isStale(elapsed time.Duration) bool {
	return elapsed < 0 || elapsed > m.staleAfter
}

// RenewIfStale re-logs-in with the stored secret when the session has gone
// quiet for too long. The keepalive timer is stopped for the duration of the
// attempt. A network failure keeps the old tokens and restarts the timer so
// the next tick retries; a credential rejection is terminal and tears the
// session down, since retrying a known-bad password every tick helps nobody.
func (m *Manager) RenewIfStale(ctx context.Context) error {
	m.mu.Lock()
	sess := m.sess
	var lastContact time.Time
	if sess != nil {
		lastContact = sess.LastContact
	}
	m.mu.Unlock()
	if sess == nil {
		return nil
	}

	elapsed := m.clock.Now().Sub(lastContact)
	if !m.isStale(elapsed) {
		m.StartKeepAlive(ctx)
		return nil
	}

	logging.Info("session stale, re-authenticating",
		logging.Duration("elapsed", elapsed))
	metrics.RecordRenewal()

	m.StopKeepAlive()

	secret, err := m.secrets.Get(sess.Username)
	if err != nil {
		m.StartKeepAlive(ctx)
		return fmt.Errorf("retrieve secret: %w", err)
	}

	_, _, err = m.Login(ctx, sess.ServerURL, sess.Username, string(secret))
	switch {
	case err == nil:
		m.StartKeepAlive(ctx)
		return nil
	case errors.Is(err, ErrInvalidCredentials):
		logging.Warn("stored credentials rejected, logging out",
			logging.String("username", sess.Username))
		m.Logout()
		return err
	default:
		// Transient failure: keep the old tokens and let the next tick retry.
		logging.Warn("renewal failed", logging.Err(err))
		m.StartKeepAlive(ctx)
		return err
	}
}

// KeepAlive performs one keepalive tick. Staleness is checked first and
// defers to RenewIfStale; otherwise the cheap test endpoint runs and a
// success advances LastContact. A transport failure leaves the stamp
// untouched so staleness can eventually trigger a full re-login.
func (m *Manager) KeepAlive(ctx context.Context) {
	m.mu.Lock()
	sess := m.sess
	var lastContact time.Time
	if sess != nil {
		lastContact = sess.LastContact
	}
	m.mu.Unlock()
	if sess == nil {
		return
	}

	if m.isStale(m.clock.Now().Sub(lastContact)) {
		m.StopKeepAlive()
		if err := m.RenewIfStale(ctx); err != nil {
			logging.Warn("session renewal failed", logging.Err(err))
		}
		return
	}

	if err := m.client.KeepAliveCheck(ctx); err != nil {
		metrics.RecordKeepalive("error")
		logging.Warn("keepalive check failed", logging.Err(err))
		return
	}
	metrics.RecordKeepalive("ok")

	m.mu.Lock()
	if m.sess != nil {
		m.sess.LastContact = m.clock.Now()
	}
	m.mu.Unlock()
}

// StartKeepAlive begins the periodic keepalive loop. Starting an
// already-running loop restarts it.
func (m *Manager) StartKeepAlive(ctx context.Context) {
	m.mu.Lock()
	if m.kaStop != nil {
		close(m.kaStop)
	}
	stop := make(chan struct{})
	m.kaStop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.keepAlivePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.KeepAlive(ctx)
			}
		}
	}()
}

// StopKeepAlive cancels the keepalive loop. Safe when already stopped.
func (m *Manager) StopKeepAlive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kaStop != nil {
		close(m.kaStop)
		m.kaStop = nil
	}
}

// Logout tears the session down synchronously: the stored secret is erased,
// tokens are cleared, timers stop, and the pending paste list is dropped.
// All state is cleared before Logout returns.
func (m *Manager) Logout() {
	m.mu.Lock()
	sess := m.sess
	m.sess = nil
	if m.kaStop != nil {
		close(m.kaStop)
		m.kaStop = nil
	}
	hooks := make([]func(), len(m.logoutHooks))
	copy(hooks, m.logoutHooks)
	m.mu.Unlock()

	if sess != nil {
		m.secrets.Delete(sess.Username)
		logging.Info("logged out", logging.String("username", sess.Username))
	}

	m.client.ClearTokens()

	if m.store != nil {
		if err := m.store.ClearPaste(); err != nil {
			logging.Warn("clear paste state", logging.Err(err))
		}
	}

	for _, fn := range hooks {
		fn()
	}
}

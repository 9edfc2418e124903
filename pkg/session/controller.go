package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmiller42/badmagic-native/pkg/authapi"
	"github.com/mmiller42/badmagic-native/pkg/events"
	"github.com/mmiller42/badmagic-native/pkg/token"
	"github.com/mmiller42/badmagic-native/pkg/vault"
)

// DefaultClockDrift is the safety margin applied both when deciding to
// proactively refresh and when judging whether the refresh token is
// still usable. Both checks share the one margin.
const DefaultClockDrift = 30 * time.Second

// DefaultVaultKey is the vault key the current token pair persists under.
const DefaultVaultKey = "session"

// ErrUnauthenticated reports that no session exists and authentication
// has been declared impossible for now.
var ErrUnauthenticated = errors.New("session: unauthenticated")

// Refresher exchanges a refresh token for a new pair. Satisfied by
// *authapi.Client.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (*token.Session, error)
}

// Controller owns the live token pair. It schedules proactive refresh,
// suspends token consumers until a session exists, and notifies
// subscribers of session changes on two channels: identity changes
// (user appeared, vanished, or switched) and token changes (every
// accepted update, including routine refreshes).
type Controller struct {
	refresher Refresher
	drift     time.Duration
	now       func() time.Time

	secrets  *vault.Vault
	vaultKey string

	mutex   sync.Mutex
	current *token.Session
	timer   *time.Timer
	waiters []chan *token.Session
	reauth  func(ctx context.Context) error

	persistMutex sync.Mutex

	sessionEvents *events.Emitter[*token.Session]
	tokenEvents   *events.Emitter[*token.Session]
}

// Option configures a Controller.
type Option func(*Controller)

// WithVault enables persistence of the token pair so Initialize can
// restore it across restarts.
func WithVault(v *vault.Vault, key string) Option {
	return func(c *Controller) {
		c.secrets = v
		c.vaultKey = key
	}
}

// WithClockDrift overrides the refresh safety margin.
func WithClockDrift(d time.Duration) Option {
	return func(c *Controller) { c.drift = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller with no session.
func NewController(refresher Refresher, opts ...Option) *Controller {
	c := &Controller{
		refresher:     refresher,
		drift:         DefaultClockDrift,
		now:           time.Now,
		vaultKey:      DefaultVaultKey,
		sessionEvents: events.NewEmitter[*token.Session](),
		tokenEvents:   events.NewEmitter[*token.Session](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetReauthHandler installs the fallback invoked when the session can
// no longer be refreshed: typically the credential store's Unlock.
// Wired after construction because the credential store needs the
// controller first.
func (c *Controller) SetReauthHandler(fn func(ctx context.Context) error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reauth = fn
}

// Current returns the live session, or nil.
func (c *Controller) Current() *token.Session {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.current
}

// SubscribeSession delivers identity changes: nil to non-nil, non-nil
// to nil, or a different user. Routine refreshes for the same user do
// not fire here.
func (c *Controller) SubscribeSession(listener func(*token.Session)) func() {
	return c.sessionEvents.Subscribe(listener)
}

// SubscribeTokens delivers every accepted update, for consumers that
// need the freshest token object even without an identity change.
func (c *Controller) SubscribeTokens(listener func(*token.Session)) func() {
	return c.tokenEvents.Subscribe(listener)
}

// UpdateSession installs a new token pair, or clears the session when
// given nil. Updates that are the same instance, or whose pair is not
// strictly newer than the current one (by the shared IssuedAt claim),
// are rejected as stale: highest-iat-wins, so out-of-order network
// completions cannot roll the session back.
func (c *Controller) UpdateSession(session *token.Session) {
	c.mutex.Lock()
	current := c.current
	if session == current ||
		(session != nil && current != nil &&
			session.Access.Payload.IssuedAt <= current.Access.Payload.IssuedAt) {
		c.mutex.Unlock()
		return
	}

	c.current = session
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if session != nil {
		delay := session.RefreshDelay(c.now(), c.drift)
		slog.Debug("session: refresh scheduled", "delay", delay, "user_id", session.UserID)
		c.timer = time.AfterFunc(delay, c.refresh)
	}

	waiters := c.waiters
	c.waiters = nil

	identityChanged := (session == nil) != (current == nil) ||
		(session != nil && current != nil && session.UserID != current.UserID)
	c.mutex.Unlock()

	for _, waiter := range waiters {
		waiter <- session
	}

	c.persist(session)

	c.tokenEvents.Emit(session)
	if identityChanged {
		c.sessionEvents.Emit(session)
	}
}

// AccessToken returns a valid access token, suspending the caller until
// a session exists or authentication is declared impossible. This is
// the choke point every authenticated request passes through.
//
// With a current session outside the drift window the call resolves
// immediately. Otherwise the caller waits for the next accepted update:
// a session resolves the call, nil fails it with ErrUnauthenticated.
// Cancelling ctx rejects this caller only.
func (c *Controller) AccessToken(ctx context.Context) (token.Value, error) {
	c.mutex.Lock()
	if s := c.current; s != nil && s.RefreshDelay(c.now(), c.drift) > 0 {
		c.mutex.Unlock()
		return s.Access, nil
	}
	if err := ctx.Err(); err != nil {
		c.mutex.Unlock()
		return token.Value{}, err
	}

	waiter := make(chan *token.Session, 1)
	c.waiters = append(c.waiters, waiter)
	c.mutex.Unlock()

	select {
	case s := <-waiter:
		if s == nil {
			return token.Value{}, ErrUnauthenticated
		}
		return s.Access, nil
	case <-ctx.Done():
		c.removeWaiter(waiter)
		return token.Value{}, ctx.Err()
	}
}

func (c *Controller) removeWaiter(waiter chan *token.Session) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i, w := range c.waiters {
		if w == waiter {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// refresh runs when the proactive timer fires.
func (c *Controller) refresh() {
	c.mutex.Lock()
	session := c.current
	c.mutex.Unlock()
	if session == nil {
		// Stale timer; a concurrent update already cleared the session.
		return
	}

	ctx := context.Background()

	if !session.CanRefresh(c.now(), c.drift) {
		slog.Info("session: refresh token too old, re-authenticating from stored credentials")
		c.reauthenticate(ctx)
		return
	}

	refreshed, err := c.refresher.RefreshTokens(ctx, session.Refresh.Token)
	switch {
	case err == nil:
		c.UpdateSession(refreshed)
	case authapi.IsOffline(err):
		// No response at all: keep the session, a later unlock or
		// request-driven retry will pick it up.
		slog.Warn("session: refresh failed while offline, keeping session", "err", err)
	default:
		slog.Warn("session: refresh rejected", "err", err)
		c.UpdateSession(nil)
		c.reauthenticate(ctx)
	}
}

// reauthenticate invokes the configured fallback. Without one the
// session simply ends.
func (c *Controller) reauthenticate(ctx context.Context) {
	c.mutex.Lock()
	fn := c.reauth
	c.mutex.Unlock()

	if fn == nil {
		c.UpdateSession(nil)
		return
	}
	if err := fn(ctx); err != nil {
		slog.Warn("session: re-authentication failed", "err", err)
	}
}

// Initialize restores a persisted token pair at startup. A pair whose
// refresh token is still usable is adopted directly; otherwise the
// credential-store fallback signs in from stored credentials (or
// surfaces the unauthenticated state when there are none).
func (c *Controller) Initialize(ctx context.Context) {
	if c.secrets != nil {
		var restored token.Session
		found, err := c.secrets.GetJSON(ctx, c.vaultKey, &restored)
		if err != nil {
			slog.Warn("session: restoring persisted session failed", "err", err)
		}
		if err == nil && found && restored.CanRefresh(c.now(), c.drift) {
			slog.Info("session: adopted persisted session", "user_id", restored.UserID)
			c.UpdateSession(&restored)
			return
		}
	}
	c.reauthenticate(ctx)
}

// Shutdown cancels the refresh timer and fails pending waiters.
func (c *Controller) Shutdown() {
	c.mutex.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	waiters := c.waiters
	c.waiters = nil
	c.mutex.Unlock()

	for _, waiter := range waiters {
		waiter <- nil
	}
}

// persist mirrors the current pair into the vault so Initialize can
// restore it. Best-effort and serialized; a write for a pair that is no
// longer current is skipped rather than allowed to clobber a newer one.
func (c *Controller) persist(session *token.Session) {
	if c.secrets == nil {
		return
	}
	go func() {
		c.persistMutex.Lock()
		defer c.persistMutex.Unlock()
		if c.Current() != session {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), vault.PromptTimeout)
		defer cancel()

		var err error
		if session == nil {
			err = c.secrets.Reset(ctx, c.vaultKey)
		} else {
			err = c.secrets.PutJSON(ctx, c.vaultKey, session)
		}
		if err != nil {
			slog.Warn("session: persisting session failed", "err", err)
		}
	}()
}

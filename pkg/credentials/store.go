package credentials

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mmiller42/badmagic-native/pkg/events"
	"github.com/mmiller42/badmagic-native/pkg/token"
	"github.com/mmiller42/badmagic-native/pkg/vault"
)

// DefaultVaultKey is the vault key the credential pair persists under.
const DefaultVaultKey = "credentials"

// Credentials is the single stored login secret. The password is never
// logged.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Equal reports field equality.
func (c *Credentials) Equal(other *Credentials) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.Email == other.Email && c.Password == other.Password
}

// Authenticator performs the primary login. Satisfied by *authapi.Client.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*token.Session, error)
}

// SessionSink receives the session resulting from an unlock. Satisfied
// by *session.Controller.
type SessionSink interface {
	UpdateSession(*token.Session)
}

// Store owns the stored email/password pair: the in-memory copy, its
// vault persistence, and the unlock flow that turns stored credentials
// into a live session.
type Store struct {
	secrets  *vault.Vault
	vaultKey string
	auth     Authenticator
	sessions SessionSink

	mutex   sync.Mutex
	current *Credentials

	changes *events.Emitter[*Credentials]
}

// Option configures a Store.
type Option func(*Store)

// WithVaultKey overrides the persistence key.
func WithVaultKey(key string) Option {
	return func(s *Store) { s.vaultKey = key }
}

// NewStore creates a credential store.
func NewStore(secrets *vault.Vault, auth Authenticator, sessions SessionSink, opts ...Option) *Store {
	s := &Store{
		secrets:  secrets,
		vaultKey: DefaultVaultKey,
		auth:     auth,
		sessions: sessions,
		changes:  events.NewEmitter[*Credentials](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the in-memory credentials, or nil.
func (s *Store) Current() *Credentials {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

// Subscribe delivers every credential change, including to nil.
func (s *Store) Subscribe(listener func(*Credentials)) func() {
	return s.changes.Subscribe(listener)
}

// Update replaces the stored credentials. Equal values are a no-op.
// Persistence failures are logged and swallowed: the in-memory state
// still updates, because re-prompting the user over a transient storage
// hiccup is unacceptable; the next successful unlock re-syncs storage.
func (s *Store) Update(ctx context.Context, creds *Credentials) {
	s.mutex.Lock()
	if creds.Equal(s.current) {
		s.mutex.Unlock()
		return
	}
	s.mutex.Unlock()

	var err error
	if creds != nil {
		err = s.secrets.PutJSON(ctx, s.vaultKey, creds)
	} else {
		err = s.secrets.Reset(ctx, s.vaultKey)
	}
	if err != nil {
		slog.Warn("credentials: persisting credentials failed", "err", err)
	}

	s.commit(creds)
}

// Unlock reads stored credentials and signs in with them. Any vault
// read failure counts as "no credentials". On successful
// authentication (or when there is nothing to authenticate with) the
// resulting session — possibly nil — is forwarded to the session
// controller. The credentials that were read are committed and
// announced even when authentication fails, so subscribers see the
// snapshot that was tried.
func (s *Store) Unlock(ctx context.Context) error {
	creds := s.read(ctx)

	var liveSession *token.Session
	if creds != nil {
		var err error
		liveSession, err = s.auth.Authenticate(ctx, creds.Email, creds.Password)
		if err != nil {
			slog.Warn("credentials: unlock authentication failed", "email", creds.Email, "err", err)
			s.commit(creds)
			return err
		}
	}

	s.sessions.UpdateSession(liveSession)
	s.commit(creds)
	return nil
}

func (s *Store) read(ctx context.Context) *Credentials {
	var creds Credentials
	found, err := s.secrets.GetJSON(ctx, s.vaultKey, &creds)
	if err != nil {
		slog.Warn("credentials: reading stored credentials failed", "err", err)
		return nil
	}
	if !found {
		return nil
	}
	return &creds
}

func (s *Store) commit(creds *Credentials) {
	s.mutex.Lock()
	s.current = creds
	s.mutex.Unlock()
	s.changes.Emit(creds)
}

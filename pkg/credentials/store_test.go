package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmiller42/badmagic-native/pkg/token"
	"github.com/mmiller42/badmagic-native/pkg/vault"
)

type fakeAuthenticator struct {
	mutex sync.Mutex
	calls []Credentials
	fn    func(email, password string) (*token.Session, error)
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, email, password string) (*token.Session, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, Credentials{Email: email, Password: password})
	fn := f.fn
	f.mutex.Unlock()
	if fn == nil {
		return &token.Session{UserID: 7}, nil
	}
	return fn(email, password)
}

type fakeSink struct {
	mutex    sync.Mutex
	sessions []*token.Session
}

func (f *fakeSink) UpdateSession(s *token.Session) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sessions = append(f.sessions, s)
}

func (f *fakeSink) updates() []*token.Session {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*token.Session(nil), f.sessions...)
}

func newTestStore(t *testing.T) (*Store, *fakeAuthenticator, *fakeSink, *vault.Vault) {
	t.Helper()
	v := vault.New(vault.NewInMemStore())
	t.Cleanup(v.Shutdown)

	auth := &fakeAuthenticator{}
	sink := &fakeSink{}
	return NewStore(v, auth, sink), auth, sink, v
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	store, _, _, v := newTestStore(t)
	ctx := context.Background()

	var notified []*Credentials
	store.Subscribe(func(c *Credentials) { notified = append(notified, c) })

	creds := &Credentials{Email: "a@x.com", Password: "p"}
	store.Update(ctx, creds)

	assert.Equal(t, creds, store.Current())
	require.Len(t, notified, 1)

	var stored Credentials
	found, err := v.GetJSON(ctx, DefaultVaultKey, &stored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, *creds, stored)
}

func TestUpdate_EqualValueIsNoop(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	var notifications int
	store.Subscribe(func(*Credentials) { notifications++ })

	creds := &Credentials{Email: "a@x.com", Password: "p"}
	store.Update(ctx, creds)
	store.Update(ctx, creds)                                          // reference-equal
	store.Update(ctx, &Credentials{Email: "a@x.com", Password: "p"}) // field-equal

	assert.Equal(t, 1, notifications)
}

func TestUpdate_NilResetsVault(t *testing.T) {
	store, _, _, v := newTestStore(t)
	ctx := context.Background()

	store.Update(ctx, &Credentials{Email: "a@x.com", Password: "p"})
	store.Update(ctx, nil)

	assert.Nil(t, store.Current())

	var stored Credentials
	found, err := v.GetJSON(ctx, DefaultVaultKey, &stored)
	require.NoError(t, err)
	assert.False(t, found)
}

type brokenStore struct{ vault.Store }

func (brokenStore) Put(ctx context.Context, key, value string) error {
	return errors.New("keystore write rejected")
}

func (brokenStore) Reset(ctx context.Context, key string) error {
	return errors.New("keystore reset rejected")
}

func TestUpdate_PersistenceFailureStillUpdatesMemory(t *testing.T) {
	v := vault.New(brokenStore{vault.NewInMemStore()})
	t.Cleanup(v.Shutdown)
	store := NewStore(v, &fakeAuthenticator{}, &fakeSink{})

	var notifications int
	store.Subscribe(func(*Credentials) { notifications++ })

	creds := &Credentials{Email: "a@x.com", Password: "p"}
	store.Update(context.Background(), creds)

	assert.Equal(t, creds, store.Current())
	assert.Equal(t, 1, notifications)
}

func TestUnlock_RoundTripAfterRestart(t *testing.T) {
	store, _, _, v := newTestStore(t)
	ctx := context.Background()

	creds := &Credentials{Email: "a@x.com", Password: "p"}
	store.Update(ctx, creds)

	// Simulated restart: a fresh store over the same vault.
	auth := &fakeAuthenticator{}
	sink := &fakeSink{}
	restarted := NewStore(v, auth, sink)

	require.NoError(t, restarted.Unlock(ctx))

	require.Len(t, auth.calls, 1)
	assert.Equal(t, *creds, auth.calls[0], "unlock must authenticate with exactly the stored credentials")

	updates := sink.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(7), updates[0].UserID)
	assert.Equal(t, creds, restarted.Current())
}

func TestUnlock_NoCredentialsYieldsNilSession(t *testing.T) {
	store, auth, sink, _ := newTestStore(t)

	require.NoError(t, store.Unlock(context.Background()))

	assert.Empty(t, auth.calls)
	updates := sink.updates()
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0])
}

func TestUnlock_AuthFailureCommitsCredentials(t *testing.T) {
	store, auth, sink, v := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, v.PutJSON(ctx, DefaultVaultKey, Credentials{Email: "a@x.com", Password: "p"}))

	authErr := errors.New("invalid credentials")
	auth.fn = func(email, password string) (*token.Session, error) { return nil, authErr }

	var notified []*Credentials
	store.Subscribe(func(c *Credentials) { notified = append(notified, c) })

	err := store.Unlock(ctx)
	assert.ErrorIs(t, err, authErr)

	// The tried snapshot is visible even though authentication failed.
	require.NotNil(t, store.Current())
	assert.Equal(t, "a@x.com", store.Current().Email)
	require.Len(t, notified, 1)

	// The session controller was not touched.
	assert.Empty(t, sink.updates())
}

type gatedStore struct{ vault.Store }

func (gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("user canceled the operation")
}

func TestUnlock_VaultReadFailureTreatedAsNoCredentials(t *testing.T) {
	v := vault.New(gatedStore{vault.NewInMemStore()})
	t.Cleanup(v.Shutdown)

	auth := &fakeAuthenticator{}
	sink := &fakeSink{}
	store := NewStore(v, auth, sink)

	require.NoError(t, store.Unlock(context.Background()))

	assert.Empty(t, auth.calls)
	updates := sink.updates()
	require.Len(t, updates, 1)
	assert.Nil(t, updates[0])
	assert.Nil(t, store.Current())
}

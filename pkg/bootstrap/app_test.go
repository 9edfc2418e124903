package bootstrap

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmiller42/badmagic-native/pkg/authapi"
	"github.com/mmiller42/badmagic-native/pkg/config"
	"github.com/mmiller42/badmagic-native/pkg/credentials"
	"github.com/mmiller42/badmagic-native/pkg/mockauth"
	"github.com/mmiller42/badmagic-native/pkg/session"
	"github.com/mmiller42/badmagic-native/pkg/vault"
)

const totpSecret = "JBSWY3DPEHPK3PXP"

func newTestApp(t *testing.T, dataDir string) *App {
	t.Helper()

	server := mockauth.NewServer(mockauth.DefaultConfig(),
		mockauth.Account{UserID: 7, Email: "a@x.com", Password: "p"},
		mockauth.Account{UserID: 8, Email: "mfa@x.com", Password: "p", TOTPSecret: totpSecret},
	)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	cfg := &config.Config{
		AuthAPI: config.AuthAPIConfig{BaseURL: httpServer.URL, Timeout: 5 * time.Second},
		Vault: config.VaultConfig{
			PersistenceType: "file",
			DataDir:         dataDir,
			Passphrase:      "device-passcode",
			DefaultTimeout:  5 * time.Second,
			PromptTimeout:   5 * time.Second,
		},
		Session: config.SessionConfig{ClockDrift: 30 * time.Second},
	}

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)
	return app
}

func TestApp_LoginAndAccessToken(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, app.Login(ctx, "a@x.com", "p"))

	current := app.Sessions.Current()
	require.NotNil(t, current)
	assert.Equal(t, int64(7), current.UserID)

	creds := app.Credentials.Current()
	require.NotNil(t, creds)
	assert.Equal(t, "a@x.com", creds.Email)

	access, err := app.Sessions.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, current.Access.Token, access.Token)
}

func TestApp_TwoFactorFlow(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	ctx := context.Background()

	err := app.Login(ctx, "mfa@x.com", "p")
	var challenge *authapi.TwoFactorRequiredError
	require.ErrorAs(t, err, &challenge)
	assert.Nil(t, app.Sessions.Current())

	// Wrong code: challenge stays available for a retry.
	err = app.CompleteTwoFactor(ctx, "000000")
	require.ErrorIs(t, err, authapi.ErrInvalidCode)

	code, err := totp.GenerateCode(totpSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, app.CompleteTwoFactor(ctx, code))

	current := app.Sessions.Current()
	require.NotNil(t, current)
	assert.Equal(t, int64(8), current.UserID)

	// The hand-off slot was consumed.
	assert.Nil(t, app.MultiFactor.Pop())

	// Without a pending challenge the completion step refuses to run.
	assert.Error(t, app.CompleteTwoFactor(ctx, code))
}

// vaultHasKey opens the encrypted file store directly to observe what
// the app has persisted so far.
func vaultHasKey(ctx context.Context, dataDir, key string) bool {
	store, err := vault.NewStore("file", vault.StoreConfig{DataDir: dataDir, Passphrase: "device-passcode"})
	if err != nil {
		return false
	}
	_, found, err := store.Get(ctx, key)
	return err == nil && found
}

func TestApp_InitializeRestoresSessionAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	first := newTestApp(t, dataDir)
	require.NoError(t, first.Login(ctx, "a@x.com", "p"))
	want := first.Sessions.Current().Access.Token

	// The accepted session persists asynchronously.
	require.Eventually(t, func() bool {
		return vaultHasKey(ctx, dataDir, session.DefaultVaultKey)
	}, 5*time.Second, 50*time.Millisecond)

	restarted := newTestApp(t, dataDir)
	restarted.Initialize(ctx)

	current := restarted.Sessions.Current()
	require.NotNil(t, current)
	assert.Equal(t, int64(7), current.UserID)
	// Adopted straight from the vault, not re-issued.
	assert.Equal(t, want, current.Access.Token)
}

func TestApp_InitializeUnlocksFromStoredCredentials(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()

	first := newTestApp(t, dataDir)
	require.NoError(t, first.Login(ctx, "a@x.com", "p"))

	require.Eventually(t, func() bool {
		return vaultHasKey(ctx, dataDir, credentials.DefaultVaultKey)
	}, 5*time.Second, 50*time.Millisecond)

	// Wipe only the persisted session, keeping credentials: Initialize
	// must fall back to signing in with them.
	restarted := newTestApp(t, dataDir)
	require.NoError(t, restarted.Vault.Reset(ctx, session.DefaultVaultKey))

	restarted.Initialize(ctx)

	current := restarted.Sessions.Current()
	require.NotNil(t, current)
	assert.Equal(t, int64(7), current.UserID)
}

func TestApp_Logout(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, app.Login(ctx, "a@x.com", "p"))
	app.Logout(ctx)

	assert.Nil(t, app.Sessions.Current())
	assert.Nil(t, app.Credentials.Current())

	// A new app over the same vault finds nothing to unlock with.
	restarted := newTestApp(t, t.TempDir())
	restarted.Initialize(ctx)
	assert.Nil(t, restarted.Sessions.Current())
}

// Package bootstrap composes the auth core: vault, credential store,
// auth API client, and session controller, wired together with the
// refresh-failure fallback loop, plus the login flows the UI drives.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mmiller42/badmagic-native/pkg/authapi"
	"github.com/mmiller42/badmagic-native/pkg/config"
	"github.com/mmiller42/badmagic-native/pkg/credentials"
	"github.com/mmiller42/badmagic-native/pkg/httpclient"
	"github.com/mmiller42/badmagic-native/pkg/multifactor"
	"github.com/mmiller42/badmagic-native/pkg/session"
	"github.com/mmiller42/badmagic-native/pkg/vault"
)

// App owns the composed auth core. One instance is constructed at
// application start and injected into consumers.
type App struct {
	Vault       *vault.Vault
	AuthAPI     *authapi.Client
	Credentials *credentials.Store
	Sessions    *session.Controller
	MultiFactor *multifactor.Slot

	// HTTP authenticates every request through the session controller.
	HTTP *http.Client
}

// New builds the auth core from configuration.
func New(cfg *config.Config) (*App, error) {
	store, err := vault.NewStore(cfg.Vault.PersistenceType, vault.StoreConfig{
		DataDir:    cfg.Vault.DataDir,
		Passphrase: cfg.Vault.Passphrase,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create secret store: %w", err)
	}

	secrets := vault.New(store,
		vault.WithDefaultTimeout(cfg.Vault.DefaultTimeout),
		vault.WithPromptTimeout(cfg.Vault.PromptTimeout),
	)

	client := authapi.NewClient(cfg.AuthAPI.BaseURL,
		authapi.WithHTTPClient(&http.Client{Timeout: cfg.AuthAPI.Timeout}),
	)

	controller := session.NewController(client,
		session.WithVault(secrets, session.DefaultVaultKey),
		session.WithClockDrift(cfg.Session.ClockDrift),
	)

	credStore := credentials.NewStore(secrets, client, controller)

	// Irrecoverable refresh failures cascade into a silent
	// re-authentication from stored credentials.
	controller.SetReauthHandler(credStore.Unlock)

	return &App{
		Vault:       secrets,
		AuthAPI:     client,
		Credentials: credStore,
		Sessions:    controller,
		MultiFactor: multifactor.NewSlot(),
		HTTP:        httpclient.New(controller),
	}, nil
}

// Initialize restores persisted state: a still-valid token pair is
// adopted directly, otherwise stored credentials are used to sign in.
// Called once at application start.
func (a *App) Initialize(ctx context.Context) {
	a.Sessions.Initialize(ctx)
}

// Shutdown stops the refresh timer, fails pending token waiters, and
// stops the vault worker.
func (a *App) Shutdown() {
	a.Sessions.Shutdown()
	a.Vault.Shutdown()
}

// Login performs an interactive password login. On success the
// credentials are stored and the session installed. A second-factor
// challenge parks the pending login in the multi-factor slot and
// returns the *authapi.TwoFactorRequiredError for the UI to act on.
func (a *App) Login(ctx context.Context, email, password string) error {
	liveSession, err := a.AuthAPI.Authenticate(ctx, email, password)

	var challenge *authapi.TwoFactorRequiredError
	if errors.As(err, &challenge) {
		a.MultiFactor.Set(&multifactor.State{
			Email:          email,
			Password:       password,
			ChallengeToken: challenge.ChallengeToken,
		})
		return err
	}
	if err != nil {
		return err
	}

	a.Credentials.Update(ctx, &credentials.Credentials{Email: email, Password: password})
	a.Sessions.UpdateSession(liveSession)
	return nil
}

// CompleteTwoFactor finishes the login parked by Login. A wrong code
// puts the challenge back so the user can retry; any other failure
// leaves the slot empty and the flow starts over.
func (a *App) CompleteTwoFactor(ctx context.Context, code string) error {
	state := a.MultiFactor.Pop()
	if state == nil {
		return errors.New("bootstrap: no pending second-factor challenge")
	}

	liveSession, err := a.AuthAPI.TwoFactorAuthenticate(ctx, state.ChallengeToken, code)
	if err != nil {
		if errors.Is(err, authapi.ErrInvalidCode) {
			a.MultiFactor.Set(state)
		}
		return err
	}

	a.Credentials.Update(ctx, &credentials.Credentials{Email: state.Email, Password: state.Password})
	a.Sessions.UpdateSession(liveSession)
	return nil
}

// Logout clears stored credentials and ends the session.
func (a *App) Logout(ctx context.Context) {
	a.Credentials.Update(ctx, nil)
	a.Sessions.UpdateSession(nil)
}

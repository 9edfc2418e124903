package vault

import (
	"context"
	"errors"
	"regexp"
)

// Store is the boundary to a platform secret store. Implementations
// persist opaque string secrets under logical keys.
type Store interface {
	// Get returns the secret stored under key, or found=false if absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Put creates or overwrites the secret stored under key.
	Put(ctx context.Context, key, value string) error
	// Reset erases the secret stored under key. Missing keys are not an error.
	Reset(ctx context.Context, key string) error
}

// Gate models the device authentication prompt (passcode or biometric)
// that guards access to gated secrets. Implementations may block while
// the user responds.
type Gate interface {
	Authorize(ctx context.Context, reason string) error
}

// NoopGate authorizes every request. Used where the platform performs
// its own gating, and in tests.
type NoopGate struct{}

func (NoopGate) Authorize(ctx context.Context, reason string) error { return nil }

var (
	// ErrTimeout reports a store operation that exceeded its time budget.
	ErrTimeout = errors.New("vault: operation timed out")

	// ErrAuthGateFailed reports a cancelled or failed device
	// authentication prompt. Distinct from absence: the secret may well
	// exist, the user just did not get past the gate.
	ErrAuthGateFailed = errors.New("vault: device authentication failed")

	// ErrClosed reports an operation submitted after Shutdown.
	ErrClosed = errors.New("vault: closed")

	// ErrCorruptPayload reports a persisted secret that no longer
	// decodes as the expected JSON shape.
	ErrCorruptPayload = errors.New("vault: corrupt persisted payload")
)

// Platform secret stores report prompt cancellation through free-form
// error messages; match the known phrasings.
var authGateMessage = regexp.MustCompile(`(?i)cancel|not correct`)

func isAuthGateFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAuthGateFailed) || authGateMessage.MatchString(err.Error())
}

package authapi

import (
	"errors"
	"net/url"
)

var (
	// ErrInvalidCredentials reports a rejected email/password pair.
	ErrInvalidCredentials = errors.New("authapi: invalid credentials")

	// ErrInvalidCode reports a rejected one-time code during the
	// second-factor step.
	ErrInvalidCode = errors.New("authapi: invalid one-time code")

	// ErrAccountLocked reports an account the server refuses to sign in.
	ErrAccountLocked = errors.New("authapi: account locked")

	// ErrSessionExpired reports a rejected refresh token. The session is
	// unrecoverable; a full re-authentication is required.
	ErrSessionExpired = errors.New("authapi: session expired")
)

// TwoFactorRequiredError signals that the primary login succeeded but
// the account requires a second factor. It carries the challenge token
// the verification step must present.
type TwoFactorRequiredError struct {
	ChallengeToken string
}

func (e *TwoFactorRequiredError) Error() string {
	return "authapi: second factor required"
}

// IsOffline reports whether err is a transport-level failure where no
// HTTP response was received at all (client offline, DNS failure,
// timeout). Such failures are transient: the caller should keep its
// current session and retry later.
func IsOffline(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

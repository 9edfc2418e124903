// Package httpclient provides the authenticated HTTP client used for
// every request against the remote API that requires a bearer token.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmiller42/badmagic-native/pkg/token"
)

// TokenSource yields a valid access token, suspending the caller until
// one exists. Satisfied by *session.Controller.
type TokenSource interface {
	AccessToken(ctx context.Context) (token.Value, error)
}

// Transport attaches a bearer token to each outgoing request. The token
// is obtained through the session controller's choke point, so a request
// issued while a login or refresh is in flight waits for it instead of
// going out with a stale token. Cancelling the request's context
// releases the wait.
type Transport struct {
	source TokenSource
	base   http.RoundTripper
}

// NewTransport creates a bearer-attaching RoundTripper. A nil base uses
// http.DefaultTransport.
func NewTransport(source TokenSource, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{source: source, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	access, err := t.source.AccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("httpclient: acquire access token: %w", err)
	}

	// Per RoundTripper contract the original request is not mutated.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+access.Token)
	return t.base.RoundTrip(authed)
}

// New returns an *http.Client whose requests authenticate through
// source.
func New(source TokenSource) *http.Client {
	return &http.Client{Transport: NewTransport(source, nil)}
}

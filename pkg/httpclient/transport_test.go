package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmiller42/badmagic-native/pkg/token"
)

type staticSource struct {
	access token.Value
	err    error
}

func (s staticSource) AccessToken(ctx context.Context) (token.Value, error) {
	if err := ctx.Err(); err != nil {
		return token.Value{}, err
	}
	return s.access, s.err
}

func TestTransport_AttachesBearerToken(t *testing.T) {
	var seen string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := New(staticSource{access: token.Value{Token: "abc123"}})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer abc123", seen)
}

func TestTransport_UnauthenticatedFailsRequest(t *testing.T) {
	sourceErr := errors.New("unauthenticated")
	client := New(staticSource{err: sourceErr})

	_, err := client.Get("http://example.invalid/resource")
	assert.ErrorIs(t, err, sourceErr)
}

func TestTransport_ContextCancellationPropagates(t *testing.T) {
	client := New(staticSource{access: token.Value{Token: "abc123"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid/resource", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.ErrorIs(t, err, context.Canceled)
}

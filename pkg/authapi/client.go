package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmiller42/badmagic-native/pkg/token"
)

// RefreshTokenHeader carries the refresh token on refresh requests.
// The refresh flow runs out-of-band of the normal bearer scheme because
// the access token may already be expired when a refresh is attempted.
const RefreshTokenHeader = "authorization-x-refresh"

// Client performs the authentication handshake against the remote API.
// It is stateless; session ownership lives with the session controller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a client for the auth API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokensData is the server's token-pair shape. The same endpoint may
// instead return the challenge shape; the two are discriminated by
// which token field is present.
type tokensData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
	UserID       int64  `json:"user_id"`
	TfaAPIToken  string `json:"tfa_api_token"`
}

type envelope struct {
	Data tokensData `json:"data"`
}

type errorBody struct {
	Errors []struct {
		Description string `json:"description"`
	} `json:"errors"`
}

// Authenticate performs the primary password login. A second-factor
// challenge is returned as *TwoFactorRequiredError carrying the
// challenge token.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*token.Session, error) {
	body := map[string]string{"email": email, "password": password}
	status, data, err := c.post(ctx, "/v1/sessions", body, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, mapAuthError(status, data, false)
	}

	var resp envelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("authapi: decode login response: %w", err)
	}
	if resp.Data.TfaAPIToken != "" {
		return nil, &TwoFactorRequiredError{ChallengeToken: resp.Data.TfaAPIToken}
	}
	return buildSession(resp.Data)
}

// TwoFactorAuthenticate completes a pending login by presenting the
// challenge token and the user's one-time code.
func (c *Client) TwoFactorAuthenticate(ctx context.Context, challengeToken, code string) (*token.Session, error) {
	body := map[string]string{"tfa_api_token": challengeToken, "token": code}
	status, data, err := c.post(ctx, "/v1/sessions", body, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, mapAuthError(status, data, true)
	}

	var resp envelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("authapi: decode login response: %w", err)
	}
	return buildSession(resp.Data)
}

// RefreshTokens exchanges a refresh token for a new pair. A 401 means
// the refresh token itself was rejected (ErrSessionExpired); a
// transport failure with no response is not expiry and the caller
// should keep its session (see IsOffline).
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*token.Session, error) {
	header := http.Header{}
	header.Set(RefreshTokenHeader, refreshToken)

	status, data, err := c.post(ctx, "/v1/tokens", map[string]string{}, header)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, ErrSessionExpired
	case status != http.StatusOK && status != http.StatusCreated:
		return nil, fmt.Errorf("authapi: refresh failed with status %d", status)
	}

	var resp envelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("authapi: decode refresh response: %w", err)
	}
	return buildSession(resp.Data)
}

func (c *Client) post(ctx context.Context, path string, body any, header http.Header) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("authapi: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("authapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response received; surfaces as *url.Error (IsOffline).
		return 0, nil, fmt.Errorf("authapi: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("authapi: read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func mapAuthError(status int, data []byte, secondFactor bool) error {
	switch status {
	case http.StatusUnauthorized:
		if secondFactor && firstErrorDescription(data) == "Invalid code" {
			return ErrInvalidCode
		}
		return ErrInvalidCredentials
	case http.StatusForbidden:
		return ErrAccountLocked
	case http.StatusUnprocessableEntity:
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("authapi: unexpected status %d", status)
	}
}

func firstErrorDescription(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || len(body.Errors) == 0 {
		return ""
	}
	return body.Errors[0].Description
}

// buildSession decodes both returned tokens into a session. The pair
// originates from a single server call, so the decoded IssuedAt claims
// agree and version the pair.
func buildSession(data tokensData) (*token.Session, error) {
	access, err := token.Decode(data.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("authapi: access token: %w", err)
	}
	refresh, err := token.Decode(data.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("authapi: refresh token: %w", err)
	}

	return &token.Session{
		UserID:  data.UserID,
		Access:  token.Value{Token: data.AccessToken, Payload: access},
		Refresh: token.Value{Token: data.RefreshToken, Payload: refresh},
	}, nil
}

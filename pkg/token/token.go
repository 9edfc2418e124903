package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes the two halves of a token pair.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Payload holds the decoded claims of a signed token. Values are
// immutable once decoded.
type Payload struct {
	Type      Type   `json:"typ"`
	ExpiresAt int64  `json:"exp"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	Issuer    string `json:"iss"`
	KeyID     string `json:"kid"`
	IssuedAt  int64  `json:"iat"`
	ID        string `json:"jti"`
	NotBefore int64  `json:"nbf"`
}

// Value pairs a raw token string with its decoded payload.
type Value struct {
	Token   string  `json:"token"`
	Payload Payload `json:"payload"`
}

// Session is the token pair returned by a single authentication or
// refresh call. Access and Refresh always originate from the same
// server response, so their IssuedAt claims match and serve as a
// version marker for the pair.
type Session struct {
	UserID  int64 `json:"user_id"`
	Access  Value `json:"access"`
	Refresh Value `json:"refresh"`
}

// RefreshDelay returns how long the session's access token can still be
// used before a proactive refresh is due, with drift subtracted as a
// safety margin against clock skew. Never negative.
func (s *Session) RefreshDelay(now time.Time, drift time.Duration) time.Duration {
	expiry := time.Unix(s.Access.Payload.ExpiresAt, 0)
	delay := expiry.Sub(now) - drift
	if delay < 0 {
		return 0
	}
	return delay
}

// CanRefresh reports whether the refresh token is still usable, applying
// the same drift margin as RefreshDelay.
func (s *Session) CanRefresh(now time.Time, drift time.Duration) bool {
	expiry := time.Unix(s.Refresh.Payload.ExpiresAt, 0)
	return expiry.Add(-drift).After(now)
}

type tokenClaims struct {
	Typ string `json:"typ"`
	Kid string `json:"kid"`
	jwt.RegisteredClaims
}

// Decode extracts the claims of a signed token without verifying its
// signature. The tokens handled here arrive over an authenticated
// channel from the issuing server, so only the claims matter
// client-side.
func Decode(tokenStr string) (Payload, error) {
	var claims tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return Payload{}, fmt.Errorf("decode token claims: %w", err)
	}

	payload := Payload{
		Type:    Type(claims.Typ),
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		KeyID:   claims.Kid,
		ID:      claims.ID,
	}
	if len(claims.Audience) > 0 {
		payload.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		payload.NotBefore = claims.NotBefore.Unix()
	}
	return payload, nil
}

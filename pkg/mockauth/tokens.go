package mockauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type mintedClaims struct {
	Typ string `json:"typ"`
	Kid string `json:"kid"`
	jwt.RegisteredClaims
}

// issuedTokens is the outcome of one authentication or refresh call.
type issuedTokens struct {
	AccessToken  string
	RefreshToken string
	Expires      int64
	UserID       int64
}

// issueTokens mints an access/refresh pair for the account. The shared
// iat is forced strictly past the previously issued one so that every
// pair carries a distinct version marker even within one wall-clock
// second.
func (s *Server) issueTokens(account *Account) (*issuedTokens, error) {
	s.mutex.Lock()
	iat := time.Now().Unix()
	if iat <= s.lastIssued {
		iat = s.lastIssued + 1
	}
	s.lastIssued = iat
	s.mutex.Unlock()

	issuedAt := time.Unix(iat, 0)
	accessExpiry := issuedAt.Add(s.config.AccessTTL)

	access, err := s.mint("access", account, issuedAt, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := s.mint("refresh", account, issuedAt, issuedAt.Add(s.config.RefreshTTL))
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	return &issuedTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		Expires:      accessExpiry.Unix(),
		UserID:       account.UserID,
	}, nil
}

func (s *Server) mint(typ string, account *Account, issuedAt, expiry time.Time) (string, error) {
	claims := mintedClaims{
		Typ: typ,
		Kid: s.config.KeyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Subject:   fmt.Sprintf("%d", account.UserID),
			Issuer:    s.config.Issuer,
			Audience:  jwt.ClaimStrings{s.config.Audience},
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

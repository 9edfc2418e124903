// Package mockauth is an in-process stand-in for the remote
// authentication API: password login, TOTP second factor, and token
// refresh over the same wire shapes the client consumes. It backs the
// client test suites and the authd-mock binary; it is a fixture, not a
// product surface.
package mockauth

import (
	"sync"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Account is a login the mock server accepts.
type Account struct {
	UserID     int64
	Email      string
	Password   string
	TOTPSecret string // base32; empty disables the second factor
	Locked     bool
}

// Config controls token minting.
type Config struct {
	Secret     string
	Issuer     string
	Audience   string
	KeyID      string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultConfig returns minting parameters matching the production
// issuer constants.
func DefaultConfig() Config {
	return Config{
		Secret:     "mockauth-signing-secret",
		Issuer:     "community_manager",
		Audience:   "community_manager",
		KeyID:      "mock-key-1",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

// Server holds mock accounts and pending second-factor challenges.
type Server struct {
	config  Config
	jwtAuth *jwtauth.JWTAuth

	mutex      sync.Mutex
	accounts   map[string]*Account // by email
	byUserID   map[int64]*Account
	challenges map[string]*Account // challenge token -> pending account
	lastIssued int64               // last iat handed out, for strict monotonicity
}

// NewServer creates a mock auth server with the given accounts.
func NewServer(config Config, accounts ...Account) *Server {
	s := &Server{
		config:     config,
		jwtAuth:    jwtauth.New("HS256", []byte(config.Secret), nil),
		accounts:   make(map[string]*Account),
		byUserID:   make(map[int64]*Account),
		challenges: make(map[string]*Account),
	}
	for i := range accounts {
		account := accounts[i]
		s.accounts[account.Email] = &account
		s.byUserID[account.UserID] = &account
	}
	return s
}

// AddAccount registers or replaces an account.
func (s *Server) AddAccount(account Account) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.accounts[account.Email] = &account
	s.byUserID[account.UserID] = &account
}

// LockAccount marks an account locked; subsequent logins return 403.
func (s *Server) LockAccount(email string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if account, ok := s.accounts[email]; ok {
		account.Locked = true
	}
}

package mockauth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/pquerna/otp/totp"

	"github.com/mmiller42/badmagic-native/pkg/authapi"
	"github.com/mmiller42/badmagic-native/pkg/token"
)

type sessionRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	TfaAPIToken string `json:"tfa_api_token"`
	Token       string `json:"token"`
}

type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      int64  `json:"expires"`
	UserID       int64  `json:"user_id"`
}

type challengeResponse struct {
	TfaAPIToken string `json:"tfa_api_token"`
}

type envelope struct {
	Data any `json:"data"`
}

type apiError struct {
	Description string `json:"description"`
}

type errorResponse struct {
	Errors []apiError `json:"errors"`
}

// Handler returns the mock API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/sessions", s.handleSessions)
	r.Post("/v1/tokens", s.handleTokens)
	return r
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Malformed request body")
		return
	}

	if req.TfaAPIToken != "" {
		s.handleSecondFactor(w, r, req)
		return
	}

	s.mutex.Lock()
	account, found := s.accounts[req.Email]
	s.mutex.Unlock()

	if !found || account.Password != req.Password {
		writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if account.Locked {
		writeError(w, r, http.StatusForbidden, "Account locked")
		return
	}

	if account.TOTPSecret != "" {
		challengeToken := uuid.New().String()
		s.mutex.Lock()
		s.challenges[challengeToken] = account
		s.mutex.Unlock()

		render.JSON(w, r, envelope{Data: challengeResponse{TfaAPIToken: challengeToken}})
		return
	}

	s.writeTokens(w, r, account)
}

func (s *Server) handleSecondFactor(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	s.mutex.Lock()
	account, found := s.challenges[req.TfaAPIToken]
	s.mutex.Unlock()

	if !found {
		writeError(w, r, http.StatusUnauthorized, "Unknown challenge")
		return
	}
	if !totp.Validate(req.Token, account.TOTPSecret) {
		writeError(w, r, http.StatusUnauthorized, "Invalid code")
		return
	}

	s.mutex.Lock()
	delete(s.challenges, req.TfaAPIToken)
	s.mutex.Unlock()

	s.writeTokens(w, r, account)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.Header.Get(authapi.RefreshTokenHeader)
	if refreshToken == "" {
		writeError(w, r, http.StatusUnauthorized, "Missing refresh token")
		return
	}

	if _, err := jwtauth.VerifyToken(s.jwtAuth, refreshToken); err != nil {
		writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	payload, err := token.Decode(refreshToken)
	if err != nil || payload.Type != token.TypeRefresh {
		writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if time.Unix(payload.ExpiresAt, 0).Before(time.Now()) {
		writeError(w, r, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	userID, err := strconv.ParseInt(payload.Subject, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mutex.Lock()
	account, found := s.byUserID[userID]
	s.mutex.Unlock()
	if !found {
		writeError(w, r, http.StatusUnauthorized, "Unknown account")
		return
	}

	s.writeTokens(w, r, account)
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, account *Account) {
	issued, err := s.issueTokens(account)
	if err != nil {
		slog.Error("mockauth: token minting failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "Token minting failed")
		return
	}

	var resp tokensResponse
	if err := copier.Copy(&resp, issued); err != nil {
		slog.Error("mockauth: response mapping failed", "err", err)
		writeError(w, r, http.StatusInternalServerError, "Response mapping failed")
		return
	}

	render.JSON(w, r, envelope{Data: resp})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, description string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Errors: []apiError{{Description: description}}})
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/service"
	"github.com/sakif/learnmade/internal/validation"
)

const stateCookieName = "oauth_state"

// GitHubOAuth is the part of *auth.GitHubProvider the handler needs.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages password sign-up/login, the GitHub OAuth flow and
// the session cookie.
//
// The session is a JWT in an HttpOnly cookie. Its role claim is only a
// hint for the frontend: every privileged call re-reads the user row.
type AuthHandler struct {
	accounts      *service.AuthService
	github        GitHubOAuth // nil when GitHub sign-in is not configured
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(accounts *service.AuthService, github GitHubOAuth, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		github:        github,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup creates a password account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.accounts.Signup(r.Context(), validation.SignupInput{Email: in.Email, Password: in.Password})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, Envelope{
		Success: true,
		Data:    map[string]any{"user": user},
		Message: "User created successfully",
	})
}

// HandleLogin checks credentials and starts a session.
//
// HTTP: POST /auth/login
// RESPONSE: {"success": true, "data": {"user": {...}, "token": "..."}}
// The token is also set as the HttpOnly cookie; API clients may send it
// back as "Authorization: Bearer <token>" instead.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeData(w, http.StatusOK, res)
}

// HandleRefresh re-issues the session token with the role currently stored
// for the user, so a promotion or demotion shows up without a new login.
//
// HTTP: POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.Refresh(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeData(w, http.StatusOK, res)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so the token stays valid until it expires;
// without the cookie the browser simply stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	writeMessage(w, http.StatusOK, "Logged out")
}

// HandleMe returns the current user as stored, not as the token remembers it.
//
// HTTP: GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Me(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and must come
// back unchanged on the callback.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Verify the state cookie (CSRF)
//  2. Exchange the code for the GitHub profile and email
//  3. Log in, link by email, or create the account
//  4. Set the session cookie and redirect home
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, "/login?error=github", http.StatusSeeOther)
		return
	}

	res, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Warn("auth callback: sign-in rejected",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, "/login?error=github", http.StatusSeeOther)
		return
	}

	h.logger.Info("user authenticated via GitHub",
		slog.String("userID", res.User.ID),
		slog.String("login", ghUser.Login),
	)

	h.setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   h.accounts.TokenTTL(),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

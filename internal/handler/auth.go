package handler

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippime/internal/auth"
	"github.com/sakif/snippime/internal/service"
)

const stateCookie = "oauth_state"

// GitHubOAuth is the part of *auth.GitHubProvider the handler needs.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// GoogleOAuth is the part of *auth.GoogleProvider the handler needs.
type GoogleOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// AuthHandler manages sign-up, sign-in, the OAuth login flows, sessions and
// profiles.
//
//   - HandleSignUp / HandleSignIn      → email + password, JSON in and out
//   - HandleGitHubLogin / ...Callback  → GitHub OAuth redirect dance
//   - HandleGoogleLogin / ...Callback  → Google OAuth redirect dance
//   - HandleLogout                     → clear the JWT cookie
//   - HandleMe / HandleUpdateMe        → the signed-in user's profile
//   - HandleProfile                    → another user's public profile
//
// Either OAuth provider may be nil when it is not configured; its routes are
// then not registered.
type AuthHandler struct {
	auth          *service.AuthService
	github        GitHubOAuth
	google        GoogleOAuth
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(
	authSvc *service.AuthService,
	github GitHubOAuth,
	google GoogleOAuth,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:          authSvc,
		github:        github,
		google:        google,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// GitHubEnabled reports whether the GitHub routes should be mounted.
func (h *AuthHandler) GitHubEnabled() bool { return h.github != nil }

// GoogleEnabled reports whether the Google routes should be mounted.
func (h *AuthHandler) GoogleEnabled() bool { return h.google != nil }

// setTokenCookie stores the JWT in an HttpOnly cookie. HttpOnly keeps it
// away from page scripts; SameSite=Lax keeps it off cross-site POSTs.
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TokenTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// HTTP: POST /auth/signup  {"email", "password", "displayName"}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

// HTTP: POST /auth/signin  {"email", "password"}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the JWT cookie. Tokens are stateless, so a copied
// token stays valid until it expires.
//
// HTTP: POST /auth/logout
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

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// startOAuth stores a random state (128 bits from crypto/rand) in a
// short-lived cookie and redirects to the provider. The callback compares
// the two (CSRF check).
func (h *AuthHandler) startOAuth(w http.ResponseWriter, r *http.Request, authURL func(string) string) {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL(state), http.StatusTemporaryRedirect)
}

// checkOAuthCallback validates the state, clears the state cookie and
// returns the authorization code. ok is false when a response has already
// been written.
func (h *AuthHandler) checkOAuthCallback(w http.ResponseWriter, r *http.Request, provider string) (code string, ok bool) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" {
		h.logger.Warn("auth callback: missing state cookie", slog.String("provider", provider))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return "", false
	}

	if r.URL.Query().Get("state") != c.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", provider))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return "", false
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("provider", provider),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return "", false
	}

	code = r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return "", false
	}
	return code, true
}

// finishOAuth sets the session cookie and sends the browser home.
func (h *AuthHandler) finishOAuth(w http.ResponseWriter, r *http.Request, res *service.AuthResult, err error, provider string) {
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, "/?auth=failed", http.StatusSeeOther)
		return
	}
	h.setTokenCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	h.startOAuth(w, r, h.github.AuthURL)
}

// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := h.checkOAuthCallback(w, r, "github")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	ghUser, err := h.github.Exchange(ctx, code)
	if err != nil {
		h.finishOAuth(w, r, nil, err, "github")
		return
	}
	res, err := h.auth.LoginOrRegisterGitHub(ctx, ghUser)
	h.finishOAuth(w, r, res, err, "github")
}

// HTTP: GET /auth/google/login
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	h.startOAuth(w, r, h.google.AuthURL)
}

// HTTP: GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code, ok := h.checkOAuthCallback(w, r, "google")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	gUser, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.finishOAuth(w, r, nil, err, "google")
		return
	}
	res, err := h.auth.LoginOrRegisterGoogle(ctx, gUser)
	h.finishOAuth(w, r, res, err, "google")
}

// HandleMe returns the signed-in user's own record, email included.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), viewerID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: PUT /api/me  {"displayName", "bio", "photoUrl", "preferredLanguages"}
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName        string   `json:"displayName"`
		Bio                string   `json:"bio"`
		PhotoURL           string   `json:"photoUrl"`
		PreferredLanguages []string `json:"preferredLanguages"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), viewerID(r), service.ProfileInput{
		DisplayName:        req.DisplayName,
		Bio:                req.Bio,
		PhotoURL:           req.PhotoURL,
		PreferredLanguages: req.PreferredLanguages,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleProfile returns a user's public profile.
//
// HTTP: GET /api/users/{id}
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Profile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

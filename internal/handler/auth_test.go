package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippime/internal/auth"
)

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	if code != "good-code" {
		return nil, errors.New("bad code")
	}
	return f.user, f.err
}

type fakeGoogle struct {
	user *auth.GoogleUser
}

func (f *fakeGoogle) AuthURL(state string) string {
	return "https://google.example/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f *fakeGoogle) Exchange(context.Context, string) (*auth.GoogleUser, error) {
	return f.user, nil
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// callback builds a provider callback request carrying the state cookie.
func callback(path, state, cookieState, code string) *http.Request {
	q := url.Values{"state": {state}, "code": {code}}
	r := httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
	if cookieState != "" {
		r.AddCookie(&http.Cookie{Name: stateCookie, Value: cookieState})
	}
	return r
}

// === SIGN UP / SIGN IN ===

func TestHandleSignUp_SetsCookie(t *testing.T) {
	svc := newServices(t)
	h := NewAuthHandler(svc.auth, nil, nil, true, discardLogger())

	rec := httptest.NewRecorder()
	body := `{"email":"new@example.com","password":"secret-password"}`
	h.HandleSignUp(rec, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := cookieNamed(rec, auth.CookieName)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, int(auth.DefaultTokenTTL.Seconds()), c.MaxAge)

	userID, err := svc.tokens.Validate(c.Value)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
}

func TestHandleSignIn_WrongPassword(t *testing.T) {
	svc := newServices(t)
	svc.signUp(t, "a@example.com")
	h := NewAuthHandler(svc.auth, nil, nil, false, discardLogger())

	rec := httptest.NewRecorder()
	body := `{"email":"a@example.com","password":"nope-nope"}`
	h.HandleSignIn(rec, httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, cookieNamed(rec, auth.CookieName))
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	svc := newServices(t)
	h := NewAuthHandler(svc.auth, nil, nil, false, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	c := cookieNamed(rec, auth.CookieName)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
}

// === OAUTH ===

func TestGitHubLogin_RedirectsWithState(t *testing.T) {
	svc := newServices(t)
	h := NewAuthHandler(svc.auth, &fakeGitHub{}, nil, false, discardLogger())
	assert.True(t, h.GitHubEnabled())
	assert.False(t, h.GoogleEnabled())

	rec := httptest.NewRecorder()
	h.HandleGitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := cookieNamed(rec, stateCookie)
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)
}

func TestGitHubLogin_StateIsUnpredictable(t *testing.T) {
	svc := newServices(t)
	h := NewAuthHandler(svc.auth, &fakeGitHub{}, nil, false, discardLogger())

	states := make(map[string]bool)
	for range 5 {
		rec := httptest.NewRecorder()
		h.HandleGitHubLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		c := cookieNamed(rec, stateCookie)
		require.NotNil(t, c)
		assert.Len(t, c.Value, 26, "128 bits, base32")
		states[c.Value] = true
	}
	assert.Len(t, states, 5)
}

func TestGitHubCallback(t *testing.T) {
	gh := &fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octo", Email: "Octo@Example.com"}}

	t.Run("success signs in", func(t *testing.T) {
		svc := newServices(t)
		h := NewAuthHandler(svc.auth, gh, nil, false, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, callback("/auth/github/callback", "s1", "s1", "good-code"))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		require.NotNil(t, cookieNamed(rec, auth.CookieName))
	})

	t.Run("state mismatch", func(t *testing.T) {
		svc := newServices(t)
		h := NewAuthHandler(svc.auth, gh, nil, false, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, callback("/auth/github/callback", "s1", "other", "good-code"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		svc := newServices(t)
		h := NewAuthHandler(svc.auth, gh, nil, false, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, callback("/auth/github/callback", "s1", "", "good-code"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("exchange failure", func(t *testing.T) {
		svc := newServices(t)
		h := NewAuthHandler(svc.auth, gh, nil, false, discardLogger())

		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, callback("/auth/github/callback", "s1", "s1", "bad-code"))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/?auth=failed", rec.Header().Get("Location"))
		assert.Nil(t, cookieNamed(rec, auth.CookieName))
	})

	t.Run("user denied", func(t *testing.T) {
		svc := newServices(t)
		h := NewAuthHandler(svc.auth, gh, nil, false, discardLogger())

		r := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=s1&error=access_denied", nil)
		r.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})
		rec := httptest.NewRecorder()
		h.HandleGitHubCallback(rec, r)

		assert.Equal(t, "/?auth=denied", rec.Header().Get("Location"))
	})
}

func TestGoogleCallback_RequiresVerifiedEmail(t *testing.T) {
	svc := newServices(t)
	g := &fakeGoogle{user: &auth.GoogleUser{Sub: "g-1", Email: "g@example.com", Name: "G"}}
	h := NewAuthHandler(svc.auth, nil, g, false, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleGoogleCallback(rec, callback("/auth/google/callback", "s", "s", "code"))
	assert.Equal(t, "/?auth=failed", rec.Header().Get("Location"))

	g.user.EmailVerified = true
	rec = httptest.NewRecorder()
	h.HandleGoogleCallback(rec, callback("/auth/google/callback", "s", "s", "code"))
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.NotNil(t, cookieNamed(rec, auth.CookieName))
}

// === PROFILE ===

func TestHandleProfile_HidesEmail(t *testing.T) {
	svc := newServices(t)
	id := svc.signUp(t, "private@example.com")
	h := NewAuthHandler(svc.auth, nil, nil, false, discardLogger())

	rec := httptest.NewRecorder()
	h.HandleProfile(rec, withParams(httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil), "id", id))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "private@example.com")

	rec = httptest.NewRecorder()
	h.HandleMe(rec, as(httptest.NewRequest(http.MethodGet, "/api/me", nil), id))
	assert.Contains(t, rec.Body.String(), "private@example.com")
}

package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippime/internal/auth"
	sqliteRepo "github.com/sakif/snippime/internal/repository/sqlite"
	"github.com/sakif/snippime/internal/search"
	"github.com/sakif/snippime/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// services is a real service stack over in-memory SQLite and an in-memory
// search index.
type services struct {
	db          *sqliteRepo.DB
	tokens      *auth.TokenService
	auth        *service.AuthService
	snippets    *service.SnippetService
	votes       *service.VoteService
	collections *service.CollectionService
}

func newServices(t *testing.T) *services {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := search.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0)
	require.NoError(t, err)

	logger := discardLogger()
	return &services{
		db:          db,
		tokens:      tokens,
		auth:        service.NewAuthService(db.Users(), tokens, auth.NewPasswordServiceForTest(4), logger),
		snippets:    service.NewSnippetService(db.Snippets(), db.Versions(), db.Users(), index, nil, logger),
		votes:       service.NewVoteService(db.Votes(), db.Snippets(), nil, logger),
		collections: service.NewCollectionService(db.Collections(), db.Snippets(), db.Users(), nil, logger),
	}
}

// signUp registers a user and returns its ID.
func (s *services) signUp(t *testing.T, email string) string {
	t.Helper()
	res, err := s.auth.SignUp(context.Background(), email, "secret-password", "")
	require.NoError(t, err)
	return res.User.ID
}

// as attaches an authenticated user to the request.
func as(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithUserID(r.Context(), userID))
}

// withParams sets chi URL parameters on a request built outside a router.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

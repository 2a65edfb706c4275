// Package server is the composition root: it opens storage and the search
// index, builds services and handlers, and mounts every route.
//
// DEPENDENCY FLOW:
//
//	config → sqlite.DB, search.Index, live.Hub
//	       → services (repository interfaces + index + hub)
//	       → handlers (services only)
//	       → chi router
//
// The handlers never touch the database and the services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/snippime/internal/auth"
	"github.com/sakif/snippime/internal/config"
	"github.com/sakif/snippime/internal/handler"
	"github.com/sakif/snippime/internal/live"
	"github.com/sakif/snippime/internal/middleware"
	"github.com/sakif/snippime/internal/render"
	sqliteRepo "github.com/sakif/snippime/internal/repository/sqlite"
	"github.com/sakif/snippime/internal/search"
	"github.com/sakif/snippime/internal/service"
)

// Server owns the HTTP router and every long-lived resource. Close releases
// them; Start closes them on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	index   *search.Index
	hub     *live.Hub
	limiter *middleware.RateLimiter
}

// New opens the database and search index and wires the application.
// A search index that is empty (always the case for an in-memory one) is
// rebuilt from the database before New returns.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	index, err := search.Open(cfg.SearchIndexPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening search index: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		index:  index,
		hub:    live.NewHub(logger),
	}

	if err := s.warmIndex(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) warmIndex(ctx context.Context) error {
	n, err := s.index.Count()
	if err != nil {
		return fmt.Errorf("counting search index: %w", err)
	}
	if n > 0 {
		return nil
	}

	indexed, err := s.index.Rebuild(ctx, s.db.Snippets())
	if err != nil {
		return fmt.Errorf("building search index: %w", err)
	}
	s.logger.Info("search index built", slog.Int("snippets", indexed))
	return nil
}

// Handler returns the root HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER:
//  1. RequestID, RealIP: request identity for logs and the rate limiter
//  2. Logger: one line per request
//  3. Recoverer: a panic becomes a 500 instead of killing the process
//  4. CORS: the SPA and embeds are served from other origins
//
// Route groups add OptionalAuth or RequireAuth, and mutating routes add the
// rate limiter after auth so signed-in users get their own bucket.
func (s *Server) setupRoutes() error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Dependencies ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	renderer, err := render.New(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	users := s.db.Users()
	snippets := s.db.Snippets()

	authSvc := service.NewAuthService(users, tokens, auth.NewPasswordService(), s.logger)
	snippetSvc := service.NewSnippetService(snippets, s.db.Versions(), users, s.index, s.hub, s.logger)
	voteSvc := service.NewVoteService(s.db.Votes(), snippets, s.hub, s.logger)
	collectionSvc := service.NewCollectionService(s.db.Collections(), snippets, users, s.hub, s.logger)

	// A nil *GitHubProvider in a non-nil interface would look enabled.
	var github handler.GitHubOAuth
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHubCallbackURL())
	}
	var google handler.GoogleOAuth
	if cfg.Google.Enabled() {
		google = auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.GoogleCallbackURL())
	}

	authHandler := handler.NewAuthHandler(authSvc, github, google, cfg.Auth.SecureCookies, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetSvc, collectionSvc, s.logger)
	voteHandler := handler.NewVoteHandler(voteSvc, s.logger)
	collectionHandler := handler.NewCollectionHandler(collectionSvc, s.logger)
	embedHandler := handler.NewEmbedHandler(snippetSvc, renderer, s.logger)
	liveHandler := handler.NewLiveHandler(s.hub, cfg.CORS.AllowedOrigins, s.logger)
	metaHandler := handler.NewMetaHandler(s.db, s.logger)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		limit = middleware.RateLimit(s.limiter, handler.WriteError)
	}

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// === Public pages ===
	s.router.Get("/healthz", metaHandler.HandleHealth)
	s.router.With(optionalAuth).Get("/embed/{id}", embedHandler.HandleEmbed)

	// === Auth ===
	s.router.Route("/auth", func(r chi.Router) {
		r.With(limit).Post("/signup", authHandler.HandleSignUp)
		r.With(limit).Post("/signin", authHandler.HandleSignIn)
		r.Post("/logout", authHandler.HandleLogout)

		if authHandler.GitHubEnabled() {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		} else {
			s.logger.Warn("GitHub OAuth not configured; /auth/github routes disabled")
		}
		if authHandler.GoogleEnabled() {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("Google OAuth not configured; /auth/google routes disabled")
		}
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/languages", metaHandler.HandleLanguages)
		r.Get("/tags/suggest", metaHandler.HandleTagSuggest)

		// Reads: anonymous allowed, owners see their own drafts.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.Get("/snippets", snippetHandler.HandleDiscover)
			r.Get("/snippets/search", snippetHandler.HandleSearch)
			r.Get("/snippets/{id}", snippetHandler.HandleGet)
			r.Get("/snippets/{id}/versions", snippetHandler.HandleVersions)
			r.Get("/collections/{id}", collectionHandler.HandleGet)
			r.Get("/collections/{id}/items", collectionHandler.HandleItems)
			r.Get("/users/{id}", authHandler.HandleProfile)
			r.Get("/users/{id}/snippets", snippetHandler.HandleListByUser)
			r.Get("/users/{id}/collections", collectionHandler.HandleListByUser)
			r.Get("/live", liveHandler.HandleLive)
		})

		// Signed-in reads.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/me/liked", voteHandler.HandleLiked)
			r.Get("/collections", collectionHandler.HandleListMine)
			r.Get("/snippets/{id}/vote", voteHandler.HandleGetVote)
			r.Get("/snippets/{id}/collections", snippetHandler.HandleMembership)
		})

		// Mutations.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(limit)

			r.Put("/me", authHandler.HandleUpdateMe)

			r.Post("/snippets", snippetHandler.HandleCreate)
			r.Put("/snippets/{id}", snippetHandler.HandleUpdate)
			r.Put("/snippets/{id}/status", snippetHandler.HandleSetStatus)
			r.Delete("/snippets/{id}", snippetHandler.HandleDelete)
			r.Post("/snippets/{id}/fork", snippetHandler.HandleFork)
			r.Post("/snippets/{id}/versions/{versionID}/revert", snippetHandler.HandleRevert)
			r.Put("/snippets/{id}/vote", voteHandler.HandleVote)

			r.Post("/collections", collectionHandler.HandleCreate)
			r.Put("/collections/{id}", collectionHandler.HandleUpdate)
			r.Delete("/collections/{id}", collectionHandler.HandleDelete)
			r.Post("/collections/{id}/items/{snippetID}", collectionHandler.HandleToggleItem)
		})
	})

	return nil
}

// Close releases the database, the search index and the rate limiter.
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return errors.Join(s.index.Close(), s.db.Close())
}

// Start serves HTTP until SIGINT or SIGTERM, then drains in-flight requests
// for up to 30 seconds and closes every resource.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /api/live holds its connection open and sets its
		// own per-write deadlines.
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

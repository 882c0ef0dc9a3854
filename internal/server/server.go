// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer: it connects handlers, middleware and
// routes, and decides
//   - which URL patterns map to which handler functions
//   - which routes need a token and which only notice one
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	    sqlite.DB ──┬─ SnippetService ─┬─ SnippetHandler
//	                ├─ InteractionService ┘
//	                ├─ CommentService ─── CommentHandler
//	                ├─ TagService ─────── TagHandler
//	                ├─ UserService ────── UserHandler
//	                └─ AuthService ────── AuthHandler
//	    events.Publisher (NATS or no-op) → every mutating service
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, and nothing below this package reaches for a global.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/csstoy/internal/auth"
	"github.com/sakif/csstoy/internal/config"
	"github.com/sakif/csstoy/internal/events"
	"github.com/sakif/csstoy/internal/handler"
	"github.com/sakif/csstoy/internal/metrics"
	"github.com/sakif/csstoy/internal/middleware"
	sqliteRepo "github.com/sakif/csstoy/internal/repository/sqlite"
	"github.com/sakif/csstoy/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the event publisher. Close
// releases both; Start calls it on the way out.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	publisher events.Publisher
}

// New opens the database (applying migrations), connects the event
// publisher and builds the router.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it is never confused with
// the modernc.org/sqlite driver package.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Events are optional. Without NATS_URL, or when the broker is down at
	// startup, the server still runs and simply publishes nothing.
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := events.NewNatsPublisher(cfg.NATSURL)
		if err != nil {
			logger.Warn("NATS unavailable, domain events disabled", slog.String("error", err.Error()))
		} else {
			publisher = nc
		}
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		publisher: publisher,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the publisher and the database.
func (s *Server) Close() error {
	s.publisher.Close()
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health                               → database ping
//	GET    /metrics                              → Prometheus
//	/api/auth        register, login, logout, me, password reset, GitHub
//	/api/cssnippets  feeds, search, detail, CRUD, visibility, versions, like/collect
//	/api/comments    thread, detail, create, delete
//	/api/tags        popular, prefix search, snippets by tag
//	/api/users       profile, password, my/liked/collected snippets
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns an id the logger attaches to every line
//  2. RealIP: client IP from proxy headers
//  3. Logger: logs and measures each request
//  4. Recoverer: turns a panic into a 500 (inside Logger, so the 500 is logged)
//  5. CORS: answers preflights for the browser front end
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// === Services ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(s.config.BcryptCost)
	ttl := service.TokenTTL{Default: s.config.TokenTTL, Remember: s.config.RememberTokenTTL}

	snippets := service.NewSnippetService(s.db.Snippets(), s.db.Ledger(), s.publisher, s.config.PopularWindow, s.logger)
	interactions := service.NewInteractionService(s.db.Ledger(), s.publisher, s.logger)
	comments := service.NewCommentService(s.db.Comments(), s.db.Snippets(), s.publisher, s.logger)
	tags := service.NewTagService(s.db.Tags(), s.logger)
	users := service.NewUserService(s.db.Users(), passwords, s.logger)
	authSvc := service.NewAuthService(s.db.Users(), tokens, passwords, ttl, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	// === Handlers ===
	snippetHandler := handler.NewSnippetHandler(snippets, interactions, s.logger)
	commentHandler := handler.NewCommentHandler(comments, s.logger)
	tagHandler := handler.NewTagHandler(tags, snippets, s.logger)
	userHandler := handler.NewUserHandler(users, snippets, s.logger)
	authHandler := handler.NewAuthHandler(authSvc, users, github, s.config.TokenTTL, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Get("/health", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/reset-question", authHandler.HandleResetQuestion)
			r.Post("/reset-password", authHandler.HandleResetPassword)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)

			// GitHub routes exist only when the OAuth app is configured.
			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
		})

		r.Route("/cssnippets", func(r chi.Router) {
			// ROUTE GROUPS:
			// r.Group shares a middleware stack without adding a path
			// prefix. Reads only notice a token; writes demand one.
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/popular", snippetHandler.HandlePopular)
				r.Get("/latest", snippetHandler.HandleLatest)
				r.Get("/search", snippetHandler.HandleSearch)
				r.Get("/{id}", snippetHandler.HandleGet)
				r.Get("/{id}/versions", snippetHandler.HandleVersions)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", snippetHandler.HandleCreate)
				r.Put("/{id}", snippetHandler.HandleUpdate)
				r.Delete("/{id}", snippetHandler.HandleDelete)
				r.Patch("/{id}/visibility", snippetHandler.HandleToggleVisibility)

				r.Post("/{id}/like", snippetHandler.HandleLike)
				r.Delete("/{id}/like", snippetHandler.HandleUnlike)
				r.Post("/{id}/like/toggle", snippetHandler.HandleToggleLike)
				r.Post("/{id}/collect", snippetHandler.HandleCollect)
				r.Delete("/{id}/collect", snippetHandler.HandleUncollect)
				r.Post("/{id}/collect/toggle", snippetHandler.HandleToggleCollect)
			})
		})

		r.Route("/comments", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/cssnippet/{id}", commentHandler.HandleTree)
				r.Get("/{id}", commentHandler.HandleGet)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", commentHandler.HandleCreate)
				r.Delete("/{id}", commentHandler.HandleDelete)
			})
		})

		r.Route("/tags", func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/popular", tagHandler.HandlePopular)
			r.Get("/search", tagHandler.HandleSearch)
			r.Get("/{name}/cssnippets", tagHandler.HandleSnippets)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/profile", userHandler.HandleProfile)
			r.Put("/profile", userHandler.HandleUpdateProfile)
			r.Put("/password", userHandler.HandleChangePassword)
			r.Get("/my-cssnippets", userHandler.HandleMySnippets)
			r.Get("/liked-cssnippets", userHandler.HandleLiked)
			r.Get("/collected-cssnippets", userHandler.HandleCollected)
		})
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Drain the event publisher and close the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("github", s.config.GitHubEnabled()),
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

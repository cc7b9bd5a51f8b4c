// Package server wires the application together and runs the HTTP server.
//
// This is the composition root: New opens the database, builds the stores,
// services and handlers, and maps URLs to handlers. Nothing else in the
// module constructs its own dependencies.
//
//	sqldb.DB → stores → services → handlers → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/config"
	"github.com/sakif/snipshare/internal/handler"
	"github.com/sakif/snipshare/internal/middleware"
	"github.com/sakif/snipshare/internal/repository/sqldb"
	"github.com/sakif/snipshare/internal/service"
)

// Server owns the database handle and the router. The database is closed
// when Run returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqldb.DB
	health *handler.HealthHandler

	tracer    trace.Tracer
	passwords *auth.PasswordService
}

type Option func(*Server)

// WithTracer sets the tracer used for request spans. Without it the global
// provider's tracer is used.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithPasswordService replaces the default argon2id parameters. Tests use it
// to keep hashing cheap.
func WithPasswordService(p *auth.PasswordService) Option {
	return func(s *Server) { s.passwords = p }
}

// New opens the database, runs migrations and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(cfg.App.Name)
	}
	if s.passwords == nil {
		s.passwords = auth.NewPasswordService()
	}

	db, err := sqldb.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.setupRoutes(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers middleware and routes.
//
// Middleware order matters: the request id must exist before anything logs,
// and Recoverer sits inside Logger so a recovered panic is still logged as
// a 500.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWT.Secret, s.config.JWT.Issuer, s.config.JWT.Expiry)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	users := sqldb.NewUserStore(s.db)
	snippets := sqldb.NewSnippetStore(s.db)
	interactions := sqldb.NewInteractionStore(s.db)

	authService := service.NewAuthService(users, tokens, s.passwords, s.logger)
	snippetService := service.NewSnippetService(snippets, interactions, s.logger)
	interactionService := service.NewInteractionService(snippets, interactions, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHub.ClientID, s.config.GitHub.ClientSecret, s.config.GitHub.CallbackURL)
	}

	secure := s.config.IsProduction()
	resp := handler.NewResponder(s.logger, !s.config.IsProduction())

	authHandler := handler.NewAuthHandler(authService, github, resp, secure, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, resp)
	interactionHandler := handler.NewInteractionHandler(interactionService, resp)
	userHandler := handler.NewUserHandler(authService, resp)
	s.health = handler.NewHealthHandler(s.db, resp)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	// Credential endpoints are throttled per IP when enabled.
	throttle := func(next http.Handler) http.Handler { return next }
	if rl := s.config.RateLimit; rl.Enabled {
		throttle = middleware.NewRateLimiter(rl.AuthPerMinute, rl.AuthBurst).Handler
	}

	s.router.Use(chimiddleware.RequestID)
	if s.config.Server.TrustProxy {
		// RealIP rewrites RemoteAddr from client-supplied headers, which
		// would let anyone pick their own rate-limit bucket.
		s.router.Use(chimiddleware.RealIP)
	}
	s.router.Use(middleware.Tracing(s.tracer))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resp.JSON(w, http.StatusNotFound, handler.Envelope{Error: "route not found"})
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resp.JSON(w, http.StatusMethodNotAllowed, handler.Envelope{Error: "method not allowed"})
	})

	s.router.Get("/health", s.health.Liveness)
	s.router.Get("/health/ready", s.health.Readiness)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(throttle).Post("/inscription", authHandler.Register)
			r.With(throttle).Post("/connexion", authHandler.Login)

			if github != nil {
				r.Get("/github/login", authHandler.GitHubLogin)
				r.Get("/github/callback", authHandler.GitHubCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/deconnexion", authHandler.Logout)
				r.Get("/verifier", authHandler.Verify)
				r.Get("/moi", authHandler.Me)
				r.Put("/email", authHandler.UpdateEmail)
				r.Put("/mot-de-passe", authHandler.UpdatePassword)
			})
		})

		r.Route("/snippets", func(r chi.Router) {
			r.Get("/populaires", snippetHandler.Popular)

			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/", snippetHandler.List)
				r.Get("/recherche", snippetHandler.Search)
				r.Get("/{id}", snippetHandler.Get)
				r.Get("/{id}/commentaires", interactionHandler.Comments)
				r.Get("/{id}/likes", interactionHandler.Likers)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", snippetHandler.Create)
				r.Put("/{id}", snippetHandler.Update)
				r.Delete("/{id}", snippetHandler.Delete)
				r.Post("/{id}/like", interactionHandler.ToggleLike)
				r.Post("/{id}/commentaires", interactionHandler.AddComment)
				r.Delete("/{id}/commentaires/{commentId}", interactionHandler.DeleteComment)
			})
		})

		r.Get("/tags/populaires", snippetHandler.PopularTags)

		r.Route("/utilisateurs/{id}", func(r chi.Router) {
			r.With(optionalAuth).Get("/snippets", snippetHandler.ByUser)
			r.Get("/statistiques", userHandler.Statistics)
		})
	})

	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully: readiness
// flips to 503, in-flight requests get ShutdownTimeout to finish, and the
// database is closed last.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.db.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         s.config.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("environment", s.config.App.Environment),
			slog.String("database", s.db.Driver()),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		s.health.SetShutdown(true)

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the database without serving. Only needed when Run is
// never called.
func (s *Server) Close() error {
	return s.db.Close()
}

// Package server assembles the HTTP surface: the server-rendered UI and a
// small JSON API under /api/v1.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/bloodlens/internal/analysis"
	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/config"
	"github.com/me/bloodlens/internal/pdfextract"
	"github.com/me/bloodlens/internal/session"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/ui"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.1.0"

// Deps are the services the server routes to. All are required.
type Deps struct {
	Store     store.Store
	Auth      auth.Provider
	Sessions  *session.Manager
	Analyzer  *analysis.Service
	Extractor *pdfextract.Extractor
}

// Server is the BloodLens HTTP server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	app       *config.Config
	startTime time.Time
	store     store.Store
	auth      auth.Provider
	analyzer  *analysis.Service
	ui        *ui.UI
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, app *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		app:       app,
		startTime: time.Now(),
		store:     deps.Store,
		auth:      deps.Auth,
		analyzer:  deps.Analyzer,
	}

	s.ui = ui.New(deps.Store, deps.Sessions, deps.Analyzer, deps.Extractor, logger, ui.Config{
		Secure:   cfg.SecureCookies,
		TokenTTL: app.Auth.TokenTTL.Std(),
		Theme:    app.Theme,
	})

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(tracingMiddleware)
	r.Use(securityHeaders)

	// UI routes (HTML)
	s.ui.RegisterRoutes(r)

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(apiAuthMiddleware(s.auth, s.logger))

			r.Get("/me", s.handleMe)
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.handleListReports)
				r.Get("/{id}", s.handleGetReport)
			})
		})
	})
}

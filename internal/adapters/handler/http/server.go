// Package http serves the remote-call endpoint, the REST API, the event
// websocket and the server-rendered panels.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
	"omvstack.control/internal/core/services"
	"omvstack.control/internal/panel"
)

// Dispatcher runs remote calls and knows which services exist.
type Dispatcher interface {
	panel.Caller
	Methods(service string) ([]string, bool)
}

type Options struct {
	Version        string
	RPCSecret      string
	SessionTTL     time.Duration
	EnableMetrics  bool
	AllowedOrigins []string
}

type Server struct {
	router    *chi.Mux
	engine    Dispatcher
	healthSvc *services.HealthService
	hub       *Hub
	poller    *services.StatusPoller
	calls     ports.CallRepository
	workspace *panel.Workspace
	sessions  *scs.SessionManager
	guard     *panel.Guard
	opts      Options
}

func NewServer(engine Dispatcher, workspace *panel.Workspace, healthSvc *services.HealthService, hub *Hub, poller *services.StatusPoller, calls ports.CallRepository, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}

	sessions := scs.New()
	sessions.Store = memstore.New()
	sessions.Lifetime = opts.SessionTTL
	sessions.Cookie.Name = "omvstack_session"
	sessions.Cookie.Path = "/"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteStrictMode

	s := &Server{
		router:    chi.NewRouter(),
		engine:    engine,
		healthSvc: healthSvc,
		hub:       hub,
		poller:    poller,
		calls:     calls,
		workspace: workspace,
		sessions:  sessions,
		guard:     panel.NewGuard(),
		opts:      opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(requestLogContext)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	if s.opts.EnableMetrics {
		s.router.Use(MetricsMiddleware)
	}
	// Credentials are only shared with explicitly allowed origins.
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", rpcTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: len(s.opts.AllowedOrigins) > 0,
		MaxAge:           300,
	}))

	if s.opts.EnableMetrics {
		s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			MetricsHandler().ServeHTTP(w, r)
		})
	}

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/health/detailed", s.handleDetailedHealth)
	s.router.Get("/api/ws", s.handleWS)

	s.router.Post("/rpc", s.handleRPC)

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.LoadAndSave)
		r.Get("/login", s.handleLoginGet)
		r.Post("/login", s.handleLoginPost)
		r.Post("/logout", s.handleLogout)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.LoadAndSave)
		r.Use(s.requireAuth)
		s.registerAPI(humachi.New(r, huma.DefaultConfig("omvstack", s.version())))
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.sessions.LoadAndSave)
		r.Use(s.requireAuth)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/panels", http.StatusFound)
		})
		r.Get("/panels", s.handlePanelList)
		r.Get("/panels/{id}", s.handlePanel)
		r.Get("/panels/{id}/logs", s.handlePanelLogs)
		r.Get("/panels/{id}/open", s.handlePanelOpen)
		r.Post("/panels/{id}/controller", s.handlePanelController)
		r.Post("/panels/{id}/{action}", s.handlePanelAction)
	})
}

func (s *Server) version() string {
	if s.opts.Version == "" {
		return "0.0.1"
	}
	return s.opts.Version
}

// Handler exposes the router, mainly for tests and for an http.Server owned
// by the caller.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogContext carries chi's request id into the logger context.
func requestLogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}

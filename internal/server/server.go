package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/go-github/v57/github"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"

	"dash/internal/config"
	"dash/internal/deploy"
	"dash/internal/oauth"
	"dash/internal/store"
	"dash/internal/web"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 30 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 60 * time.Second

	// Rate limiting - requests per minute per client IP
	GlobalRateLimit  = 120
	WebhookRateLimit = 12

	// Clients idle this long lose their limiter state.
	RateLimitIdle = 10 * time.Minute

	MaxPayloadBytes = 1_000_000 // 1 MB

	RecentDeploymentsLimit = 20
)

// DocumentStore is the subset of the SQLite store used by handlers.
type DocumentStore interface {
	Ping(ctx context.Context) error
	AdminTokenExists(ctx context.Context, token string) (bool, error)
	GetBot(ctx context.Context, id string) (*store.Bot, error)
	PutBot(ctx context.Context, id string, data json.RawMessage) error
	RecordScheduled(ctx context.Context, d *store.Deployment) error
	RecentDeployments(ctx context.Context, limit int) ([]store.Deployment, error)
	GetDeployment(ctx context.Context, jobID string) (*store.Deployment, error)
}

// SessionStore is a gorilla sessions.Store that can reissue session ids.
type SessionStore interface {
	sessions.Store
	Rotate(session *sessions.Session) error
}

// Authenticator runs the OAuth2 authorization-code flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (oauth.Profile, error)
}

// Notifier announces deploys.
type Notifier interface {
	Deploy(ctx context.Context, event *github.PushEvent, commits []*github.HeadCommit) error
	Log(text string)
}

// Dependencies are the collaborators a Server is built from.
type Dependencies struct {
	Store    DocumentStore
	Sessions SessionStore
	OAuth    Authenticator
	Notifier Notifier
	Deployer deploy.Controller
	Pages    *web.Renderer
}

// Server is the application context shared by every handler.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    DocumentStore
	Sessions SessionStore
	OAuth    Authenticator
	Notifier Notifier
	Deployer deploy.Controller
	Pages    *web.Renderer
	// TestMode disables rate limiting.
	TestMode bool

	globalLimiter  *RateLimiter
	webhookLimiter *RateLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Server {
	return &Server{
		Config:   cfg,
		Logger:   logger,
		Store:    deps.Store,
		Sessions: deps.Sessions,
		OAuth:    deps.OAuth,
		Notifier: deps.Notifier,
		Deployer: deps.Deployer,
		Pages:    deps.Pages,
		TestMode: !cfg.Server.RateLimit,

		globalLimiter:  NewWindowRateLimiter(GlobalRateLimit, time.Minute),
		webhookLimiter: NewWindowRateLimiter(WebhookRateLimit, time.Minute),
	}
}

// SweepRateLimiters drops limiter state for clients idle longer than
// RateLimitIdle.
func (s *Server) SweepRateLimiters() {
	n := s.globalLimiter.Sweep(RateLimitIdle) + s.webhookLimiter.Sweep(RateLimitIdle)
	if n > 0 {
		s.Logger.Debug("Idle rate limiters removed", "count", n)
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	if s.Config.Server.TrustProxy {
		// Only behind a proxy that overwrites X-Forwarded-For / X-Real-IP.
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(requestLogger(s.Logger))

	if !s.TestMode {
		r.Use(s.globalLimiter.Middleware("global", s.Logger))
	}

	r.Get("/health", s.HandleHealth)

	webhook := r.With()
	if !s.TestMode {
		webhook = r.With(s.webhookLimiter.Middleware("webhook", s.Logger))
	}
	webhook.Post("/hooks/github", s.HandleGitHubWebhook)

	// Browser routes
	r.Get("/", s.page(web.PageIndex))
	r.Get("/login", s.HandleLogin)
	r.Get("/callback", s.HandleCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.authRequired(false, browserPolicy))

		r.Get("/logout", s.HandleLogout)
		r.Get("/dashboard", s.page(web.PageDashboard))
		r.Get("/bot", s.page(web.PageBot))
		r.Get("/config", s.page(web.PageConfig))
		r.Get("/commands", s.page(web.PageCommands))
	})

	// JSON API
	r.Route("/api", func(r chi.Router) {
		if len(s.Config.Server.AllowedOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.Config.Server.AllowedOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}

		r.With(s.authRequired(false, apiPolicy)).Get("/bots/{id}", s.HandleGetBot)
		r.With(s.authRequired(true, apiPolicy)).Post("/bots/{id}", s.HandlePutBot)
		r.With(s.authRequired(true, apiPolicy)).Get("/deploys", s.HandleDeploys)
		r.With(s.authRequired(true, apiPolicy)).Get("/deploys/{job}", s.HandleDeploy)
	})

	return r
}

// Start listens on the configured address and blocks until the server
// stops. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	addr := s.Config.Addr()

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.Logger.Info("Starting server", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops accepting requests and waits for in-flight
// ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondStoreError maps a store failure to a 5xx response.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, action string, err error) {
	s.Logger.Error("Store operation failed",
		"action", action,
		"error", err,
		"request_id", middleware.GetReqID(r.Context()))

	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, map[string]string{"error": "Backend unavailable"})
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

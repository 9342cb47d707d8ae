// Package api provides the HTTP handlers of the nutriplan server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/nutriplan/internal/auth"
	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/chat"
	"github.com/ashureev/nutriplan/internal/config"
	"github.com/ashureev/nutriplan/internal/identity"
	"github.com/ashureev/nutriplan/internal/nav"
	"github.com/ashureev/nutriplan/internal/shared"
	"github.com/ashureev/nutriplan/internal/store"
	"github.com/ashureev/nutriplan/web"
	"github.com/go-chi/chi/v5"
)

// Handler serves pages, form actions and the chat socket.
type Handler struct {
	repo       store.Repository
	httpClient *http.Client
	cfg        *config.Config
	inflight   *shared.InFlight
	limiter    *RateLimiter
	visits     *chat.VisitManager
	pages      *web.Renderer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(cfg *config.Config, repo store.Repository, httpClient *http.Client, limiter *RateLimiter, visits *chat.VisitManager, pages *web.Renderer) *Handler {
	return &Handler{
		repo:       repo,
		httpClient: httpClient,
		cfg:        cfg,
		inflight:   &shared.InFlight{},
		limiter:    limiter,
		visits:     visits,
		pages:      pages,
	}
}

// RegisterRoutes registers every page, action and socket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.IndexPage)
	r.Get("/"+string(nav.PageIndex), h.IndexPage)
	r.Get("/"+string(nav.PageLogin), h.LoginPage)
	r.Get("/"+string(nav.PageDashboard), h.DashboardPage)
	r.Get("/"+string(nav.PageChat), h.ChatPage)
	r.Handle("/static/*", web.StaticHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.Config)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.limiter.Middleware)
			r.Post("/login", h.Login)
			r.Post("/register", h.Register)
			r.Post("/meal-plan", h.GenerateMealPlan)
			r.Post("/tweak", h.Tweak)
		})
	})

	r.Get("/ws/chat", h.ChatSocket)
}

// requestDeps is the per-request object graph of one client. It lives as
// long as the page load or action that created it.
type requestDeps struct {
	clientID string
	storage  store.Storage
	session  *auth.Session
	api      *backend.Client
	auth     *auth.Manager
	nav      *nav.Recorder
}

func (h *Handler) deps(ctx context.Context) (*requestDeps, error) {
	clientID := identity.ClientIDFromContext(ctx)
	if clientID == "" {
		return nil, fmt.Errorf("missing client identity")
	}

	storage := store.ForClient(h.repo, clientID)
	session, err := auth.NewSession(ctx, storage)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	api := backend.NewClient(h.cfg.BackendURL, h.httpClient, session)
	rec := &nav.Recorder{}
	return &requestDeps{
		clientID: clientID,
		storage:  storage,
		session:  session,
		api:      api,
		auth:     auth.NewManager(api, session, rec),
		nav:      rec,
	}, nil
}

// Config returns the client-visible configuration.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps(r.Context())
	if err != nil {
		slog.Error("Failed to load client state", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"backendUrl": h.cfg.BackendURL,
		"loggedIn":   d.auth.IsLoggedIn(r.Context()),
		"username":   d.session.Username(),
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// redirectTo answers an action with the page the browser should load next.
func redirectTo(w http.ResponseWriter, page nav.Page) {
	JSON(w, http.StatusOK, map[string]string{"redirect": page.Path()})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo, timeout: 5 * time.Second}
}

// Health returns the health status of the server and its database.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

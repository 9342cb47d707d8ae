// Package dashboard loads the profile page of a logged-in user and applies
// tweaks to the stored meal plan.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/nutriplan/internal/auth"
	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/nav"
	"github.com/ashureev/nutriplan/internal/render"
	"github.com/ashureev/nutriplan/internal/shared"
	"github.com/ashureev/nutriplan/internal/store"
)

// NoPlanText is shown when the user has no stored meal plan.
const NoPlanText = "No meal plan found. Generate one from the form page."

var (
	// ErrNotAuthenticated is returned when the dashboard is used without a valid session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTweakInProgress is returned while an earlier tweak of the same client is pending.
	ErrTweakInProgress = errors.New("tweak already in progress")
	// ErrEmptyInstructions is returned for a blank tweak.
	ErrEmptyInstructions = errors.New("tweak instructions are required")
)

// View is everything the dashboard page shows.
type View struct {
	Profile   *domain.UserProfile
	PlanHTML  template.HTML
	HasPlan   bool
	ExpiresAt time.Time
}

// Controller serves the dashboard of one client.
type Controller struct {
	api      *backend.Client
	auth     *auth.Manager
	storage  store.Storage
	inflight *shared.InFlight
	clientID string
}

// NewController creates a Controller.
func NewController(api *backend.Client, manager *auth.Manager, storage store.Storage, inflight *shared.InFlight, clientID string) *Controller {
	return &Controller{
		api:      api,
		auth:     manager,
		storage:  storage,
		inflight: inflight,
		clientID: clientID,
	}
}

// Load fetches the profile and current plan. Anonymous clients are sent to
// the login page; a rejected token logs the client out.
func (c *Controller) Load(ctx context.Context) (*View, error) {
	if c.auth.RedirectToLogin(ctx, nav.PageDashboard) {
		return nil, ErrNotAuthenticated
	}

	profile, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, c.handleBackendError(ctx, "load profile", err)
	}

	view := &View{Profile: profile}
	if claims, err := auth.ParseClaims(c.auth.Session().Token()); err == nil {
		view.ExpiresAt = claims.ExpiresAt
	}

	plan, err := c.api.CurrentMealPlan(ctx)
	switch {
	case backend.StatusOf(err) == http.StatusNotFound:
		plan = ""
	case err != nil:
		return nil, c.handleBackendError(ctx, "load meal plan", err)
	}

	if strings.TrimSpace(plan) == "" {
		view.PlanHTML = render.Text(NoPlanText)
		return view, nil
	}
	view.PlanHTML = render.Markdown(plan)
	view.HasPlan = true
	return view, nil
}

// Tweak asks the backend to revise the user's plan and returns the new plan rendered.
func (c *Controller) Tweak(ctx context.Context, instructions string) (template.HTML, error) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return "", ErrEmptyInstructions
	}
	if !c.auth.IsLoggedIn(ctx) {
		return "", ErrNotAuthenticated
	}

	release, ok := c.inflight.Acquire("tweak:" + c.clientID)
	if !ok {
		return "", ErrTweakInProgress
	}
	defer release()

	plan, err := c.api.TweakMealPlan(ctx, domain.TweakRequest{
		Username:    c.auth.Session().Username(),
		CurrentDiet: instructions,
	})
	if err != nil {
		return "", c.handleBackendError(ctx, "tweak meal plan", err)
	}

	if err := c.storage.SetItem(ctx, domain.KeyMealPlan, plan); err != nil {
		return "", fmt.Errorf("store meal plan: %w", err)
	}
	slog.Info("Meal plan tweaked", "client_id", c.clientID)
	return render.Markdown(plan), nil
}

func (c *Controller) handleBackendError(ctx context.Context, what string, err error) error {
	if backend.IsUnauthorized(err) {
		slog.Info("Backend rejected token, logging out", "client_id", c.clientID)
		if logoutErr := c.auth.Logout(ctx); logoutErr != nil {
			slog.Error("Logout failed", "client_id", c.clientID, "error", logoutErr)
		}
		return fmt.Errorf("%s: %w", what, ErrNotAuthenticated)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// UserMessage returns the text shown to the user for a dashboard error.
func UserMessage(err error) string {
	var apiErr *backend.APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "Please log in again."
	case errors.Is(err, ErrEmptyInstructions):
		return "Please describe how the plan should change."
	case errors.Is(err, ErrTweakInProgress):
		return "Your tweak is already being applied."
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return "Error updating meal plan. Please try again."
	}
}

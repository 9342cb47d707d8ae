// Package nutrition drives the meal-plan request form.
package nutrition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/nutriplan/internal/auth"
	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/nav"
	"github.com/ashureev/nutriplan/internal/shared"
	"github.com/ashureev/nutriplan/internal/store"
)

// GenericFailure is shown when a submission fails for any reason other than
// a missing field.
const GenericFailure = "Error generating meal plan. Please try again."

// ErrSubmissionInProgress is returned while an earlier submission of the same client is pending.
var ErrSubmissionInProgress = errors.New("meal plan request already in progress")

// ValidationError names a required field that was left empty.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Form holds the submitted field values.
type Form struct {
	Name        string  `json:"name"`
	Age         int     `json:"age"`
	Height      float64 `json:"height"`
	Weight      float64 `json:"weight"`
	Goal        string  `json:"goal"`
	PlanType    string  `json:"planType"`
	CurrentDiet string  `json:"currentDiet"`
}

// Validate performs the presence checks of the form.
func (f Form) Validate() error {
	switch {
	case f.Age <= 0:
		return &ValidationError{Field: "age"}
	case f.Height <= 0:
		return &ValidationError{Field: "height"}
	case f.Weight <= 0:
		return &ValidationError{Field: "weight"}
	case strings.TrimSpace(f.Goal) == "":
		return &ValidationError{Field: "goal"}
	case strings.TrimSpace(f.PlanType) == "":
		return &ValidationError{Field: "planType"}
	}
	return nil
}

// Controller submits the form of one client.
type Controller struct {
	api      *backend.Client
	session  *auth.Session
	storage  store.Storage
	nav      nav.Navigator
	inflight *shared.InFlight
	clientID string
}

// NewController creates a Controller.
func NewController(api *backend.Client, session *auth.Session, storage store.Storage, navigator nav.Navigator, inflight *shared.InFlight, clientID string) *Controller {
	return &Controller{
		api:      api,
		session:  session,
		storage:  storage,
		nav:      navigator,
		inflight: inflight,
		clientID: clientID,
	}
}

// BuildRequest turns the form into a backend request. The username is
// attached when the client is logged in.
func (c *Controller) BuildRequest(f Form) domain.MealPlanRequest {
	req := domain.MealPlanRequest{
		Username: c.session.Username(),
		Name:     strings.TrimSpace(f.Name),
		Age:      f.Age,
		Height:   f.Height,
		Weight:   f.Weight,
		Goal:     strings.TrimSpace(f.Goal),
		PlanType: strings.TrimSpace(f.PlanType),
	}
	if req.PlanType == domain.PlanTypeTweaks {
		req.CurrentDiet = strings.TrimSpace(f.CurrentDiet)
	}
	return req
}

// Submit requests a meal plan, stores it and navigates to the chat page.
// On failure nothing is stored and no navigation happens.
func (c *Controller) Submit(ctx context.Context, f Form) error {
	if err := f.Validate(); err != nil {
		return err
	}

	release, ok := c.inflight.Acquire("meal-plan:" + c.clientID)
	if !ok {
		return ErrSubmissionInProgress
	}
	defer release()

	mealPlan, err := c.api.GenerateMealPlan(ctx, c.BuildRequest(f))
	if err != nil {
		slog.Error("Meal plan generation failed", "client_id", c.clientID, "error", err)
		return fmt.Errorf("generate meal plan: %w", err)
	}

	if err := c.storage.SetItem(ctx, domain.KeyMealPlan, mealPlan); err != nil {
		return fmt.Errorf("store meal plan: %w", err)
	}

	slog.Info("Meal plan generated", "client_id", c.clientID, "plan_type", f.PlanType)
	c.nav.Navigate(nav.PageChat)
	return nil
}

// UserMessage returns the text shown to the user for a Submit error.
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Please fill in " + verr.Field + "."
	case errors.Is(err, ErrSubmissionInProgress):
		return "Your meal plan is already being generated."
	default:
		return GenericFailure
	}
}

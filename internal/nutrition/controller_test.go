package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ashureev/nutriplan/internal/auth"
	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/nav"
	"github.com/ashureev/nutriplan/internal/shared"
	"github.com/ashureev/nutriplan/internal/store"
)

type harness struct {
	ctrl     *Controller
	storage  *store.MemoryStorage
	rec      *nav.Recorder
	inflight *shared.InFlight

	mu   sync.Mutex
	last domain.MealPlanRequest
}

func newHarness(t *testing.T, handler func(w http.ResponseWriter, req domain.MealPlanRequest)) *harness {
	t.Helper()
	h := &harness{
		storage:  store.NewMemoryStorage(),
		rec:      &nav.Recorder{},
		inflight: &shared.InFlight{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != backend.EndpointGenerateMealPlan {
			http.NotFound(w, r)
			return
		}
		var req domain.MealPlanRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		h.mu.Lock()
		h.last = req
		h.mu.Unlock()
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return h.build(t, srv)
}

func (h *harness) build(t *testing.T, srv *httptest.Server) *harness {
	t.Helper()
	session, err := auth.NewSession(context.Background(), h.storage)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	api := backend.NewClient(srv.URL, srv.Client(), session)
	h.ctrl = NewController(api, session, h.storage, h.rec, h.inflight, "client_test")
	return h
}

func validForm() Form {
	return Form{Age: 30, Height: 175, Weight: 70, Goal: "lose", PlanType: "new"}
}

func TestSubmitSuccess(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {
		_, _ = w.Write([]byte(`{"mealPlan":"Day 1: oats"}`))
	})
	ctx := context.Background()

	if err := h.ctrl.Submit(ctx, validForm()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if v, _, _ := h.storage.GetItem(ctx, domain.KeyMealPlan); v != "Day 1: oats" {
		t.Errorf("expected stored meal plan, got %q", v)
	}
	if page, ok := h.rec.Target(); !ok || page != nav.PageChat {
		t.Errorf("expected navigation to chatpage.html, got %q", page)
	}
	if h.last.Age != 30 || h.last.Goal != "lose" || h.last.PlanType != "new" {
		t.Errorf("unexpected request %+v", h.last)
	}
}

func TestSubmitBackendFailure(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	err := h.ctrl.Submit(ctx, validForm())
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected APIError 500, got %v", err)
	}
	if UserMessage(err) != GenericFailure {
		t.Errorf("unexpected user message %q", UserMessage(err))
	}
	if _, ok, _ := h.storage.GetItem(ctx, domain.KeyMealPlan); ok {
		t.Error("meal plan must not be stored on failure")
	}
	if _, ok := h.rec.Target(); ok {
		t.Error("expected no navigation on failure")
	}

	// The guard is released after a failure.
	release, ok := h.inflight.Acquire("meal-plan:client_test")
	if !ok {
		t.Fatal("expected guard to be released")
	}
	release()
}

func TestSubmitMissingMealPlan(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {
		_, _ = w.Write([]byte(`{}`))
	})

	err := h.ctrl.Submit(context.Background(), validForm())
	var appErr *backend.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	called := false
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {
		called = true
	})

	tests := []struct {
		name  string
		edit  func(*Form)
		field string
	}{
		{name: "age", edit: func(f *Form) { f.Age = 0 }, field: "age"},
		{name: "height", edit: func(f *Form) { f.Height = 0 }, field: "height"},
		{name: "weight", edit: func(f *Form) { f.Weight = 0 }, field: "weight"},
		{name: "goal", edit: func(f *Form) { f.Goal = "  " }, field: "goal"},
		{name: "plan type", edit: func(f *Form) { f.PlanType = "" }, field: "planType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.edit(&f)
			err := h.ctrl.Submit(context.Background(), f)
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("expected ValidationError for %s, got %v", tt.field, err)
			}
		})
	}
	if called {
		t.Error("backend must not be called for invalid forms")
	}
}

func TestSubmitInProgress(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {
		_, _ = w.Write([]byte(`{"mealPlan":"x"}`))
	})
	release, ok := h.inflight.Acquire("meal-plan:client_test")
	if !ok {
		t.Fatal("Acquire failed")
	}
	defer release()

	err := h.ctrl.Submit(context.Background(), validForm())
	if !errors.Is(err, ErrSubmissionInProgress) {
		t.Fatalf("expected ErrSubmissionInProgress, got %v", err)
	}
}

func TestBuildRequest(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ domain.MealPlanRequest) {})
	ctx := context.Background()

	f := validForm()
	f.CurrentDiet = "toast"
	if req := h.ctrl.BuildRequest(f); req.CurrentDiet != "" || req.Username != "" {
		t.Errorf("expected anonymous request without current diet, got %+v", req)
	}

	f.PlanType = domain.PlanTypeTweaks
	if req := h.ctrl.BuildRequest(f); req.CurrentDiet != "toast" {
		t.Errorf("expected current diet for tweaks, got %q", req.CurrentDiet)
	}

	if err := h.ctrl.session.Set(ctx, "tok", "alice"); err != nil {
		t.Fatal(err)
	}
	if req := h.ctrl.BuildRequest(f); req.Username != "alice" {
		t.Errorf("expected username from session, got %q", req.Username)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: &ValidationError{Field: "goal"}, want: "Please fill in goal."},
		{err: ErrSubmissionInProgress, want: "Your meal plan is already being generated."},
		{err: &backend.NetworkError{Endpoint: "/x", Err: errors.New("refused")}, want: GenericFailure},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

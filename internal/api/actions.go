package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/nutriplan/internal/auth"
	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/dashboard"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/nav"
	"github.com/ashureev/nutriplan/internal/nutrition"
)

const maxActionBody = 64 << 10

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tweakRequest struct {
	Instructions string `json:"instructions"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxActionBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// authStatus maps an auth failure to an HTTP status.
func authStatus(err error) int {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		switch {
		case authErr.Status >= 400 && authErr.Status < 500:
			return authErr.Status
		case authErr.Status == 0 && authErr.Err == nil:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

// Login exchanges credentials for a token and sends the browser to the dashboard.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := h.deps(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}

	if err := d.auth.Login(r.Context(), req.Username, req.Password); err != nil {
		Error(w, authStatus(err), err.Error())
		return
	}
	h.answerNavigation(w, d.nav)
}

// Register creates the account and logs it in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	d, err := h.deps(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}

	if err := d.auth.Register(r.Context(), reg); err != nil {
		Error(w, authStatus(err), err.Error())
		return
	}
	if err := d.auth.Login(r.Context(), reg.Username, reg.Password); err != nil {
		Error(w, authStatus(err), err.Error())
		return
	}
	h.answerNavigation(w, d.nav)
}

// Logout clears the session and sends the browser to the login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}
	if err := d.auth.Logout(r.Context()); err != nil {
		slog.Error("Logout failed", "client_id", d.clientID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	h.answerNavigation(w, d.nav)
}

// GenerateMealPlan submits the nutrition form.
func (h *Handler) GenerateMealPlan(w http.ResponseWriter, r *http.Request) {
	var form nutrition.Form
	if !decodeBody(w, r, &form) {
		return
	}
	d, err := h.deps(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}

	ctrl := nutrition.NewController(d.api, d.session, d.storage, d.nav, h.inflight, d.clientID)
	if err := ctrl.Submit(r.Context(), form); err != nil {
		var verr *nutrition.ValidationError
		status := backendStatus(err)
		switch {
		case errors.As(err, &verr):
			status = http.StatusBadRequest
		case errors.Is(err, nutrition.ErrSubmissionInProgress):
			status = http.StatusConflict
		}
		Error(w, status, nutrition.UserMessage(err))
		return
	}
	h.answerNavigation(w, d.nav)
}

// Tweak revises the stored plan and returns it rendered.
func (h *Handler) Tweak(w http.ResponseWriter, r *http.Request) {
	var req tweakRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := h.deps(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load client state")
		return
	}

	ctrl := dashboard.NewController(d.api, d.auth, d.storage, h.inflight, d.clientID)
	html, err := ctrl.Tweak(r.Context(), req.Instructions)
	if err != nil {
		switch {
		case errors.Is(err, dashboard.ErrNotAuthenticated):
			JSON(w, http.StatusUnauthorized, map[string]string{
				"error":    dashboard.UserMessage(err),
				"redirect": nav.PageLogin.Path(),
			})
		case errors.Is(err, dashboard.ErrEmptyInstructions):
			Error(w, http.StatusBadRequest, dashboard.UserMessage(err))
		case errors.Is(err, dashboard.ErrTweakInProgress):
			Error(w, http.StatusConflict, dashboard.UserMessage(err))
		default:
			Error(w, backendStatus(err), dashboard.UserMessage(err))
		}
		return
	}
	JSON(w, http.StatusOK, map[string]string{"html": string(html)})
}

// backendStatus is 502 for failures of the remote API and 500 otherwise.
func backendStatus(err error) int {
	var netErr *backend.NetworkError
	var appErr *backend.ApplicationError
	if backend.StatusOf(err) != 0 || errors.As(err, &netErr) || errors.As(err, &appErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) answerNavigation(w http.ResponseWriter, rec *nav.Recorder) {
	if target, ok := rec.Target(); ok {
		redirectTo(w, target)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

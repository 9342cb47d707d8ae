package api

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/ashureev/nutriplan/internal/dashboard"
	"github.com/ashureev/nutriplan/internal/nav"
)

// PageData is passed to every page template.
type PageData struct {
	LoggedIn  bool
	Username  string
	Error     string
	Dashboard *dashboard.View
}

func (h *Handler) render(w http.ResponseWriter, page nav.Page, data PageData) {
	var buf bytes.Buffer
	if err := h.pages.Render(&buf, string(page), data); err != nil {
		slog.Error("Failed to render page", "page", page, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, page nav.Page) {
	d, err := h.deps(r.Context())
	if err != nil {
		slog.Error("Failed to load client state", "error", err)
		http.Error(w, "failed to load client state", http.StatusInternalServerError)
		return
	}
	h.render(w, page, PageData{
		LoggedIn: d.auth.IsLoggedIn(r.Context()),
		Username: d.session.Username(),
	})
}

// IndexPage serves the meal-plan form.
func (h *Handler) IndexPage(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, nav.PageIndex)
}

// LoginPage serves the login and registration forms.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, nav.PageLogin)
}

// ChatPage serves the chat page. The conversation itself runs over /ws/chat.
func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, nav.PageChat)
}

// DashboardPage loads the profile and plan of the logged-in user.
func (h *Handler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps(r.Context())
	if err != nil {
		slog.Error("Failed to load client state", "error", err)
		http.Error(w, "failed to load client state", http.StatusInternalServerError)
		return
	}

	ctrl := dashboard.NewController(d.api, d.auth, d.storage, h.inflight, d.clientID)
	view, err := ctrl.Load(r.Context())
	if target, ok := d.nav.Target(); ok {
		http.Redirect(w, r, target.Path(), http.StatusSeeOther)
		return
	}

	data := PageData{
		LoggedIn:  d.auth.IsLoggedIn(r.Context()),
		Username:  d.session.Username(),
		Dashboard: view,
	}
	if err != nil {
		slog.Warn("Dashboard load failed", "client_id", d.clientID, "error", err)
		data.Error = dashboard.UserMessage(err)
	}
	h.render(w, nav.PageDashboard, data)
}

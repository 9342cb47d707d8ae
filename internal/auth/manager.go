package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/nutriplan/internal/backend"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/nav"
)

// AuthError is returned when the backend rejects a login or registration.
type AuthError struct {
	Message string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func newAuthError(fallback string, err error) *AuthError {
	ae := &AuthError{Message: fallback, Err: err}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		ae.Message = apiErr.Message
		ae.Status = apiErr.Status
	}
	return ae
}

// Manager implements login, registration and the login gate for one client.
type Manager struct {
	api     *backend.Client
	session *Session
	nav     nav.Navigator
}

// NewManager creates a Manager.
func NewManager(api *backend.Client, session *Session, navigator nav.Navigator) *Manager {
	return &Manager{api: api, session: session, nav: navigator}
}

// Session returns the managed session.
func (m *Manager) Session() *Session {
	return m.session
}

// Login exchanges credentials for a token, persists it and navigates to the dashboard.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return &AuthError{Message: "Username and password are required"}
	}

	token, err := m.api.Token(ctx, username, password)
	if err != nil {
		slog.Warn("Login failed", "username", username, "error", err)
		return newAuthError("Login failed", err)
	}

	if err := m.session.Set(ctx, token, username); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	if claims, err := ParseClaims(token); err == nil {
		slog.Info("Logged in", "username", username, "expires_at", claims.ExpiresAt)
	} else {
		slog.Info("Logged in", "username", username)
	}

	m.nav.Navigate(nav.PageDashboard)
	return nil
}

// Register creates the user on the backend. It does not log in.
func (m *Manager) Register(ctx context.Context, reg domain.Registration) error {
	reg.Username = strings.TrimSpace(reg.Username)
	if reg.Username == "" || reg.Password == "" {
		return &AuthError{Message: "Username and password are required"}
	}

	if _, err := m.api.Register(ctx, reg); err != nil {
		slog.Warn("Registration failed", "username", reg.Username, "error", err)
		return newAuthError("Registration failed", err)
	}
	slog.Info("Registered user", "username", reg.Username)
	return nil
}

// IsLoggedIn reports whether a token is cached or present in storage.
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	return m.session.hasToken(ctx)
}

// Logout clears the session and navigates to the login page.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.session.Clear(ctx); err != nil {
		return err
	}
	m.nav.Navigate(nav.PageLogin)
	return nil
}

// RedirectToLogin sends an anonymous client to the login page unless it is
// already there. It reports whether a navigation happened.
func (m *Manager) RedirectToLogin(ctx context.Context, current nav.Page) bool {
	if m.IsLoggedIn(ctx) || current == nav.PageLogin {
		return false
	}
	m.nav.Navigate(nav.PageLogin)
	return true
}

// Package auth holds the client's login session and the operations that change it.
package auth

import (
	"context"
	"fmt"

	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/store"
)

// Session caches the bearer token and username of one client and mirrors
// them to its Storage. A non-empty token means the client is logged in.
type Session struct {
	storage  store.Storage
	token    string
	username string
}

// NewSession rehydrates a Session from storage.
func NewSession(ctx context.Context, storage store.Storage) (*Session, error) {
	s := &Session{storage: storage}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) reload(ctx context.Context) error {
	token, _, err := s.storage.GetItem(ctx, domain.KeyToken)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	username, _, err := s.storage.GetItem(ctx, domain.KeyUsername)
	if err != nil {
		return fmt.Errorf("load username: %w", err)
	}
	s.token, s.username = token, username
	return nil
}

// Token implements backend.TokenSource.
func (s *Session) Token() string {
	return s.token
}

// Username returns the cached username.
func (s *Session) Username() string {
	return s.username
}

// Set caches and persists token and username.
func (s *Session) Set(ctx context.Context, token, username string) error {
	if err := s.storage.SetItem(ctx, domain.KeyToken, token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	if err := s.storage.SetItem(ctx, domain.KeyUsername, username); err != nil {
		return fmt.Errorf("persist username: %w", err)
	}
	s.token, s.username = token, username
	return nil
}

// Clear drops the cached and persisted token and username.
func (s *Session) Clear(ctx context.Context) error {
	s.token, s.username = "", ""
	if err := s.storage.RemoveItem(ctx, domain.KeyToken); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	if err := s.storage.RemoveItem(ctx, domain.KeyUsername); err != nil {
		return fmt.Errorf("remove username: %w", err)
	}
	return nil
}

// hasToken reports whether a token is cached, falling back to storage.
func (s *Session) hasToken(ctx context.Context) bool {
	if s.token != "" {
		return true
	}
	token, ok, err := s.storage.GetItem(ctx, domain.KeyToken)
	if err != nil || !ok || token == "" {
		return false
	}
	s.token = token
	return true
}

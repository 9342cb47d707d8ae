// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/nutriplan/internal/domain"
)

// Repository defines the interface for persisting client identities and
// their key/value storage.
type Repository interface {
	// GetClient retrieves a client by ID. It returns nil, nil when the client does not exist.
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)

	// UpsertClient creates or updates a client record.
	UpsertClient(ctx context.Context, client *domain.Client) error

	// UpdateLastSeen updates the last_seen_at timestamp for a client.
	UpdateLastSeen(ctx context.Context, clientID string, lastSeen time.Time) error

	// GetItem returns the stored value for key and whether it exists.
	GetItem(ctx context.Context, clientID, key string) (string, bool, error)

	// SetItem stores value under key, overwriting any previous value.
	SetItem(ctx context.Context, clientID, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, clientID, key string) error

	// GetExpiredClients retrieves clients idle for longer than ttl.
	GetExpiredClients(ctx context.Context, ttl time.Duration) ([]*domain.Client, error)

	// DeleteClient removes a client and everything it stored.
	DeleteClient(ctx context.Context, clientID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Storage is the key/value view a single client has of its own state.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// ClientStorage scopes a Repository to one client.
type ClientStorage struct {
	repo     Repository
	clientID string
}

// ForClient returns the Storage of clientID.
func ForClient(repo Repository, clientID string) *ClientStorage {
	return &ClientStorage{repo: repo, clientID: clientID}
}

// GetItem implements Storage.
func (s *ClientStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	return s.repo.GetItem(ctx, s.clientID, key)
}

// SetItem implements Storage.
func (s *ClientStorage) SetItem(ctx context.Context, key, value string) error {
	return s.repo.SetItem(ctx, s.clientID, key, value)
}

// RemoveItem implements Storage.
func (s *ClientStorage) RemoveItem(ctx context.Context, key string) error {
	return s.repo.RemoveItem(ctx, s.clientID, key)
}

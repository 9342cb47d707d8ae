package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_last_seen ON clients(last_seen_at);

	CREATE TABLE IF NOT EXISTS client_items (
		client_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (client_id, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID.
func (s *SQLiteStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	query := `SELECT client_id, last_seen_at, created_at, updated_at FROM clients WHERE client_id = ?`

	var client domain.Client
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(&client.ClientID, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client row: %w", err)
	}

	client.LastSeenAt = time.Unix(lastSeen, 0)
	client.CreatedAt = time.Unix(createdAt, 0)
	client.UpdatedAt = time.Unix(updatedAt, 0)
	return &client, nil
}

// UpsertClient creates or updates a client record.
func (s *SQLiteStore) UpsertClient(ctx context.Context, client *domain.Client) error {
	query := `
	INSERT INTO clients (client_id, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(client_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.withRetry(ctx, "upsert client", func() error {
		_, err := s.db.ExecContext(ctx, query,
			client.ClientID, client.LastSeenAt.Unix(),
			client.CreatedAt.Unix(), client.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a client.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, clientID string, lastSeen time.Time) error {
	query := `UPDATE clients SET last_seen_at = ?, updated_at = ? WHERE client_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), clientID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "client_id", clientID)
	}
	return nil
}

// GetItem returns the stored value for key.
func (s *SQLiteStore) GetItem(ctx context.Context, clientID, key string) (string, bool, error) {
	query := `SELECT value FROM client_items WHERE client_id = ? AND key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, clientID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem stores value under key.
func (s *SQLiteStore) SetItem(ctx context.Context, clientID, key, value string) error {
	query := `
	INSERT INTO client_items (client_id, key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(client_id, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.withRetry(ctx, "set item "+key, func() error {
		_, err := s.db.ExecContext(ctx, query, clientID, key, value, time.Now().Unix())
		return err
	})
}

// RemoveItem deletes key.
func (s *SQLiteStore) RemoveItem(ctx context.Context, clientID, key string) error {
	query := `DELETE FROM client_items WHERE client_id = ? AND key = ?`
	return s.withRetry(ctx, "remove item "+key, func() error {
		_, err := s.db.ExecContext(ctx, query, clientID, key)
		return err
	})
}

// GetExpiredClients retrieves clients idle for longer than ttl.
func (s *SQLiteStore) GetExpiredClients(ctx context.Context, ttl time.Duration) ([]*domain.Client, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `SELECT client_id, last_seen_at, created_at, updated_at FROM clients WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired clients: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired clients rows", "error", closeErr)
		}
	}()

	var clients []*domain.Client
	for rows.Next() {
		var client domain.Client
		var lastSeen, createdAt, updatedAt int64
		if err := rows.Scan(&client.ClientID, &lastSeen, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expired client row: %w", err)
		}
		client.LastSeenAt = time.Unix(lastSeen, 0)
		client.CreatedAt = time.Unix(createdAt, 0)
		client.UpdatedAt = time.Unix(updatedAt, 0)
		clients = append(clients, &client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired clients: %w", err)
	}
	return clients, nil
}

// DeleteClient removes a client and its items in one transaction.
func (s *SQLiteStore) DeleteClient(ctx context.Context, clientID string) error {
	return s.withRetry(ctx, "delete client", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_items WHERE client_id = ?`, clientID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// withRetry runs op, retrying SQLITE_BUSY and "database is locked" failures
// with exponential backoff.
func (s *SQLiteStore) withRetry(ctx context.Context, what string, op func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("SQLite busy, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

package store

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// CleanupCallback is called when a client is removed by the TTL worker.
type CleanupCallback func(clientID string)

// StartTTLWorker runs a background goroutine that periodically deletes
// clients idle for longer than ttl, together with their stored token,
// username and meal plan.
func StartTTLWorker(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				CleanupExpiredClients(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// CleanupExpiredClients runs a single sweep and returns the number of clients removed.
func CleanupExpiredClients(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := repo.GetExpiredClients(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to get expired clients", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("TTL worker found expired clients", "count", len(expired))

	cleaned := 0
	for _, client := range expired {
		if onCleanup != nil {
			onCleanup(client.ClientID)
		}
		if err := repo.DeleteClient(ctx, client.ClientID); err != nil {
			slog.Warn("TTL worker failed to delete client", "error", err, "client_id", client.ClientID)
			continue
		}
		cleaned++
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}

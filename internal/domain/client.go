package domain

import "time"

// Keys of the per-client storage, mirroring what a browser keeps in local storage.
const (
	KeyToken    = "token"
	KeyUsername = "username"
	KeyMealPlan = "mealPlan"
)

// Client is an anonymous browser identity that owns a storage namespace.
type Client struct {
	ClientID   string    `json:"client_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Expired reports whether the client has been idle longer than ttl.
func (c *Client) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.LastSeenAt) > ttl
}

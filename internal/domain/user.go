// Package domain contains core domain types for the nutriplan client.
package domain

import "strings"

// UserProfile is the profile returned by the backend for the logged-in user.
type UserProfile struct {
	Username  string  `json:"username"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Birthday  string  `json:"birthday,omitempty"`
	Age       int     `json:"age"`
	Height    float64 `json:"height"`
	Weight    float64 `json:"weight"`
	Goal      string  `json:"goal"`
}

// DisplayName returns "First Last", falling back to the username.
func (p *UserProfile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Username
	}
	return name
}

// Registration is the body posted to the backend's register endpoint.
type Registration struct {
	UserProfile
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

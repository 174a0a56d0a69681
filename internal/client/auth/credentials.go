package auth

import (
	"time"

	"smartchat/internal/models"
)

// Credentials is the persisted client login state: token, user record, and
// absolute expiry. Expiry is a pure wall-clock check so it can be evaluated
// without touching storage.
type Credentials struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Valid reports whether the credentials are usable at the given instant.
func (c Credentials) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

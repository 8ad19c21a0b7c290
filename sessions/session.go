// Package sessions keeps login state on the server. The browser only holds a
// signed cookie naming the session; identity and role live in a Store.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session does not exist or has expired
var ErrNotFound = errors.New("session not found")

// Data is the identity carried by a session
type Data struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Session is one login of one user
type Session struct {
	ID        string    `json:"id"`
	Data      Data      `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, s *Session) error
	// Load returns ErrNotFound when id is unknown
	Load(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, expiresAt time.Time) error
	Destroy(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

package session

import (
	"context"
	"time"
)

// Session is the persisted record of an authenticated session. A session is
// never deleted: it becomes inactive either by explicit logout or by passing
// its expiry. Logout is terminal; LoggedOutAt is never cleared.
type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LoggedOutAt *time.Time `json:"logged_out_at,omitempty"`
	UserAgent   string     `json:"user_agent,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
}

// IsActiveAt reports whether the session is live at the given instant.
func (s *Session) IsActiveAt(now time.Time) bool {
	return s.LoggedOutAt == nil && now.Before(s.ExpiresAt)
}

// Store is the persistence contract for sessions. Queries are explicit per
// access path; there is no delete operation by design.
type Store interface {
	// Insert persists a new session record.
	Insert(ctx context.Context, s *Session) error

	// Get returns the session with the given id regardless of liveness, or a
	// not-found error when no record exists.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// MarkLoggedOut stamps LoggedOutAt on the session if it is not already
	// set, and returns the resulting record. A second logout is a no-op that
	// returns the record with its original timestamp.
	MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) (*Session, error)

	// ListByUser returns all session records for a user.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
}

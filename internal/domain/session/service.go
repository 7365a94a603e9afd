package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/commerce-core/internal/apperr"
)

// DefaultTTL is used when the service is constructed with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

// Service owns the session activity rule so every storage backend shares one
// definition of liveness.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a session service with the given store and session TTL.
func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// CreateSession issues a new session for the user.
func (s *Service) CreateSession(ctx context.Context, userID, userAgent, ipAddress string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}

	if err := s.store.Insert(ctx, sess); err != nil {
		return nil, depErr(err)
	}
	return sess, nil
}

// depErr classifies an unrecognized error as a dependency failure without
// leaking the store's details to callers.
func depErr(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
}

// GetActiveSession returns the session only while it is live. An expired or
// logged-out session is reported as not found, identically to a session that
// never existed, so callers cannot probe session lifetimes.
func (s *Service) GetActiveSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, depErr(err)
	}
	if !sess.IsActiveAt(s.now()) {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	return sess, nil
}

// LogoutSession terminates the session. Logging out an already logged-out
// session is a no-op returning the record with its original timestamp.
func (s *Service) LogoutSession(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.store.MarkLoggedOut(ctx, sessionID, s.now())
	if err != nil {
		return nil, depErr(err)
	}
	return sess, nil
}

// GetUserActiveSessions returns all currently live sessions for a user.
func (s *Service) GetUserActiveSessions(ctx context.Context, userID string) ([]*Session, error) {
	all, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, depErr(err)
	}

	now := s.now()
	active := make([]*Session, 0, len(all))
	for _, sess := range all {
		if sess.IsActiveAt(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

// IsSessionActive reports whether the session is live. It is a pure read.
func (s *Service) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.GetActiveSession(ctx, sessionID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

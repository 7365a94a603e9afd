package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/session"
)

// MockSessionStore is an in-memory implementation of session.Store for
// testing.
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	// For tracking calls and injecting failures in tests
	InsertCalls      []string
	InsertErr        error
	GetErr           error
	MarkLoggedOutErr error
	ListErr          error
}

// NewMockSessionStore creates a new MockSessionStore.
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]*session.Session),
	}
}

func (m *MockSessionStore) Insert(ctx context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls = append(m.InsertCalls, s.ID)
	if m.InsertErr != nil {
		return m.InsertErr
	}

	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	copied := *s
	return &copied, nil
}

func (m *MockSessionStore) MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarkLoggedOutErr != nil {
		return nil, m.MarkLoggedOutErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	if s.LoggedOutAt == nil {
		stamped := at
		s.LoggedOutAt = &stamped
	}
	copied := *s
	return &copied, nil
}

func (m *MockSessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*session.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

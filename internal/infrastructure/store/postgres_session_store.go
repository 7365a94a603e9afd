package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/session"
)

// PostgresSessionStore implements session.Store on PostgreSQL. Sessions are
// never deleted; there is deliberately no delete statement here.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

func (ps *PostgresSessionStore) Insert(ctx context.Context, s *session.Session) error {
	_, err := ps.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, logged_out_at, user_agent, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt, s.LoggedOutAt, s.UserAgent, s.IPAddress,
	)
	return err
}

func (ps *PostgresSessionStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	row := ps.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, logged_out_at, user_agent, ip_address
		 FROM sessions WHERE id = $1`,
		sessionID,
	)
	return scanSession(row)
}

// MarkLoggedOut stamps logged_out_at only when it is still null. A repeat
// logout leaves the original timestamp in place and returns the record
// unchanged.
func (ps *PostgresSessionStore) MarkLoggedOut(ctx context.Context, sessionID string, at time.Time) (*session.Session, error) {
	_, err := ps.db.ExecContext(ctx,
		`UPDATE sessions SET logged_out_at = $2 WHERE id = $1 AND logged_out_at IS NULL`,
		sessionID, at,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependency, "service unavailable, try again", err)
	}
	return ps.Get(ctx, sessionID)
}

func (ps *PostgresSessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := ps.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, expires_at, logged_out_at, user_agent, ip_address
		 FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var s session.Session
	var loggedOutAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &loggedOutAt, &s.UserAgent, &s.IPAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "session not found")
	}
	if err != nil {
		return nil, err
	}
	if loggedOutAt.Valid {
		t := loggedOutAt.Time
		s.LoggedOutAt = &t
	}
	return &s, nil
}

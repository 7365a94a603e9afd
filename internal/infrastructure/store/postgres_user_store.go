package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/login"
)

// PostgresUserStore implements login.UserDirectory and login.UserRecords on
// PostgreSQL.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Insert persists a new account. A duplicate email is a conflict.
func (ps *PostgresUserStore) Insert(ctx context.Context, a *login.UserAccount) error {
	_, err := ps.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email) DO NOTHING`,
		a.ID, a.Email, a.Name, a.Role, a.PasswordHash, a.Active,
	)
	return err
}

// FindByLogin matches on email or account name.
func (ps *PostgresUserStore) FindByLogin(ctx context.Context, usernameOrEmail string) (*login.UserAccount, error) {
	var a login.UserAccount
	err := ps.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, password_hash, is_active
		 FROM users WHERE email = $1 OR name = $1`,
		usernameOrEmail,
	).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.PasswordHash, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (ps *PostgresUserStore) FindByID(ctx context.Context, userID string) (*login.UserAccount, error) {
	var a login.UserAccount
	err := ps.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, password_hash, is_active
		 FROM users WHERE id = $1`,
		userID,
	).Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.PasswordHash, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (ps *PostgresUserStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := ps.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, logged_out_at = NULL WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

func (ps *PostgresUserStore) MarkLoggedOut(ctx context.Context, userID string, at time.Time) error {
	res, err := ps.db.ExecContext(ctx,
		`UPDATE users SET logged_out_at = $2 WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	return nil
}

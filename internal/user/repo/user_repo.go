package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// ErrNotFound is returned when no live (non soft-deleted) row matches.
var ErrNotFound = errors.New("user not found")

// UserRepo provides credential lookups on the users table using sqlx.
// Every query is scoped to rows with deleted_at IS NULL.
type UserRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewUserRepo(db *sqlx.DB, timeout time.Duration) *UserRepo {
	return &UserRepo{db: db, timeout: timeout}
}

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id SERIAL PRIMARY KEY,
  first_name VARCHAR(50) NOT NULL,
  last_name VARCHAR(50) NOT NULL,
  email VARCHAR(100) NOT NULL UNIQUE,
  password VARCHAR(255) NOT NULL,
  role VARCHAR(20) NOT NULL CHECK (role IN ('Administrador', 'Cliente')),
  created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
  deleted_at TIMESTAMPTZ NULL
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// SeedAdmin inserts the default administrator unless the email is already taken.
func (r *UserRepo) SeedAdmin(ctx context.Context, email, passwordHash string) error {
	const q = `INSERT INTO users (first_name, last_name, email, password, role)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (email) DO NOTHING`
	return database.Do(ctx, r.timeout, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, q, "Admin", "StreamFlow", email, passwordHash, auth.RoleAdministrator)
		return err
	})
}

const selectUser = `SELECT id, first_name, last_name, email, password, role, created_at, deleted_at FROM users`

// FindByEmail returns the live user with the exact email, or ErrNotFound.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, selectUser+` WHERE email = $1 AND deleted_at IS NULL`, email)
}

// FindByID returns the live user with the id, or ErrNotFound.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.get(ctx, selectUser+` WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *UserRepo) get(ctx context.Context, q string, arg any) (*entity.User, error) {
	var row entity.User
	err := database.Do(ctx, r.timeout, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &row, q, arg)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// UpdatePassword replaces the stored hash of a live user; ErrNotFound if no row was updated.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password = $2 WHERE id = $1 AND deleted_at IS NULL`
	var affected int64
	err := database.Do(ctx, r.timeout, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, q, id, hash)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

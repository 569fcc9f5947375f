package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// NOTE: expected table schema (Postgres):
// CREATE TABLE token_blacklist (
//   id BIGSERIAL PRIMARY KEY,
//   jti VARCHAR(255) NOT NULL UNIQUE,
//   user_id BIGINT NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
// );

var ErrNotFound = errors.New("revocation entry not found")

type RevocationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewRevocationRepo(db *sqlx.DB, timeout time.Duration) *RevocationRepo {
	return &RevocationRepo{db: db, timeout: timeout}
}

// EnsureTable creates the token_blacklist table if not exists (idempotent).
func (r *RevocationRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS token_blacklist (
  id BIGSERIAL PRIMARY KEY,
  jti VARCHAR(255) NOT NULL UNIQUE,
  user_id BIGINT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_token_blacklist_user_id ON token_blacklist(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// InsertIfAbsent records the jti. A jti that is already present is not an error:
// the unique constraint makes concurrent duplicate inserts collapse to one row.
func (r *RevocationRepo) InsertIfAbsent(ctx context.Context, jti string, userID int64) error {
	const q = `INSERT INTO token_blacklist (jti, user_id) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`
	err := database.Do(ctx, r.timeout, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, q, jti, userID)
		return err
	})
	if database.IsUniqueViolation(err) {
		return nil
	}
	return err
}

// Exists reports whether the jti has been revoked.
func (r *RevocationRepo) Exists(ctx context.Context, jti string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`
	var exists bool
	err := database.Do(ctx, r.timeout, func(ctx context.Context) error {
		return r.db.QueryRowxContext(ctx, q, jti).Scan(&exists)
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Get returns the entry for the jti, or ErrNotFound.
func (r *RevocationRepo) Get(ctx context.Context, jti string) (*entity.Entry, error) {
	const q = `SELECT id, jti, user_id, created_at FROM token_blacklist WHERE jti = $1`
	var e entity.Entry
	err := database.Do(ctx, r.timeout, func(ctx context.Context) error {
		return r.db.GetContext(ctx, &e, q, jti)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

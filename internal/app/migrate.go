package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	revocationrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/revocation/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// Default administrator created on first start.
const (
	DefaultAdminEmail    = "admin@streamflow.com"
	DefaultAdminPassword = "admin123"
)

// MigrateOptions controls Migrate.
type MigrateOptions struct {
	SeedAdmin bool
	Hasher    user.PasswordHasher
	// Timeout bounds each store attempt; zero falls back to DefaultStoreTimeout.
	Timeout   time.Duration
}

// DefaultStoreTimeout bounds store attempts when MigrateOptions.Timeout is unset.
const DefaultStoreTimeout = 3 * time.Second

// Migrate creates the users and token_blacklist tables and optionally seeds the
// default administrator. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sqlx.DB, opts MigrateOptions, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	users := userrepo.NewUserRepo(db, timeout)
	if err := users.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure users table: %w", err)
	}
	if err := revocationrepo.NewRevocationRepo(db, timeout).EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure token_blacklist table: %w", err)
	}
	if !opts.SeedAdmin {
		return nil
	}

	hasher := opts.Hasher
	if hasher == nil {
		hasher = user.BcryptHasher{}
	}
	hash, err := hasher.Hash(DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := users.SeedAdmin(ctx, DefaultAdminEmail, hash); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Infow("default administrator ensured", "email", DefaultAdminEmail)
	return nil
}

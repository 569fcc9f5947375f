package ports

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// CredentialStore is the external row store of user credentials.
// Lookups only ever see rows that are not soft-deleted, and report a missing
// row with repo.ErrNotFound from the user repo package.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// RevocationLedger records and answers which session tokens are dead.
type RevocationLedger interface {
	Revoke(ctx context.Context, jti string, subjectID int64) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

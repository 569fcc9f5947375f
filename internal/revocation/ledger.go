package revocation

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// Store is the durable revocation list.
type Store interface {
	InsertIfAbsent(ctx context.Context, jti string, subjectID int64) error
	Exists(ctx context.Context, jti string) (bool, error)
}

// Cache is an optional fast path in front of the Store.
type Cache interface {
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Ledger tracks which session tokens are dead. The Store is the source of truth;
// the Cache only short-circuits lookups for jtis already known to be revoked.
type Ledger struct {
	store    Store
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.SugaredLogger
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithCache puts cache in front of the store; entries live for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(l *Ledger) {
		l.cache = cache
		l.cacheTTL = ttl
	}
}

func NewLedger(store Store, logger *zap.SugaredLogger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	l := &Ledger{store: store, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Revoke permanently revokes jti. Revoking an already revoked jti succeeds.
func (l *Ledger) Revoke(ctx context.Context, jti string, subjectID int64) error {
	const op = "revocation.Revoke"
	if jti == "" {
		return auth.E(op, auth.KindInvalidToken, errors.New("empty jti"))
	}
	if err := l.store.InsertIfAbsent(ctx, jti, subjectID); err != nil {
		return auth.E(op, auth.KindStoreUnavailable, err)
	}
	if l.cache != nil {
		if err := l.cache.MarkRevoked(ctx, jti, l.cacheTTL); err != nil {
			l.logger.Warnw("revocation cache write failed", "jti", jti, "err", err)
		}
	}
	return nil
}

// IsRevoked reports whether jti has been revoked. When the store cannot answer
// it fails closed: the result is true together with a StoreUnavailable error.
func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "revocation.IsRevoked"
	if l.cache != nil {
		hit, err := l.cache.IsRevoked(ctx, jti)
		switch {
		case err != nil:
			l.logger.Warnw("revocation cache read failed", "jti", jti, "err", err)
		case hit:
			return true, nil
		}
	}
	revoked, err := l.store.Exists(ctx, jti)
	if err != nil {
		return true, auth.E(op, auth.KindStoreUnavailable, err)
	}
	if revoked && l.cache != nil {
		if err := l.cache.MarkRevoked(ctx, jti, l.cacheTTL); err != nil {
			l.logger.Debugw("revocation cache backfill failed", "jti", jti, "err", err)
		}
	}
	return revoked, nil
}

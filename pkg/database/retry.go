package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// MaxAttempts bounds how many times Do runs an operation that keeps failing transiently.
const MaxAttempts = 3

// Do runs op with a per-attempt timeout and retries transient failures with
// exponential backoff. Non-transient errors are returned immediately.
func Do(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, MaxAttempts-1), ctx)

	return backoff.Retry(func() error {
		attemptCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// IsTransient reports whether err is worth retrying: lost connections,
// timeouts, deadlocks and serialization failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pgerrcode.IsConnectionException(code) ||
			pgerrcode.IsInsufficientResources(code) ||
			pgerrcode.IsOperatorIntervention(code) ||
			code == pgerrcode.SerializationFailure ||
			code == pgerrcode.DeadlockDetected
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err is a postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}

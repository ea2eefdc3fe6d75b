package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/gita-reflect/internal/shared"
	"github.com/cenkalti/backoff/v5"
)

const (
	writeMaxTries  = 3
	writeBaseDelay = 50 * time.Millisecond
)

// withRetry runs op, retrying SQLITE_BUSY / locked errors with exponential
// backoff. Other errors are returned on the first attempt. Unclassified
// failures surface as StorageUnavailable.
func withRetry[T any](ctx context.Context, opName string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = writeBaseDelay

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if shared.IsSQLiteConflictError(err) {
			slog.Debug("Database locked, retrying", "op", opName, "attempt", attempt, "error", err)
			return v, err
		}
		return v, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(writeMaxTries))
	if err != nil {
		return res, shared.StorageUnavailable(err)
	}
	return res, nil
}

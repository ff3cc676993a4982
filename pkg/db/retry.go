package db

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/cartengine/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const defaultRetryBaseDelay = 25 * time.Millisecond

// RetryPolicy bounds how often a conflicting unit of work is replayed.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// OnRetry is invoked before each replay with the conflict that triggered it.
	OnRetry func(attempt int, err error)
}

// RetryOnConflict runs fn and replays it with exponential backoff while it fails
// with a storage conflict. Any other error is returned immediately. Once the
// bound is exhausted the conflict escalates to CodeDependency.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	base := policy.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !IsConflict(err) {
			return err
		}
		attempt++
		if policy.OnRetry != nil && attempt <= maxRetries {
			policy.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err != nil && IsConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage conflict persisted after retries").
			WithDetails(map[string]any{"attempts": attempt})
	}
	return err
}

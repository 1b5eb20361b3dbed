package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"binary-comp-engine/internal/domain"
)

// DefaultMaxRetries bounds RetryOnConflict.
const DefaultMaxRetries = 8

// OnRetry is called before every retry with the conflict that caused it.
type OnRetry func(err error, wait time.Duration)

// RetryOnConflict runs op until it succeeds, fails with an error other than
// domain.ErrConcurrentModification, or retries are exhausted. op must re-read
// everything it writes.
func RetryOnConflict(ctx context.Context, maxRetries uint64, notify OnRetry, op func() error) error {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConcurrentModification) {
			return err
		}
		return backoff.Permanent(err)
	}

	var n backoff.Notify
	if notify != nil {
		n = backoff.Notify(notify)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx), n)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// InTxRetry runs fn in a transaction on store, retrying the whole
// transaction on optimistic-lock conflicts.
func InTxRetry(ctx context.Context, store Store, notify OnRetry, fn func(tx Tx) error) error {
	return RetryOnConflict(ctx, DefaultMaxRetries, notify, func() error {
		return store.InTx(ctx, fn)
	})
}

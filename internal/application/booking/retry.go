package booking

import (
	"context"
	"errors"
	"time"

	"salesquota-backend/internal/domain"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retries of reserve and release calls that fail on storage faults.
type RetryPolicy struct {
	MaxRetries uint64
	Initial    time.Duration
}

const (
	defaultInitialBackoff = 50 * time.Millisecond
	maxBackoffInterval    = time.Second
)

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialBackoff
	}
	b.MaxInterval = maxBackoffInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
}

// retry runs op until it succeeds, fails with a non-storage error, or the policy gives up.
func (p RetryPolicy) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrStorageUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
}

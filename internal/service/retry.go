package service

import (
	"context"
	"errors"
	"time"

	"storefront-engine/internal/repository"
)

// RetryPolicy bounds the re-read and re-apply loop taken when a conditional update loses a race.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxRetries: 5, Backoff: 10 * time.Millisecond}

// run calls op until it returns something other than repository.ErrConflict.
// op must re-read its state on every call.
func (p RetryPolicy) run(ctx context.Context, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if attempt >= p.MaxRetries {
			return wrapError(KindConflict, err, "too much concurrent activity, please retry")
		}
		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff * time.Duration(attempt+1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}

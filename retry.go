package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withStoreRetry runs fn against a credential or profile store. Sentinel
// store errors and context errors return immediately; anything else is
// retried at most Config.Store.MaxRetries times and then surfaces as
// ErrTransientStore.
func (e *Engine) withStoreRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.config.Store.RetryBackoff
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = time.Millisecond
	}
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if isPermanentStoreError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.config.Store.MaxRetries)), ctx),
		func(err error, wait time.Duration) {
			e.metricInc(MetricStoreRetry)
			e.logger.Debug().Str("op", op).Dur("wait", wait).Err(err).Msg("retrying store call")
		})
	if err == nil {
		return nil
	}
	if isPermanentStoreError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}

	e.metricInc(MetricTransientStoreError)
	e.logger.Warn().Str("op", op).Int("attempts", attempts).Err(err).Msg("store call failed")
	return fmt.Errorf("%w: %s: %v", ErrTransientStore, op, err)
}

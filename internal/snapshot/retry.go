package snapshot

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a fixed-delay, bounded retry: one initial attempt plus at
// most MaxRetries more, spaced by Delay. Attempts never overlap.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration

	// Timer drives the inter-attempt wait. Nil uses a real timer; tests
	// inject a fake to avoid sleeping.
	Timer backoff.Timer
}

// Attempts is the maximum number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	return 1 + max(p.MaxRetries, 0)
}

// WorstCase bounds the time spent on one source when every attempt runs to
// its timeout: timeout*(1+retries) + delay*retries.
func (p RetryPolicy) WorstCase(perAttempt time.Duration) time.Duration {
	retries := time.Duration(max(p.MaxRetries, 0))
	return perAttempt*(1+retries) + p.Delay*retries
}

// Do calls op until it returns nil, returns a backoff.Permanent error, the
// retry budget runs out, or ctx ends. notify, if set, is called before each
// wait. It returns how many times op ran.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, notify func(err error, wait time.Duration)) (int, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(max(p.MaxRetries, 0))),
		ctx,
	)
	attempts := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		attempts++
		return op(attempts)
	}, b, notify, p.Timer)
	return attempts, err
}

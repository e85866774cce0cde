// Package retry implements bounded retries with exponential backoff.
//
// Delivery paths use Do to ride out transient upstream failures without
// hammering a struggling endpoint. Errors wrapped with Permanent mark
// outcomes that repeating cannot change, such as a rejected payload, and
// abort the loop immediately.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// PermanentError wraps an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. Do unwraps it on return.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs op up to attempts times, sleeping between tries with exponential
// backoff from base and 25% jitter. It returns nil on the first success,
// the unwrapped error as soon as op fails permanently, ctx.Err() if the
// context ends during a backoff sleep, and otherwise the last error once
// the attempts are spent. Attempts below 1 are treated as 1.
func Do(ctx context.Context, attempts int, base time.Duration, op func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoff(base, attempt-1)); err != nil {
				return err
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(lastErr, &pe) {
			return pe.Err
		}
	}
	return lastErr
}

// backoff returns the delay before retry number n (1-based): base doubled
// n-1 times, then jittered to between 75% and 125% of itself.
func backoff(base time.Duration, n int) time.Duration {
	delay := base << (n - 1)
	jitter := delay / 4
	return delay - jitter + randDuration(2*jitter+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// randDuration draws uniformly from [0, n) using crypto/rand.
func randDuration(n time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.BigEndian.Uint64(b[:]) >> 1
	return time.Duration(v % uint64(n))
}

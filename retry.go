package valclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	http "github.com/bogdanfinn/fhttp"
)

// maxAttempts bounds every logical gateway call, re-authentication included.
const maxAttempts = 5

// attemptFunc performs one attempt of a call; attempt is zero-based.
type attemptFunc func(ctx context.Context, attempt int) (*Payload, error)

// retryableError asks the retry loop for another attempt after delay.
type retryableError struct {
	err   error
	delay time.Duration
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// transientStatuses are retried with backoff.
var transientStatuses = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusGatewayTimeout:      true,
	524:                            true, // origin timeout behind the edge
}

// defaultBackoff waits 1, 3, 5, 7... seconds.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1+attempt*2) * time.Second
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retry runs fn until it returns anything other than a *retryableError, or
// until attempts are exhausted, in which case the last classified error is
// returned. It never returns a nil payload with a nil error on exhaustion.
func retry(ctx context.Context, attempts int, sleep func(context.Context, time.Duration) error, fn attemptFunc) (*Payload, error) {
	var lastErr error
	for attempt := range attempts {
		payload, err := fn(ctx, attempt)
		var re *retryableError
		if !errors.As(err, &re) {
			return payload, err
		}
		lastErr = re.err
		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, re.delay); err != nil {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no attempts made", ErrHTTP)
	}
	return nil, lastErr
}

// reauthorizer refreshes credentials and reports whether it succeeded.
type reauthorizer func(ctx context.Context) (bool, error)

// reauthOnce turns the first 400 response into one silent re-authentication
// followed by an immediate retry. Later 400s pass through unchanged.
func reauthOnce(reauth reauthorizer, fn attemptFunc) attemptFunc {
	used := false
	return func(ctx context.Context, attempt int) (*Payload, error) {
		payload, err := fn(ctx, attempt)

		var he *HTTPError
		if used || !errors.As(err, &he) || he.Status != http.StatusBadRequest {
			return payload, err
		}
		used = true

		ok, rerr := reauth(ctx)
		if rerr != nil {
			return nil, fmt.Errorf("reauthorize after %d: %w", he.Status, rerr)
		}
		if !ok {
			return nil, err
		}
		return nil, &retryableError{err: err}
	}
}

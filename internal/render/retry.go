package render

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// httpStatusError is implemented by provider and asset-store errors that carry
// an upstream status code. Classification keys off the code without this
// package knowing each client's error type.
type httpStatusError interface {
	HTTPStatus() int
}

// RetryPolicy retries a single outbound call with exponential backoff.
// It is stateless and reentrant; every call site gets its own schedule.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      zerolog.Logger
}

// DefaultRetryPolicy matches the observed behavior of the generation
// providers: three attempts with 2s/4s/8s pauses between them.
func DefaultRetryPolicy(logger zerolog.Logger) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Logger: logger}
}

// Retryable reports whether an error is transient: connection failures,
// timeouts, and upstream statuses that signal temporary unavailability.
// Everything else is terminal and surfaces immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.HTTPStatus() {
		case 408, 425, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// Do runs call under the policy. Terminal errors return immediately; a
// retryable error that survives every attempt is returned as-is, terminal to
// the caller. op names the call for logging only.
func (p RetryPolicy) Do(ctx context.Context, op string, call func(context.Context) error) error {
	_, err := Retry(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}

// Retry is the value-returning form of RetryPolicy.Do.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, call func(context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = p.BaseDelay * time.Duration(1<<maxAttempts)
	expo.MaxElapsedTime = 0

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := call(ctx)
		if err == nil {
			return v, nil
		}
		if !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		p.Logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("retry: transient failure")
		return v, err
	}

	sched := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(maxAttempts-1)), ctx)
	v, err := backoff.RetryWithData(operation, sched)
	if err != nil {
		p.Logger.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("retry: giving up")
	}
	return v, err
}

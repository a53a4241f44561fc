package render

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	status int
}

func (e statusErr) Error() string   { return fmt.Sprintf("upstream status %d", e.status) }
func (e statusErr) HTTPStatus() int { return e.status }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout", timeoutErr{}, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", &statusWrap{syscall.ECONNREFUSED}, true},
		{"503", statusErr{503}, true},
		{"429", statusErr{429}, true},
		{"400", statusErr{400}, false},
		{"401", statusErr{401}, false},
		{"plain", errors.New("invalid prompt"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

type statusWrap struct{ inner error }

func (w *statusWrap) Error() string { return "wrapped: " + w.inner.Error() }
func (w *statusWrap) Unwrap() error { return w.inner }

func TestRetryExhaustion(t *testing.T) {
	p := fastRetry()
	attempts := 0
	_, err := Retry(context.Background(), p, "always down", func(ctx context.Context) (string, error) {
		attempts++
		return "", statusErr{503}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "retryable failures run exactly MaxAttempts times")
	var se statusErr
	assert.True(t, errors.As(err, &se), "last error surfaces to the caller")
}

func TestRetryTerminalStopsImmediately(t *testing.T) {
	p := fastRetry()
	attempts := 0
	err := p.Do(context.Background(), "bad input", func(ctx context.Context) error {
		attempts++
		return statusErr{400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	p := fastRetry()
	attempts := 0
	v, err := Retry(context.Background(), p, "flaky", func(ctx context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, timeoutErr{}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, attempts)
}

func TestRetryBackoffDelaysGrow(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond, Logger: testLogger()}
	var stamps []time.Time
	_, err := Retry(context.Background(), p, "timed", func(ctx context.Context) (struct{}, error) {
		stamps = append(stamps, time.Now())
		return struct{}{}, statusErr{502}
	})
	require.Error(t, err)
	require.Len(t, stamps, 3)

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)
}

func TestRetryHonorsContextCancel(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Logger: testLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "cancelled mid-backoff", func(ctx context.Context) error {
			attempts++
			return statusErr{503}
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, attempts, "cancel during backoff prevents further attempts")
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

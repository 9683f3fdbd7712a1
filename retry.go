package formhydrate

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vfontjr/formhydrate/internal/backoff"
)

var defaultRetriableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryPolicy bounds the retry loop for one logical call. The zero value is
// not usable directly; DefaultRetryPolicy supplies the instance defaults and
// a per-call override replaces the whole policy.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt, so
	// total attempts = 1 + MaxRetries.
	MaxRetries int
	// BackoffBase is the unjittered delay before the first retry.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential growth.
	BackoffCap time.Duration
	// Jitter randomizes each delay into [delay/2, delay].
	Jitter bool
	// RetriableStatus is the set of HTTP statuses worth retrying. Statuses
	// outside the set are fatal.
	RetriableStatus map[int]bool
}

// DefaultRetryPolicy returns the instance default: 3 retries, 250ms base,
// 8s cap, jitter on, retriable statuses {429, 500, 502, 503, 504}.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BackoffBase:     250 * time.Millisecond,
		BackoffCap:      8 * time.Second,
		Jitter:          true,
		RetriableStatus: defaultRetriableStatus,
	}
}

// Retriable classifies err. Network failures and internal timeouts are
// retriable; HTTP errors are retriable only when their status is in the
// configured set; everything else (validation, shape, cancellation, circuit
// open) is fatal.
func (p RetryPolicy) Retriable(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}

	switch clientErr.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	case ErrorTypeHTTP:
		statuses := p.RetriableStatus
		if statuses == nil {
			statuses = defaultRetriableStatus
		}
		return statuses[clientErr.StatusCode]
	default:
		return false
	}
}

// delayFor computes the wait before the given retry (1-indexed). A
// server-supplied Retry-After on the failed response wins over backoff math.
func (p RetryPolicy) delayFor(err error, retry int) time.Duration {
	var clientErr *ClientError
	if errors.As(err, &clientErr) && clientErr.RetryAfter > 0 {
		return clientErr.RetryAfter
	}
	return backoff.Delay(retry, p.BackoffBase, p.BackoffCap, p.Jitter)
}

// runWithRetry drives op until success, a fatal error, or the attempt
// budget is spent. op receives the 0-indexed attempt number; the last error
// is surfaced verbatim once retries are exhausted. Cancellation during a
// backoff wait surfaces as a Canceled error.
func runWithRetry(ctx context.Context, policy RetryPolicy, onRetry func(retry int, delay time.Duration), op func(attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}

		if attempt >= policy.MaxRetries || !policy.Retriable(err) {
			return err
		}

		retry := attempt + 1
		delay := policy.delayFor(err, retry)
		if onRetry != nil {
			onRetry(retry, delay)
		}

		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return &ClientError{
				Type:    ErrorTypeCanceled,
				Message: "canceled while waiting to retry",
				Attempt: attempt,
				Cause:   waitErr,
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter parses a Retry-After header value, either delay-seconds
// or an HTTP-date. Returns 0 when absent or unparseable; values are capped
// at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

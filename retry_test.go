package formhydrate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func quickPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}
}

func TestRunWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := runWithRetry(context.Background(), quickPolicy(3), nil, func(attempt int) error {
		calls++
		if attempt != calls-1 {
			t.Errorf("attempt = %d on call %d", attempt, calls)
		}
		if calls < 3 {
			return &ClientError{Type: ErrorTypeNetwork, Message: "flaky"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestRunWithRetryAttemptBudget(t *testing.T) {
	calls := 0
	last := &ClientError{Type: ErrorTypeHTTP, StatusCode: 503, Message: "still down"}
	err := runWithRetry(context.Background(), quickPolicy(2), nil, func(int) error {
		calls++
		return last
	})

	// maxRetries 2 means 3 total attempts, and the last error comes back as is.
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	if !errors.Is(err, last) {
		t.Errorf("err = %v, want the last attempt error verbatim", err)
	}
}

func TestRunWithRetryFatalErrorStopsImmediately(t *testing.T) {
	calls := 0
	err := runWithRetry(context.Background(), quickPolicy(5), nil, func(int) error {
		calls++
		return &ClientError{Type: ErrorTypeHTTP, StatusCode: 404, Message: "no such form"}
	})

	if calls != 1 {
		t.Errorf("op called %d times for a fatal error, want 1", calls)
	}
	if StatusCode(err) != 404 {
		t.Errorf("StatusCode = %d, want 404", StatusCode(err))
	}
}

func TestRunWithRetryZeroRetries(t *testing.T) {
	calls := 0
	err := runWithRetry(context.Background(), quickPolicy(0), nil, func(int) error {
		calls++
		return &ClientError{Type: ErrorTypeNetwork}
	})

	if calls != 1 {
		t.Errorf("op called %d times with zero retries, want 1", calls)
	}
	if ErrorKind(err) != ErrorTypeNetwork {
		t.Errorf("kind = %q, want Network", ErrorKind(err))
	}
}

func TestRunWithRetryCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{MaxRetries: 3, BackoffBase: time.Minute, BackoffCap: time.Minute}
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWithRetry(ctx, policy, nil, func(int) error {
			return &ClientError{Type: ErrorTypeNetwork}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if ErrorKind(err) != ErrorTypeCanceled {
			t.Errorf("kind = %q, want Canceled", ErrorKind(err))
		}
		if !errors.Is(err, context.Canceled) {
			t.Error("expected context.Canceled in the chain")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not return after cancellation")
	}
}

func TestRunWithRetryReportsSchedule(t *testing.T) {
	var retries []int
	err := runWithRetry(context.Background(), quickPolicy(2), func(retry int, delay time.Duration) {
		retries = append(retries, retry)
		if delay <= 0 {
			t.Errorf("retry %d scheduled with non-positive delay %v", retry, delay)
		}
	}, func(int) error {
		return &ClientError{Type: ErrorTypeTimeout}
	})

	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("onRetry calls = %v, want [1 2]", retries)
	}
}

func TestRetriableClassification(t *testing.T) {
	policy := DefaultRetryPolicy()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", &ClientError{Type: ErrorTypeNetwork}, true},
		{"timeout", &ClientError{Type: ErrorTypeTimeout}, true},
		{"http 429", &ClientError{Type: ErrorTypeHTTP, StatusCode: 429}, true},
		{"http 500", &ClientError{Type: ErrorTypeHTTP, StatusCode: 500}, true},
		{"http 404", &ClientError{Type: ErrorTypeHTTP, StatusCode: 404}, false},
		{"http 304 orphan", &ClientError{Type: ErrorTypeHTTP, StatusCode: 304}, false},
		{"canceled", &ClientError{Type: ErrorTypeCanceled}, false},
		{"circuit open", &ClientError{Type: ErrorTypeCircuitOpen}, false},
		{"bad shape", &ClientError{Type: ErrorTypeBadResponseShape}, false},
		{"not a client error", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Retriable(tt.err); got != tt.want {
				t.Errorf("Retriable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetriableCustomStatusSet(t *testing.T) {
	policy := RetryPolicy{RetriableStatus: map[int]bool{418: true}}

	if !policy.Retriable(&ClientError{Type: ErrorTypeHTTP, StatusCode: 418}) {
		t.Error("expected configured status to be retriable")
	}
	if policy.Retriable(&ClientError{Type: ErrorTypeHTTP, StatusCode: 503}) {
		t.Error("expected status outside the custom set to be fatal")
	}
}

func TestDelayForPrefersRetryAfter(t *testing.T) {
	policy := quickPolicy(3)

	err := &ClientError{Type: ErrorTypeHTTP, StatusCode: 429, RetryAfter: 3 * time.Second}
	if got := policy.delayFor(err, 1); got != 3*time.Second {
		t.Errorf("delayFor = %v, want the Retry-After value", got)
	}

	noHint := &ClientError{Type: ErrorTypeHTTP, StatusCode: 503}
	if got := policy.delayFor(noHint, 1); got != policy.BackoffBase {
		t.Errorf("delayFor without hint = %v, want backoff base %v", got, policy.BackoffBase)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-3", 0},
		{"capped at one hour", "7200", time.Hour},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	future := time.Now().Add(10 * time.Second).UTC().Format(time.RFC1123)
	got := parseRetryAfter(future)
	if got <= 0 || got > 10*time.Second {
		t.Errorf("parseRetryAfter(http-date) = %v, want in (0, 10s]", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC1123)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}

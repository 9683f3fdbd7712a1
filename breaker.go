package formhydrate

import (
	"sync"
	"time"
)

// CircuitState is the logical breaker state for one endpoint key.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive terminal failures that
	// opens the breaker.
	FailureThreshold int
	// CoolOff is how long an open breaker rejects calls before allowing a
	// probe through.
	CoolOff time.Duration
}

// breakerState tracks one endpoint key. The breaker is open iff openedAt is
// set and the cool-off window has not elapsed.
type breakerState struct {
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker keeps independent failure counters per endpoint key so one
// failing route does not shut off the others. It is consulted once per
// logical call; retries happen inside a single breaker-guarded call and only
// the terminal outcome is recorded.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	states map[string]*breakerState
}

// NewCircuitBreaker creates a breaker, filling zero config fields with the
// defaults (threshold 5, cool-off 30s).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.CoolOff == 0 {
		config.CoolOff = 30 * time.Second
	}

	return &CircuitBreaker{
		config: config,
		states: make(map[string]*breakerState),
	}
}

// Allow reports whether a call for key may proceed. When the cool-off window
// has elapsed the state resets optimistically to closed before the probe, so
// concurrent callers are not all serialized behind a single probe; a probe
// failure re-opens through normal failure counting because the consecutive
// failure count is kept across the reset.
func (cb *CircuitBreaker) Allow(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st, exists := cb.states[key]
	if !exists || st.openedAt.IsZero() {
		return true
	}

	if time.Since(st.openedAt) < cb.config.CoolOff {
		return false
	}

	st.openedAt = time.Time{}
	return true
}

// RecordSuccess resets the failure count for key and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if st, exists := cb.states[key]; exists {
		st.consecutiveFailures = 0
		st.openedAt = time.Time{}
	}
}

// RecordFailure increments the failure count for key and opens the breaker
// once the count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st, exists := cb.states[key]
	if !exists {
		st = &breakerState{}
		cb.states[key] = st
	}

	st.consecutiveFailures++
	if st.consecutiveFailures >= cb.config.FailureThreshold {
		st.openedAt = time.Now()
	}
}

// State reports the logical state for key: open within the cool-off window,
// half-open once it has elapsed with the failure count still at threshold,
// closed otherwise.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st, exists := cb.states[key]
	if !exists || (st.openedAt.IsZero() && st.consecutiveFailures < cb.config.FailureThreshold) {
		return StateClosed
	}

	if !st.openedAt.IsZero() {
		if time.Since(st.openedAt) < cb.config.CoolOff {
			return StateOpen
		}
		return StateHalfOpen
	}

	return StateHalfOpen
}

// Failures reports the consecutive failure count for key, for tests and
// metrics.
func (cb *CircuitBreaker) Failures(key string) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if st, exists := cb.states[key]; exists {
		return st.consecutiveFailures
	}
	return 0
}

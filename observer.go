package formhydrate

import "time"

// Phase marks where in a logical request's lifecycle an event fired.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSuccess Phase = "success"
	PhaseFailure Phase = "failure"
)

// RequestEvent is the structured record handed to an Observer. Purely
// diagnostic; observers must not mutate client state and their panics are
// not recovered.
type RequestEvent struct {
	Phase     Phase
	Route     Route
	Path      string
	Attempts  int
	Status    int
	Duration  time.Duration
	Coalesced bool
	Err       error
}

// Observer is an optional synchronous event sink invoked at request start,
// success and failure.
type Observer func(RequestEvent)

// Package singleflight coalesces concurrent calls with the same key into
// one execution. It is a minimal implementation focused on owner/waiter
// semantics: the entry is removed from the registry the moment the owning
// call settles, success or failure, so a later call always starts fresh.
package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls keyed by string.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active function call.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// New creates a new Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers wait for the original to complete and receive the
// same result; shared reports whether the caller joined an existing call.
// A waiter whose context is cancelled stops waiting without affecting the
// owning call.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (v interface{}, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err, false
}

// Forget drops the registry entry for key so the next Do starts a new call
// even if a previous one is still running.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

// Len reports the number of in-flight calls, for tests and metrics.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

package gate

import (
	"errors"
	"sync"
	"time"
)

// ErrPanicked is handed to callers that shared a run whose action panicked
var ErrPanicked = errors.New("gate: action panicked")

// Outcome tells a caller how its request was satisfied
type Outcome int

const (
	// Ran means this caller executed the action
	Ran Outcome = iota
	// Shared means the caller waited on another caller's run and got its result
	Shared
	// Cached means the last success was recent enough to reuse
	Cached
)

func (o Outcome) String() string {
	switch o {
	case Ran:
		return "ran"
	case Shared:
		return "shared"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// Gate lets at most one action run at a time. Callers queue in strict
// arrival order and are each released exactly once; a queued caller cannot
// abandon its wait.
type Gate[T any] struct {
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	locked   bool
	waiters  []chan struct{}
	finished uint64 // runs completed, successful or not

	lastValue   T
	lastErr     error
	lastSuccess time.Time
	hasValue    bool
}

// New creates a gate that reuses a successful result for minInterval
func New[T any](minInterval time.Duration) *Gate[T] {
	return &Gate[T]{minInterval: minInterval, now: time.Now}
}

// Do runs action unless a result can be reused. A caller that queued behind
// an in-flight run receives that run's value or error instead of running
// again. A failed run never blocks later callers from retrying.
func (g *Gate[T]) Do(action func() (T, error)) (T, Outcome, error) {
	g.mu.Lock()
	arrival := g.finished
	g.acquireLocked()

	if g.finished > arrival {
		value, err := g.lastValue, g.lastErr
		g.releaseLocked()
		if err != nil {
			var zero T
			return zero, Shared, err
		}
		return value, Shared, nil
	}

	if g.hasValue && g.now().Sub(g.lastSuccess) < g.minInterval {
		value := g.lastValue
		g.releaseLocked()
		return value, Cached, nil
	}
	g.mu.Unlock()

	value, err := g.run(action)

	g.mu.Lock()
	g.finished++
	g.lastErr = err
	if err == nil {
		g.lastValue = value
		g.lastSuccess = g.now()
		g.hasValue = true
	}
	g.releaseLocked()

	return value, Ran, err
}

// run executes action and converts a panic into a released gate
func (g *Gate[T]) run(action func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.mu.Lock()
			g.finished++
			g.lastErr = ErrPanicked
			g.releaseLocked()
			panic(r)
		}
	}()
	return action()
}

// acquireLocked blocks until the caller owns the gate. Called and returns
// with g.mu held.
func (g *Gate[T]) acquireLocked() {
	if !g.locked {
		g.locked = true
		return
	}

	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()
	<-ch
	g.mu.Lock()
}

// releaseLocked hands the gate to the oldest waiter and drops g.mu
func (g *Gate[T]) releaseLocked() {
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(next)
	} else {
		g.locked = false
	}
	g.mu.Unlock()
}

// Invalidate forgets the cached success so the next caller runs the action
func (g *Gate[T]) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasValue = false
}

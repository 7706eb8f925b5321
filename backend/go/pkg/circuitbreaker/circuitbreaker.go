package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets a bounded number of probe calls through.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned in HalfOpen when every probe slot is taken.
	ErrTooManyProbes = errors.New("circuit breaker is half-open and probing")
)

// CircuitBreaker guards calls to a dependency that may be failing.
type CircuitBreaker interface {
	// Execute runs req unless the circuit is open. The error of req is returned unchanged.
	Execute(req func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Option configures a breaker.
type Option func(*breaker)

// WithNeutralErrors lists errors that neither trip nor heal the circuit.
// Context cancellation and deadlines are always neutral: the caller gave up,
// the dependency did not fail.
func WithNeutralErrors(errs ...error) Option {
	return func(b *breaker) {
		b.neutral = append(b.neutral, errs...)
	}
}

// WithStateChange registers a callback invoked on every transition.
// It runs with the breaker lock released.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) {
		b.onChange = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) {
		b.now = now
	}
}

type breaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration
	neutral          []error
	onChange         func(from, to State)
	now              func() time.Time

	mutex     sync.Mutex
	state     State
	failures  uint32
	successes uint32
	probes    uint32
	openedAt  time.Time
}

// New creates a circuit breaker.
// failureThreshold: consecutive failures that open the circuit.
// successThreshold: consecutive half-open successes that close it again; also the probe limit.
// timeout: how long the circuit stays open before probing.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
		neutral:          []error{context.Canceled, context.DeadlineExceeded},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state of the circuit breaker.
func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute wraps the execution of req with the circuit breaker logic.
func (b *breaker) Execute(req func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := req()
	b.record(err)
	return err
}

func (b *breaker) admit() error {
	b.mutex.Lock()
	from := b.state
	b.maybeHalfOpen()
	to := b.state

	var err error
	switch b.state {
	case Open:
		err = ErrCircuitOpen
	case HalfOpen:
		if b.probes >= b.successThreshold {
			err = ErrTooManyProbes
		} else {
			b.probes++
		}
	}
	b.mutex.Unlock()

	b.notify(from, to)
	return err
}

func (b *breaker) record(err error) {
	if err != nil && b.isNeutral(err) {
		b.mutex.Lock()
		if b.state == HalfOpen && b.probes > 0 {
			b.probes--
		}
		b.mutex.Unlock()
		return
	}

	b.mutex.Lock()
	from := b.state
	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	to := b.state
	b.mutex.Unlock()

	b.notify(from, to)
}

func (b *breaker) isNeutral(err error) bool {
	for _, n := range b.neutral {
		if errors.Is(err, n) {
			return true
		}
	}
	return false
}

// maybeHalfOpen moves an expired Open circuit to HalfOpen. Callers hold the lock.
func (b *breaker) maybeHalfOpen() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.successes = 0
		b.probes = 0
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.probes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

func (b *breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(from, to)
	}
}

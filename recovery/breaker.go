package recovery

import (
	"sync"
	"time"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/internal/registry"
)

// CircuitState is the breaker's position in its state machine.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// Defaults for circuit breakers.
const (
	DefaultFailureThreshold = 3
	DefaultCooldown         = 60 * time.Second
)

// Breaker tracks consecutive failures for one specialist and temporarily
// quarantines it when they cross the threshold. Transitions follow the
// classic pattern: closed opens at the threshold, open becomes half-open
// once the cooldown elapses, and the single half-open probe either closes
// the breaker again or re-opens it and restarts the cooldown clock.
//
// All methods are safe for concurrent use; concurrent requests feeding the
// same specialist share one breaker.
type Breaker struct {
	mu           sync.Mutex
	state        CircuitState
	failureCount int
	lastFailure  time.Time
	threshold    int
	cooldown     time.Duration
	clock        func() time.Time
}

var (
	// WithThreshold sets the consecutive-failure count that opens the breaker.
	WithThreshold = opts.ForName[Breaker, int]("threshold")
	// WithCooldown sets how long an open breaker waits before permitting a
	// probe.
	WithCooldown = opts.ForName[Breaker, time.Duration]("cooldown")
	// WithClock injects a time source, for tests.
	WithClock = opts.ForName[Breaker, func() time.Time]("clock")
)

// NewBreaker creates a closed breaker. It panics on misconfigured options.
func NewBreaker(options ...opts.Option[Breaker]) *Breaker {
	b := &Breaker{
		state:     CircuitClosed,
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		clock:     time.Now,
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	return b
}

// IsAvailable reports whether a dispatch may proceed. An open breaker whose
// cooldown has elapsed transitions to half-open and permits exactly one
// probe; until that probe's outcome is recorded the breaker stays
// half-open and keeps answering true.
func (b *Breaker) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if b.clock().Sub(b.lastFailure) >= b.cooldown {
			b.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes the breaker. A
// successful half-open probe ends the quarantine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = CircuitClosed
}

// RecordFailure counts one failure. A failed half-open probe re-opens the
// breaker immediately; in the closed state the breaker opens once the
// threshold is reached. Opening always restarts the cooldown clock.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	if b.state == CircuitHalfOpen || b.failureCount >= b.threshold {
		b.state = CircuitOpen
		b.lastFailure = b.clock()
	}
}

// State returns the breaker's current state without transitioning it.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerRegistry owns one breaker per specialist name. It is injected
// where shared breaker state is needed so tests can instantiate isolated
// registries instead of a process-wide singleton.
type BreakerRegistry struct {
	breakers registry.Registry[*Breaker]
	options  []opts.Option[Breaker]
}

// NewBreakerRegistry creates a registry whose breakers are all constructed
// with the given options.
func NewBreakerRegistry(options ...opts.Option[Breaker]) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: registry.New[*Breaker](),
		options:  options,
	}
}

// Get returns the breaker for a specialist, creating it on first use.
func (r *BreakerRegistry) Get(name string) *Breaker {
	b, _ := r.breakers.GetOrAdd(name, func() *Breaker {
		return NewBreaker(r.options...)
	})
	return b
}

// Configure installs a specifically tuned breaker for one specialist,
// overriding the registry-wide options. Call during setup, before requests
// flow.
func (r *BreakerRegistry) Configure(name string, options ...opts.Option[Breaker]) {
	r.breakers.Add(name, NewBreaker(options...))
}

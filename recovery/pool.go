package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/internal/registry"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
)

// ErrCircuitOpen marks a dispatch refused because the specialist's breaker
// is open. The coordinator treats it as the specialist being absent for
// this request.
var ErrCircuitOpen = errors.New("circuit open")

// ErrUnknownSpecialist marks a dispatch addressed to a name the pool has
// never seen.
var ErrUnknownSpecialist = errors.New("unknown specialist")

// Pool wraps a set of registered dispatchers with shared circuit-breaker
// state. Every dispatch outcome feeds back into the specialist's breaker,
// and dispatch to a quarantined specialist is refused outright without
// invoking it.
type Pool struct {
	dispatchers registry.Registry[executor.Dispatcher]
	breakers    *BreakerRegistry
}

// WithBreakers injects a breaker registry; without this option the pool
// creates its own with default thresholds.
var WithBreakers = opts.ForName[Pool, *BreakerRegistry]("breakers")

// NewPool creates an empty pool. It panics on misconfigured options.
func NewPool(options ...opts.Option[Pool]) *Pool {
	p := &Pool{
		dispatchers: registry.New[executor.Dispatcher](),
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	if p.breakers == nil {
		p.breakers = NewBreakerRegistry()
	}
	return p
}

// Register adds a dispatcher under its own name.
func (p *Pool) Register(d executor.Dispatcher) {
	p.dispatchers.Add(d.Name(), d)
}

// Ensure registers the dispatcher built by factory under name, unless one
// is already registered. Concurrent callers racing on the same name get the
// same dispatcher.
func (p *Pool) Ensure(name string, factory func() executor.Dispatcher) executor.Dispatcher {
	d, _ := p.dispatchers.GetOrAdd(name, factory)
	return d
}

// Known reports whether a dispatcher is registered under name.
func (p *Pool) Known(name string) bool {
	_, ok := p.dispatchers.Get(name)
	return ok
}

// Breaker exposes the breaker tracking the named specialist.
func (p *Pool) Breaker(name string) *Breaker {
	return p.breakers.Get(name)
}

// Dispatch routes the message to the dispatcher registered under msg.To.
// It returns ErrUnknownSpecialist for unregistered names and ErrCircuitOpen
// when the specialist is quarantined; in both cases no dispatcher runs. In
// every other case the returned result's success or failure has already
// been recorded against the breaker.
func (p *Pool) Dispatch(ctx context.Context, msg messages.TaskMessage) (messages.AgentResult, error) {
	d, ok := p.dispatchers.Get(msg.To)
	if !ok {
		return messages.AgentResult{}, fmt.Errorf("%w: %s", ErrUnknownSpecialist, msg.To)
	}

	breaker := p.breakers.Get(msg.To)
	if !breaker.IsAvailable() {
		slog.Warn("refusing dispatch, circuit open",
			slogx.Specialist(msg.To),
			slogx.TraceID(msg.TraceID))
		return messages.AgentResult{}, fmt.Errorf("%w: %s", ErrCircuitOpen, msg.To)
	}

	result := d.Execute(ctx, msg)
	switch result.Status {
	case messages.StatusSuccess, messages.StatusPartial:
		breaker.RecordSuccess()
	case messages.StatusError, messages.StatusTimeout:
		breaker.RecordFailure()
	default:
		// cancelled is nobody's fault; leave the breaker alone
	}
	return result, nil
}

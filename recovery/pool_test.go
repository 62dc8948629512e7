package recovery

import (
	"context"
	"testing"

	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_unknownSpecialist(t *testing.T) {
	p := NewPool()

	_, err := p.Dispatch(context.Background(), newTask(t, "nobody"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSpecialist)
}

func TestPool_dispatchFeedsBreaker(t *testing.T) {
	d := &scriptedDispatcher{name: "researcher", script: func(_ int, msg messages.TaskMessage) messages.AgentResult {
		return resultFor(msg, messages.StatusError, "")
	}}

	p := NewPool(WithBreakers(NewBreakerRegistry(WithThreshold(1))))
	p.Register(d)

	result, err := p.Dispatch(context.Background(), newTask(t, "researcher"))
	require.NoError(t, err)
	assert.Equal(t, messages.StatusError, result.Status)
	assert.Equal(t, CircuitOpen, p.Breaker("researcher").State())

	// quarantined now: refused without invoking the dispatcher
	_, err = p.Dispatch(context.Background(), newTask(t, "researcher"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, d.callCount())
}

func TestPool_successClosesBreaker(t *testing.T) {
	d := &scriptedDispatcher{name: "researcher", script: func(_ int, msg messages.TaskMessage) messages.AgentResult {
		return resultFor(msg, messages.StatusSuccess, "fine")
	}}

	p := NewPool()
	p.Register(d)

	result, err := p.Dispatch(context.Background(), newTask(t, "researcher"))
	require.NoError(t, err)
	assert.True(t, result.Settled())
	assert.Equal(t, CircuitClosed, p.Breaker("researcher").State())
}

func TestPool_ensureIsIdempotent(t *testing.T) {
	p := NewPool()
	assert.False(t, p.Known("researcher"))

	built := 0
	for range 3 {
		p.Ensure("researcher", func() executor.Dispatcher {
			built++
			return &scriptedDispatcher{name: "researcher", script: func(_ int, msg messages.TaskMessage) messages.AgentResult {
				return resultFor(msg, messages.StatusSuccess, "fine")
			}}
		})
	}

	assert.True(t, p.Known("researcher"))
	assert.Equal(t, 1, built)
}

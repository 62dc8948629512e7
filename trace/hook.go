package trace

import (
	"context"

	"github.com/hyphalabs/quorum/messages"
)

// Hook observes the lifecycle of dispatched steps. The Store implements it
// to build traces; broker publishers implement it to fan step events out to
// external observers. Implementations must be safe for concurrent use since
// parallel branches of one request fire callbacks concurrently.
type Hook interface {
	OnStepStart(context.Context, messages.TaskMessage)
	OnStepEnd(context.Context, messages.AgentResult)
	OnError(context.Context, error)
}

// Hooks fans callbacks out to several hooks in order.
type Hooks []Hook

func (h Hooks) OnStepStart(ctx context.Context, msg messages.TaskMessage) {
	for _, hook := range h {
		hook.OnStepStart(ctx, msg)
	}
}

func (h Hooks) OnStepEnd(ctx context.Context, result messages.AgentResult) {
	for _, hook := range h {
		hook.OnStepEnd(ctx, result)
	}
}

func (h Hooks) OnError(ctx context.Context, err error) {
	for _, hook := range h {
		hook.OnError(ctx, err)
	}
}

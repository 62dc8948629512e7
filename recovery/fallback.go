package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/pkg/uuidx"
)

// HandledByNone marks the synthetic degraded result returned when every
// dispatcher in a fallback chain is exhausted.
const HandledByNone = "none"

// degradedApology is the user-safe output of a fully exhausted chain.
const degradedApology = "I wasn't able to complete that request right now. Please try again in a moment."

// FallbackChain tries a primary dispatcher and then each fallback in order
// until one settles. Every dispatcher is individually wrapped in a Retrier,
// so a chain of three with one retry each makes at most six attempts. A
// fully exhausted chain returns a well-formed degraded result attributed to
// HandledByNone; it never returns a Go error and never panics.
type FallbackChain struct {
	primary        executor.Dispatcher
	fallbacks      []executor.Dispatcher
	retryPerAgent  int
	initialBackoff time.Duration
}

var (
	// WithRetryPerAgent sets how many retries each chain member gets.
	WithRetryPerAgent = opts.ForName[FallbackChain, int]("retryPerAgent")
	// WithFallbackBackoff sets the initial backoff used inside each member's
	// retrier.
	WithFallbackBackoff = opts.ForName[FallbackChain, time.Duration]("initialBackoff")
)

// WithFallbacks appends dispatchers tried, in order, after the primary.
func WithFallbacks(d executor.Dispatcher, extra ...executor.Dispatcher) opts.Option[FallbackChain] {
	return opts.Type[FallbackChain](func(c *FallbackChain) error {
		c.fallbacks = append(c.fallbacks, d)
		c.fallbacks = append(c.fallbacks, extra...)
		return nil
	})
}

// NewFallbackChain creates a chain rooted at the given primary dispatcher.
// It panics on a nil primary or misconfigured options.
func NewFallbackChain(primary executor.Dispatcher, options ...opts.Option[FallbackChain]) *FallbackChain {
	if primary == nil {
		panic("recovery: fallback chain needs a primary dispatcher")
	}
	c := &FallbackChain{
		primary:        primary,
		retryPerAgent:  DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
	}
	if err := opts.Apply(c, options); err != nil {
		panic(err)
	}
	return c
}

// Name returns the primary dispatcher's name; the chain stands in for it.
func (c *FallbackChain) Name() string {
	return c.primary.Name()
}

// Execute tries every chain member in order and returns the first settled
// result, re-keyed to answer the dispatched message even when a re-addressed
// fallback produced it. The winning member's name is in the result's From
// field; when the whole chain is exhausted From is HandledByNone and the
// output is a user-safe apology.
func (c *FallbackChain) Execute(ctx context.Context, msg messages.TaskMessage) messages.AgentResult {
	members := make([]executor.Dispatcher, 0, len(c.fallbacks)+1)
	members = append(members, c.primary)
	members = append(members, c.fallbacks...)

	var last messages.AgentResult
	for i, member := range members {
		attempt := msg
		if i > 0 {
			// Re-address the message and carry the previous member's failure
			// so the fallback can avoid the same mistake.
			attempt = msg.Derive(messages.RetryContext(failureText(last)))
			attempt.To = member.Name()
			slog.Info("falling back to next specialist",
				slogx.Specialist(member.Name()),
				slogx.TraceID(msg.TraceID))
		}

		retrier := NewRetrier(member,
			WithMaxRetries(c.retryPerAgent),
			WithInitialBackoff(c.initialBackoff),
		)
		last = retrier.Execute(ctx, attempt)
		if last.Settled() {
			return answering(msg, last)
		}
	}

	slog.Warn("fallback chain exhausted",
		slogx.Specialist(c.primary.Name()),
		slogx.TraceID(msg.TraceID))

	degraded := messages.AgentResult{
		ID:        uuidx.New(),
		MessageID: msg.ID,
		From:      HandledByNone,
		TraceID:   msg.TraceID,
		Status:    messages.StatusError,
		Output:    degradedApology,
		Error:     "all specialists in the fallback chain were exhausted",
		Timestamp: strfmt.DateTime(time.Now()),
	}
	return degraded
}

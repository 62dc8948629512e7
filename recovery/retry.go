package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
)

// Defaults for the retry policy.
const (
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = time.Second
	DefaultMultiplier     = 2.0
)

// Retrier wraps a dispatcher with retry-with-backoff. A failed retryable
// attempt derives a fresh message from the original, appending the failure
// text as corrective context so the specialist can self-correct on the next
// attempt. The dispatcher is invoked at most maxRetries+1 times; when every
// attempt fails the last result is returned unmodified so the caller sees
// the real final failure.
type Retrier struct {
	next           executor.Dispatcher
	maxRetries     int
	initialBackoff time.Duration
	multiplier     float64
	retryable      []messages.Status
}

var (
	// WithMaxRetries caps the number of re-attempts after the first call.
	WithMaxRetries = opts.ForName[Retrier, int]("maxRetries")
	// WithInitialBackoff sets the sleep before the first retry.
	WithInitialBackoff = opts.ForName[Retrier, time.Duration]("initialBackoff")
	// WithMultiplier sets the backoff growth factor between retries.
	WithMultiplier = opts.ForName[Retrier, float64]("multiplier")
)

// WithRetryableStatuses replaces the set of statuses worth retrying.
func WithRetryableStatuses(statuses ...messages.Status) opts.Option[Retrier] {
	return opts.Type[Retrier](func(r *Retrier) error {
		r.retryable = statuses
		return nil
	})
}

// NewRetrier wraps the given dispatcher. It panics on a nil dispatcher or
// misconfigured options, matching the construction style for startup-time
// wiring.
func NewRetrier(next executor.Dispatcher, options ...opts.Option[Retrier]) *Retrier {
	if next == nil {
		panic("recovery: retrier needs a dispatcher to wrap")
	}
	r := &Retrier{
		next:           next,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		multiplier:     DefaultMultiplier,
		retryable:      []messages.Status{messages.StatusError, messages.StatusTimeout},
	}
	if err := opts.Apply(r, options); err != nil {
		panic(err)
	}
	return r
}

// Name returns the wrapped dispatcher's name.
func (r *Retrier) Name() string {
	return r.next.Name()
}

// Execute runs the wrapped dispatcher with up to maxRetries re-attempts.
// Every retry message derives from the original message, so the trace id is
// invariant across attempts and each derived message's parent is the
// original. Whichever attempt produced the returned result, the result is
// re-keyed to answer the message the caller dispatched. Backoff sleeps
// respect context cancellation: when the context dies mid-backoff the last
// result is returned immediately.
func (r *Retrier) Execute(ctx context.Context, msg messages.TaskMessage) messages.AgentResult {
	result := r.next.Execute(ctx, msg)

	backoff := r.initialBackoff
	var corrections []messages.ContextItem

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if result.Settled() || !r.isRetryable(result.Status) {
			return answering(msg, result)
		}

		corrections = append(corrections, messages.RetryContext(failureText(result)))
		slog.Debug("retrying after failed attempt",
			slogx.Specialist(r.next.Name()),
			slogx.TraceID(msg.TraceID),
			slog.Int("attempt", attempt),
			slog.String("status", string(result.Status)))

		if err := sleepCtx(ctx, backoff); err != nil {
			return answering(msg, result)
		}
		backoff = time.Duration(float64(backoff) * r.multiplier)

		result = r.next.Execute(ctx, msg.Derive(corrections...))
	}
	return answering(msg, result)
}

func (r *Retrier) isRetryable(status messages.Status) bool {
	for _, s := range r.retryable {
		if s == status {
			return true
		}
	}
	return false
}

// answering re-keys a result produced against a derived attempt so it
// answers the message the caller actually dispatched. Without this a trace
// store matching results to dispatches by message id would never see the
// completion of a recovered step.
func answering(msg messages.TaskMessage, result messages.AgentResult) messages.AgentResult {
	result.MessageID = msg.ID
	return result
}

// failureText renders a failed result as the corrective context shown to
// the specialist on the next attempt.
func failureText(result messages.AgentResult) string {
	if result.Error != "" {
		return fmt.Sprintf("A previous attempt at this task failed (%s): %s. Correct the problem and try again.", result.Status, result.Error)
	}
	return fmt.Sprintf("A previous attempt at this task failed with status %s. Correct the problem and try again.", result.Status)
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/trace"
)

// Publisher is a trace.Hook that forwards every step event to a topic.
// Attach it alongside a trace.Store (via trace.Hooks) to mirror a request's
// progress onto the broker. Publish failures are logged and swallowed so
// observation problems never fail the request being observed.
type Publisher struct {
	topic Topic
}

// NewPublisher creates a publishing hook for the given topic.
func NewPublisher(topic Topic) *Publisher {
	return &Publisher{topic: topic}
}

var _ trace.Hook = (*Publisher)(nil)

func (p *Publisher) OnStepStart(ctx context.Context, msg messages.TaskMessage) {
	p.publish(ctx, Event{
		Kind:      KindStepStart,
		Message:   &msg,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func (p *Publisher) OnStepEnd(ctx context.Context, result messages.AgentResult) {
	p.publish(ctx, Event{
		Kind:      KindStepEnd,
		Result:    &result,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func (p *Publisher) OnError(ctx context.Context, err error) {
	p.publish(ctx, Event{
		Kind:      KindError,
		Err:       err.Error(),
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) {
	if err := p.topic.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish trace event", slogx.Error(err), slog.String("kind", event.Kind))
	}
}

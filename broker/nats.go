package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/trace"
	"github.com/nats-io/nats.go"
)

type natsBroker struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

// NATS creates a broker publishing events over an existing NATS connection,
// one subject per topic. The connection's lifecycle belongs to the caller.
func NATS(client *nats.Conn) Broker {
	return &natsBroker{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsBroker) Topic(_ context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: id,
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(_ context.Context, event Event) error {
	eb, err := ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, hook trace.Hook) (Subscription, error) {
	if hook == nil {
		return nil, fmt.Errorf("hook is required")
	}

	sub, err := t.client.Subscribe(t.subject, func(m *nats.Msg) {
		event, err := FromJSON(m.Data)
		if err != nil {
			slog.Warn("dropping undecodable event", slogx.Error(err), slog.String("subject", t.subject))
			return
		}
		event.Dispatch(ctx, hook)
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{subject: t.subject, sub: sub}, nil
}

type natsSubscription struct {
	subject string
	sub     *nats.Subscription
}

func (s *natsSubscription) ID() string {
	return s.subject
}

func (s *natsSubscription) Unsubscribe() {
	if err := s.sub.Unsubscribe(); err != nil {
		slog.Warn("failed to unsubscribe", slogx.Error(err), slog.String("subject", s.subject))
	}
}

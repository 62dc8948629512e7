package broker

import (
	"context"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/hyphalabs/quorum/pkg/uuidx"
	"github.com/hyphalabs/quorum/trace"
)

const defaultSlowSubscriberTimeout = 100 * time.Millisecond

type localBroker struct {
	topics                *haxmap.Map[string, *localTopic]
	slowSubscriberTimeout time.Duration
}

// Local creates an in-process broker. Subscribers that fail to drain their
// channel within the slow-subscriber timeout are dropped so publishers
// never block on them.
func Local() Broker {
	return &localBroker{
		topics:                haxmap.New[string, *localTopic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

func (b *localBroker) Topic(_ context.Context, id string) Topic {
	topic, _ := b.topics.GetOrCompute(id, func() *localTopic {
		return &localTopic{
			id:                    id,
			subscriptions:         haxmap.New[string, *localSubscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return topic
}

type localTopic struct {
	id                    string
	subscriptions         *haxmap.Map[string, *localSubscription]
	slowSubscriberTimeout time.Duration
}

func (t *localTopic) Publish(ctx context.Context, event Event) error {
	t.subscriptions.ForEach(func(_ string, sub *localSubscription) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		select {
		case <-ctx.Done():
			return false
		case <-sub.ctx.Done():
			sub.Unsubscribe()
		case sub.channel <- event:
		case <-time.After(t.slowSubscriberTimeout):
			// channel stayed full, drop the subscriber
			sub.Unsubscribe()
		}
		return true
	})
	return nil
}

func (t *localTopic) Subscribe(ctx context.Context, hook trace.Hook) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &localSubscription{
		id:      uuidx.NewString(),
		topic:   t,
		channel: make(chan Event, 64),
		ctx:     subCtx,
		cancel:  cancel,
	}
	t.subscriptions.Set(sub.id, sub)

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case event := <-sub.channel:
				event.Dispatch(subCtx, hook)
			}
		}
	}()
	return sub, nil
}

type localSubscription struct {
	id      string
	topic   *localTopic
	channel chan Event
	ctx     context.Context
	cancel  context.CancelFunc
}

func (s *localSubscription) ID() string {
	return s.id
}

func (s *localSubscription) Unsubscribe() {
	s.topic.subscriptions.Del(s.id)
	s.cancel()
}

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/goccy/go-json"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/trace"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Broker hands out named topics.
type Broker interface {
	Topic(context.Context, string) Topic
}

// Topic is one named event stream.
type Topic interface {
	Publish(context.Context, Event) error
	Subscribe(context.Context, trace.Hook) (Subscription, error)
}

// Subscription identifies one attached hook and allows detaching it.
type Subscription interface {
	ID() string
	Unsubscribe()
}

// Event kinds carried on a topic.
const (
	KindStepStart = "step_start"
	KindStepEnd   = "step_end"
	KindError     = "error"
)

// Event is one trace lifecycle notification. Exactly one of Message,
// Result, or Err is set, according to Kind.
type Event struct {
	Kind      string
	Message   *messages.TaskMessage
	Result    *messages.AgentResult
	Err       string
	Timestamp strfmt.DateTime
}

// Dispatch invokes the hook callback matching the event's kind.
func (e Event) Dispatch(ctx context.Context, hook trace.Hook) {
	switch e.Kind {
	case KindStepStart:
		if e.Message != nil {
			hook.OnStepStart(ctx, *e.Message)
		}
	case KindStepEnd:
		if e.Result != nil {
			hook.OnStepEnd(ctx, *e.Result)
		}
	case KindError:
		hook.OnError(ctx, fmt.Errorf("%s", e.Err))
	}
}

// ToJSON renders the event with a type marker first, so consumers can
// switch on kind without decoding the payload.
func ToJSON(e Event) ([]byte, error) {
	buf, err := sjson.SetBytes([]byte(`{}`), "kind", e.Kind)
	if err != nil {
		return nil, err
	}
	buf, err = sjson.SetBytes(buf, "timestamp", time.Time(e.Timestamp).Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	switch e.Kind {
	case KindStepStart:
		payload, merr := json.Marshal(e.Message)
		if merr != nil {
			return nil, merr
		}
		buf, err = sjson.SetRawBytes(buf, "message", payload)
	case KindStepEnd:
		payload, merr := json.Marshal(e.Result)
		if merr != nil {
			return nil, merr
		}
		buf, err = sjson.SetRawBytes(buf, "result", payload)
	case KindError:
		buf, err = sjson.SetBytes(buf, "error", e.Err)
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return buf, err
}

// FromJSON parses an event rendered by ToJSON.
func FromJSON(data []byte) (Event, error) {
	root := gjson.ParseBytes(data)
	e := Event{Kind: root.Get("kind").String()}
	if ts := root.Get("timestamp").String(); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = strfmt.DateTime(parsed)
		}
	}
	switch e.Kind {
	case KindStepStart:
		var msg messages.TaskMessage
		if err := json.Unmarshal([]byte(root.Get("message").Raw), &msg); err != nil {
			return Event{}, err
		}
		e.Message = &msg
	case KindStepEnd:
		var res messages.AgentResult
		if err := json.Unmarshal([]byte(root.Get("result").Raw), &res); err != nil {
			return Event{}, err
		}
		e.Result = &res
	case KindError:
		e.Err = root.Get("error").String()
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return e, nil
}

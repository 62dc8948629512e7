package recovery

import (
	"context"
	"sync"

	"github.com/hyphalabs/quorum/messages"
)

// scriptedDispatcher returns canned results per call and records every
// message it saw.
type scriptedDispatcher struct {
	name   string
	script func(call int, msg messages.TaskMessage) messages.AgentResult

	mu    sync.Mutex
	seen  []messages.TaskMessage
	calls int
}

func (d *scriptedDispatcher) Name() string { return d.name }

func (d *scriptedDispatcher) Execute(_ context.Context, msg messages.TaskMessage) messages.AgentResult {
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.seen = append(d.seen, msg)
	d.mu.Unlock()
	return d.script(call, msg)
}

func (d *scriptedDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptedDispatcher) messages() []messages.TaskMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]messages.TaskMessage(nil), d.seen...)
}

func resultFor(msg messages.TaskMessage, status messages.Status, output string) messages.AgentResult {
	r := messages.NewResult(msg, status)
	r.Output = output
	if status == messages.StatusError {
		r.Error = "it broke"
	}
	return r
}

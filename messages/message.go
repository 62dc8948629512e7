package messages

import (
	"errors"
	"fmt"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/pkg/uuidx"
)

// Default constraint values applied by NewTaskMessage when the caller does
// not override them.
const (
	DefaultMaxOutputTokens = 2000
	DefaultTimeout         = 30 * time.Second
	DefaultMaxToolCalls    = 5
)

// Constraints bound the resources one dispatch attempt may consume. The
// executor restates them to the model and enforces the timeout itself.
type Constraints struct {
	MaxOutputTokens int           `json:"max_output_tokens"`
	Timeout         time.Duration `json:"timeout_ms"`
	MaxToolCalls    int           `json:"max_tool_calls"`
	AllowedTools    []string      `json:"allowed_tools,omitempty"`
	Temperature     float64       `json:"temperature"`
}

func (c Constraints) validate() error {
	var err error
	if c.MaxOutputTokens < 0 {
		err = errors.Join(err, fmt.Errorf("max output tokens cannot be negative: %d", c.MaxOutputTokens))
	}
	if c.Timeout < 0 {
		err = errors.Join(err, fmt.Errorf("timeout cannot be negative: %s", c.Timeout))
	}
	if c.MaxToolCalls < 0 {
		err = errors.Join(err, fmt.Errorf("max tool calls cannot be negative: %d", c.MaxToolCalls))
	}
	return err
}

// TaskMessage is a unit of work sent to a specialist. It is created by the
// coordinator or, on retry, derived from an earlier message by the recovery
// layer. Once constructed it is never mutated.
type TaskMessage struct {
	ID          uuid.UUID       `json:"id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	TraceID     uuid.UUID       `json:"trace_id"`
	ParentID    uuid.UUID       `json:"parent_id,omitempty"`
	Instruction string          `json:"instruction"`
	Context     ContextItems    `json:"context,omitempty"`
	Constraints Constraints     `json:"constraints"`
	Timestamp   strfmt.DateTime `json:"timestamp"`
}

var (
	// WithTraceID pins the message to an existing trace instead of starting
	// a fresh one.
	WithTraceID = opts.ForName[TaskMessage, uuid.UUID]("TraceID")
	// WithParentID records the message this one was derived from.
	WithParentID = opts.ForName[TaskMessage, uuid.UUID]("ParentID")
	// WithConstraints replaces the default resource constraints wholesale.
	WithConstraints = opts.ForName[TaskMessage, Constraints]("Constraints")
)

// WithContext attaches pre-assembled context items to the message.
func WithContext(items ...ContextItem) opts.Option[TaskMessage] {
	return opts.Type[TaskMessage](func(m *TaskMessage) error {
		m.Context = append(m.Context, items...)
		return nil
	})
}

// WithTimeout overrides only the timeout constraint.
func WithTimeout(timeout time.Duration) opts.Option[TaskMessage] {
	return opts.Type[TaskMessage](func(m *TaskMessage) error {
		m.Constraints.Timeout = timeout
		return nil
	})
}

// WithMaxOutputTokens overrides only the output token budget.
func WithMaxOutputTokens(n int) opts.Option[TaskMessage] {
	return opts.Type[TaskMessage](func(m *TaskMessage) error {
		m.Constraints.MaxOutputTokens = n
		return nil
	})
}

// WithAllowedTools overrides the set of tools the specialist may call.
func WithAllowedTools(names ...string) opts.Option[TaskMessage] {
	return opts.Type[TaskMessage](func(m *TaskMessage) error {
		m.Constraints.AllowedTools = names
		return nil
	})
}

// NewTaskMessage builds a task message addressed to the named specialist.
// Constraint defaults are filled in for anything the options leave at zero,
// and a fresh trace id is generated unless WithTraceID supplied one.
// Negative constraint values are rejected.
func NewTaskMessage(from, to, instruction string, options ...opts.Option[TaskMessage]) (TaskMessage, error) {
	msg := TaskMessage{
		ID:          uuidx.New(),
		From:        from,
		To:          to,
		Instruction: instruction,
		Timestamp:   strfmt.DateTime(time.Now()),
	}
	if err := opts.Apply(&msg, options); err != nil {
		return TaskMessage{}, err
	}
	if err := msg.Constraints.validate(); err != nil {
		return TaskMessage{}, err
	}
	if msg.Constraints.MaxOutputTokens == 0 {
		msg.Constraints.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if msg.Constraints.Timeout == 0 {
		msg.Constraints.Timeout = DefaultTimeout
	}
	if msg.Constraints.MaxToolCalls == 0 {
		msg.Constraints.MaxToolCalls = DefaultMaxToolCalls
	}
	if msg.TraceID == uuid.Nil {
		msg.TraceID = uuidx.New()
	}
	return msg, nil
}

// Derive creates a new attempt for the same logical step. The derived
// message gets a fresh id, keeps the trace id, links back to this message
// through ParentID, and carries the extra items (typically the previous
// failure rendered as corrective context) appended to the existing context.
func (m TaskMessage) Derive(extra ...ContextItem) TaskMessage {
	derived := m
	derived.ID = uuidx.New()
	derived.ParentID = m.ID
	derived.Timestamp = strfmt.DateTime(time.Now())

	derived.Context = make(ContextItems, 0, len(m.Context)+len(extra))
	derived.Context = append(derived.Context, m.Context...)
	derived.Context = append(derived.Context, extra...)
	return derived
}

// AllowsTool reports whether the named tool is inside this message's
// allowed-tool set. An empty set allows nothing.
func (m TaskMessage) AllowsTool(name string) bool {
	for _, allowed := range m.Constraints.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

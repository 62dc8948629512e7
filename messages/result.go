package messages

import (
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/pkg/uuidx"
)

// Status describes the outcome of one dispatch attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
	// StatusCancelled is reserved for external cancellation. Nothing inside
	// the library produces it today, but the recovery layer treats it as
	// non-retryable when it sees one.
	StatusCancelled Status = "cancelled"
)

// ToolUse records one tool invocation made while producing a result.
type ToolUse struct {
	Name          string        `json:"name"`
	Args          string        `json:"args,omitempty"`
	ResultSummary string        `json:"result_summary,omitempty"`
	Duration      time.Duration `json:"duration_ms"`
}

// AgentResult is the outcome of one attempt at a task message. It is created
// exactly once per dispatch by a specialist executor and read-only afterward.
type AgentResult struct {
	ID         uuid.UUID       `json:"id"`
	MessageID  uuid.UUID       `json:"message_id"`
	From       string          `json:"from"`
	TraceID    uuid.UUID       `json:"trace_id"`
	Status     Status          `json:"status"`
	Output     string          `json:"output,omitempty"`
	ToolsUsed  []ToolUse       `json:"tools_used,omitempty"`
	TokensUsed int             `json:"tokens_used"`
	Duration   time.Duration   `json:"duration_ms"`
	Confidence float64         `json:"confidence"`
	Error      string          `json:"error,omitempty"`
	Timestamp  strfmt.DateTime `json:"timestamp"`
}

// NewResult creates a result answering the given message, stamping identity
// and lineage fields. The caller fills outcome fields on the returned value.
func NewResult(msg TaskMessage, status Status) AgentResult {
	return AgentResult{
		ID:        uuidx.New(),
		MessageID: msg.ID,
		From:      msg.To,
		TraceID:   msg.TraceID,
		Status:    status,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// Settled reports whether the result needs no further attempts: the step
// either succeeded outright or produced partial output worth keeping.
func (r AgentResult) Settled() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

// Failed reports whether the attempt produced no usable output.
func (r AgentResult) Failed() bool {
	return !r.Settled()
}

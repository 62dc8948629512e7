package provider

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/tool"
	"github.com/invopop/jsonschema"
)

// Provider is the opaque generation capability. Implementations must honor
// the context deadline and return promptly once it expires; everything else
// about the call's semantics (model quality, refusals, tool choice) is the
// backend's business.
type Provider interface {
	Complete(context.Context, CompletionParams) (Completion, error)
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn handed to the backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionParams carries everything a backend needs for one call.
type CompletionParams struct {
	// RunID identifies the request this completion belongs to, for logging.
	RunID uuid.UUID

	// Instructions is the system prompt.
	Instructions string

	// Messages holds the conversation turns, oldest first.
	Messages []Message

	// Tools the model may call. Empty means no function calling.
	Tools []tool.Definition

	// MaxOutputTokens caps the response length. Zero means backend default.
	MaxOutputTokens int

	// Temperature for sampling.
	Temperature float64

	// ResponseSchema, when set, asks for output conforming to a JSON schema.
	// Backends fold it into the instructions; the caller still has to
	// validate what comes back.
	ResponseSchema *StructuredOutput

	// Prevents unkeyed literals
	_ struct{}
}

// Completion is the backend's answer to one call.
type Completion struct {
	// Content is the generated text. Empty when the model only requested
	// tool calls.
	Content string

	// ToolCalls the model requested, in the order it emitted them.
	ToolCalls []ToolCall

	// TokensUsed is the total token count the backend reported, zero when
	// the backend does not report usage.
	TokensUsed int
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// StructuredOutput names a JSON schema the response should conform to.
type StructuredOutput struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Instructions renders the system prompt with the response schema appended,
// when one was requested. Both backends use this so schema handling stays
// identical regardless of provider.
func (p CompletionParams) RenderInstructions() string {
	if p.ResponseSchema == nil || p.ResponseSchema.Schema == nil {
		return p.Instructions
	}

	raw, err := json.Marshal(p.ResponseSchema.Schema)
	if err != nil {
		return p.Instructions
	}

	var sb strings.Builder
	sb.WriteString(p.Instructions)
	sb.WriteString("\n\nRespond with a single JSON object matching this schema")
	if p.ResponseSchema.Name != "" {
		sb.WriteString(" (")
		sb.WriteString(p.ResponseSchema.Name)
		sb.WriteString(")")
	}
	sb.WriteString(". Output only the JSON, no prose:\n")
	sb.Write(raw)
	return sb.String()
}

package messages

import (
	"fmt"
	"strings"
)

// ContextKind classifies where a context item came from. Prior step outputs
// outrank memory hits and conversation turns in the default weighting.
type ContextKind string

const (
	KindMemory       ContextKind = "memory"
	KindConversation ContextKind = "conversation"
	KindPriorResult  ContextKind = "prior_result"
)

// ContextItem is a scored snippet of supporting material attached to a task
// before dispatch.
type ContextItem struct {
	Kind      ContextKind `json:"kind"`
	Content   string      `json:"content"`
	Source    string      `json:"source,omitempty"`
	Relevance float64     `json:"relevance"`
}

// ContextItems is an ordered collection of context items.
type ContextItems []ContextItem

const (
	contextBlockOpen  = "--- context ---"
	contextBlockClose = "--- end context ---"
)

// Render serializes the items into the delimited block the executor appends
// to the specialist's user turn. Each item becomes one
// "[kind|source|relevance] content" paragraph; an empty collection renders
// as the empty string so no block is emitted at all.
func (c ContextItems) Render() string {
	if len(c) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(contextBlockOpen)
	for _, item := range c {
		sb.WriteString("\n\n")
		fmt.Fprintf(&sb, "[%s|%s|%.2f] %s", item.Kind, item.Source, item.Relevance, item.Content)
	}
	sb.WriteString("\n\n")
	sb.WriteString(contextBlockClose)
	return sb.String()
}

// RetryContext wraps a failure explanation as the corrective context item
// the recovery layer appends when deriving a retry message.
func RetryContext(failure string) ContextItem {
	return ContextItem{
		Kind:      KindPriorResult,
		Content:   failure,
		Source:    "retry_system",
		Relevance: 1.0,
	}
}

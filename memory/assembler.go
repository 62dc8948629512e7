package memory

import (
	"context"
	"log/slog"
	"slices"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/provider"
)

const (
	// DefaultMaxItems bounds the assembled context size.
	DefaultMaxItems = 10

	memoryHitLimit    = 5
	conversationTurns = 6

	// Conversation turns get a fixed relevance regardless of recency; prior
	// step outputs always outrank both memory and conversation because they
	// are causal inputs to the current step.
	conversationRelevance = 0.7
	priorResultRelevance  = 0.9
)

// Assembler gathers supporting material for a task: long-term memory hits,
// recent conversation turns, and prior step outputs, ranked by relevance
// and truncated to a bounded size.
type Assembler struct {
	searcher Searcher
	maxItems int
}

var (
	// WithSearcher wires the external memory-search capability. Without one
	// the assembler simply skips the memory pass.
	WithSearcher = opts.ForName[Assembler, Searcher]("searcher")
	// WithMaxItems overrides the assembled context size bound.
	WithMaxItems = opts.ForName[Assembler, int]("maxItems")
)

// NewAssembler creates a context assembler. It panics on misconfigured
// options, matching the construction style for startup-time wiring.
func NewAssembler(options ...opts.Option[Assembler]) *Assembler {
	a := &Assembler{maxItems: DefaultMaxItems}
	if err := opts.Apply(a, options); err != nil {
		panic(err)
	}
	return a
}

// BuildContext assembles the ranked, size-bounded context for one task.
// Memory search failure is logged and skipped so that absent memory never
// aborts a task. The returned list is sorted by descending relevance,
// stable on ties in insertion order: memory, then conversation, then prior
// results.
func (a *Assembler) BuildContext(ctx context.Context, instruction string, history []provider.Message, prior []messages.AgentResult) messages.ContextItems {
	items := make(messages.ContextItems, 0, a.maxItems)

	if a.searcher != nil {
		hits, err := a.searcher.Search(ctx, instruction, memoryHitLimit)
		if err != nil {
			slog.Warn("memory search failed, continuing without memory", slogx.Error(err))
		}
		if len(hits) > memoryHitLimit {
			hits = hits[:memoryHitLimit]
		}
		for _, hit := range hits {
			items = append(items, messages.ContextItem{
				Kind:      messages.KindMemory,
				Content:   hit.Content,
				Source:    hit.Source,
				Relevance: hit.Score,
			})
		}
	}

	turns := history
	if len(turns) > conversationTurns {
		turns = turns[len(turns)-conversationTurns:]
	}
	for _, turn := range turns {
		items = append(items, messages.ContextItem{
			Kind:      messages.KindConversation,
			Content:   turn.Content,
			Source:    string(turn.Role),
			Relevance: conversationRelevance,
		})
	}

	for _, res := range prior {
		items = append(items, messages.ContextItem{
			Kind:      messages.KindPriorResult,
			Content:   res.Output,
			Source:    res.From,
			Relevance: priorResultRelevance,
		})
	}

	slices.SortStableFunc(items, func(a, b messages.ContextItem) int {
		switch {
		case a.Relevance > b.Relevance:
			return -1
		case a.Relevance < b.Relevance:
			return 1
		default:
			return 0
		}
	})
	if len(items) > a.maxItems {
		items = items[:a.maxItems]
	}
	return items
}

package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext_ordering(t *testing.T) {
	searcher := SearchFunc(func(_ context.Context, _ string, _ int) ([]Hit, error) {
		return []Hit{
			{Content: "highly relevant fact", Source: "memory_search", Score: 0.95},
			{Content: "barely relevant fact", Source: "memory_search", Score: 0.2},
		}, nil
	})
	a := NewAssembler(WithSearcher(searcher))

	history := []provider.Message{
		{Role: provider.RoleUser, Content: "earlier question"},
	}
	prior := []messages.AgentResult{
		{From: "researcher", Output: "prior step output", Status: messages.StatusSuccess},
	}

	items := a.BuildContext(context.Background(), "current task", history, prior)
	require.Len(t, items, 4)

	// descending relevance: 0.95 memory, 0.9 prior, 0.7 conversation, 0.2 memory
	assert.Equal(t, "highly relevant fact", items[0].Content)
	assert.Equal(t, messages.KindPriorResult, items[1].Kind)
	assert.Equal(t, "prior step output", items[1].Content)
	assert.Equal(t, "researcher", items[1].Source)
	assert.Equal(t, messages.KindConversation, items[2].Kind)
	assert.Equal(t, "barely relevant fact", items[3].Content)
}

func TestBuildContext_boundedSize(t *testing.T) {
	a := NewAssembler(WithMaxItems(3))

	history := make([]provider.Message, 6)
	for i := range history {
		history[i] = provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	prior := []messages.AgentResult{
		{From: "researcher", Output: "step one"},
		{From: "writer", Output: "step two"},
	}

	items := a.BuildContext(context.Background(), "task", history, prior)
	require.Len(t, items, 3)
	// prior results sort above conversation turns
	assert.Equal(t, messages.KindPriorResult, items[0].Kind)
	assert.Equal(t, messages.KindPriorResult, items[1].Kind)
	assert.Equal(t, messages.KindConversation, items[2].Kind)
}

func TestBuildContext_recentTurnsOnly(t *testing.T) {
	a := NewAssembler(WithMaxItems(20))

	history := make([]provider.Message, 10)
	for i := range history {
		history[i] = provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}

	items := a.BuildContext(context.Background(), "task", history, nil)
	require.Len(t, items, 6)
	assert.Equal(t, "turn 4", items[0].Content)
	assert.Equal(t, "turn 9", items[5].Content)
}

func TestBuildContext_searchFailureTolerated(t *testing.T) {
	searcher := SearchFunc(func(_ context.Context, _ string, _ int) ([]Hit, error) {
		return nil, fmt.Errorf("vector store is down")
	})
	a := NewAssembler(WithSearcher(searcher))

	history := []provider.Message{{Role: provider.RoleUser, Content: "hello"}}
	items := a.BuildContext(context.Background(), "task", history, nil)

	require.Len(t, items, 1)
	assert.Equal(t, messages.KindConversation, items[0].Kind)
}

func TestBuildContext_noSearcher(t *testing.T) {
	a := NewAssembler()
	items := a.BuildContext(context.Background(), "task", nil, nil)
	assert.Empty(t, items)
}

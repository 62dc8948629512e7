package trace

import (
	"context"
	"strings"
	"testing"

	"github.com/hyphalabs/quorum/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedStep(t *testing.T, s *Store, to string) messages.TaskMessage {
	t.Helper()
	msg, err := messages.NewTaskMessage("coordinator", to, "investigate "+to)
	require.NoError(t, err)
	s.StartStep(msg)
	return msg
}

func TestStore_stepLifecycle(t *testing.T) {
	s := NewStore()
	msg := startedStep(t, s, "researcher")

	steps := s.Steps(msg.TraceID)
	require.Len(t, steps, 1)
	assert.False(t, steps[0].Done())

	result := messages.NewResult(msg, messages.StatusSuccess)
	result.Output = "findings"
	result.TokensUsed = 120
	s.CompleteStep(result)

	steps = s.Steps(msg.TraceID)
	require.Len(t, steps, 1)
	require.True(t, steps[0].Done())
	assert.Equal(t, "findings", steps[0].Result.Output)
	assert.False(t, steps[0].EndTime.IsZero())
}

func TestStore_orphanResultIsDropped(t *testing.T) {
	s := NewStore()
	msg := startedStep(t, s, "researcher")

	other, err := messages.NewTaskMessage("coordinator", "writer", "write",
		messages.WithTraceID(msg.TraceID))
	require.NoError(t, err)

	s.CompleteStep(messages.NewResult(other, messages.StatusSuccess))

	steps := s.Steps(msg.TraceID)
	require.Len(t, steps, 1)
	assert.False(t, steps[0].Done())
}

func TestStore_summary(t *testing.T) {
	s := NewStore()

	first := startedStep(t, s, "researcher")
	second, err := messages.NewTaskMessage("coordinator", "writer", "write it up",
		messages.WithTraceID(first.TraceID))
	require.NoError(t, err)
	s.StartStep(second)

	r1 := messages.NewResult(first, messages.StatusSuccess)
	r1.TokensUsed = 100
	r1.ToolsUsed = []messages.ToolUse{{Name: "memory_search"}}
	s.CompleteStep(r1)

	t.Run("running while a step is open", func(t *testing.T) {
		sum := s.Summary(first.TraceID)
		assert.Equal(t, 2, sum.TotalSteps)
		assert.Equal(t, 1, sum.CompletedSteps)
		assert.Equal(t, StatusRunning, sum.Status)
	})

	t.Run("completed once every step settles", func(t *testing.T) {
		r2 := messages.NewResult(second, messages.StatusSuccess)
		r2.TokensUsed = 50
		s.CompleteStep(r2)

		sum := s.Summary(first.TraceID)
		assert.Equal(t, 2, sum.CompletedSteps)
		assert.Equal(t, 150, sum.TokensUsed)
		assert.Equal(t, []string{"researcher", "writer"}, sum.Specialists)
		assert.Equal(t, []string{"memory_search"}, sum.Tools)
		assert.Equal(t, StatusCompleted, sum.Status)
	})
}

func TestStore_summaryErrorStatus(t *testing.T) {
	s := NewStore()
	msg := startedStep(t, s, "researcher")

	result := messages.NewResult(msg, messages.StatusTimeout)
	s.CompleteStep(result)

	assert.Equal(t, StatusError, s.Summary(msg.TraceID).Status)
}

func TestStore_isolatedTraces(t *testing.T) {
	s := NewStore()
	a := startedStep(t, s, "researcher")
	b := startedStep(t, s, "writer")

	require.NotEqual(t, a.TraceID, b.TraceID)
	assert.Len(t, s.Steps(a.TraceID), 1)
	assert.Len(t, s.Steps(b.TraceID), 1)
}

func TestFormat(t *testing.T) {
	s := NewStore()
	msg := startedStep(t, s, "researcher")

	result := messages.NewResult(msg, messages.StatusSuccess)
	result.Output = strings.Repeat("a very long finding ", 10)
	s.CompleteStep(result)

	report := s.Format(msg.TraceID)
	assert.Contains(t, report, "1/1 steps")
	assert.Contains(t, report, "researcher")
	assert.Contains(t, report, "status=completed")
	// long output is truncated
	assert.NotContains(t, report, result.Output)
}

func TestHooks_fanOut(t *testing.T) {
	a, b := NewStore(), NewStore()
	hooks := Hooks{a, b}

	msg, err := messages.NewTaskMessage("coordinator", "researcher", "look around")
	require.NoError(t, err)
	hooks.OnStepStart(context.Background(), msg)
	hooks.OnStepEnd(context.Background(), messages.NewResult(msg, messages.StatusSuccess))

	for _, s := range []*Store{a, b} {
		steps := s.Steps(msg.TraceID)
		require.Len(t, steps, 1)
		assert.True(t, steps[0].Done())
	}
}

package quorum

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/pkg/uuidx"
	"github.com/hyphalabs/quorum/provider"
)

// degradedAnswer is what the user sees when nothing usable came back.
const degradedAnswer = "I wasn't able to complete that request right now. Please try again in a moment."

// MergeStrategy turns multiple settled specialist results into one answer.
// It only runs when there are at least two settled results; a single result
// is passed through verbatim without a merge.
type MergeStrategy interface {
	Merge(ctx context.Context, userMessage string, results []messages.AgentResult) (string, error)
}

// synthesize reduces the step results to the user-facing answer. Unsettled
// results are filtered out first; zero settled results degrade to an
// apology, one passes through verbatim, more than one go through the merge
// strategy. A merge failure falls back to plain concatenation so the user
// always gets the work that was done.
func (c *Coordinator) synthesize(ctx context.Context, userMessage string, results []messages.AgentResult) string {
	var settled []messages.AgentResult
	for _, r := range results {
		if r.Settled() && strings.TrimSpace(r.Output) != "" {
			settled = append(settled, r)
		}
	}

	switch len(settled) {
	case 0:
		return degradedAnswer
	case 1:
		return settled[0].Output
	}

	answer, err := c.merge.Merge(ctx, userMessage, settled)
	if err != nil {
		slog.Warn("merge failed, concatenating results", slogx.Error(err))
		return ConcatMerge{}.concat(settled)
	}
	return answer
}

// GenerateMerge asks the backend to weave the results into one coherent
// answer. The individual contributions are labeled for the model's benefit,
// but the merged answer is instructed to read as a single voice and never
// mention the contributors.
type GenerateMerge struct {
	Provider provider.Provider
}

const mergeInstructions = `You are composing the final answer to a user's request. You are given the user's request and several working drafts, each covering part of it.

Weave the drafts into one coherent, complete answer in a single voice. Resolve overlaps and contradictions in favor of the more specific draft. Never mention the drafts, their labels, or that multiple contributors were involved.`

func (m *GenerateMerge) Merge(ctx context.Context, userMessage string, results []messages.AgentResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("Request:\n")
	sb.WriteString(userMessage)
	sb.WriteString("\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "\nDraft %d (%s):\n%s\n", i+1, r.From, r.Output)
	}

	completion, err := m.Provider.Complete(ctx, provider.CompletionParams{
		RunID:        uuidx.New(),
		Instructions: mergeInstructions,
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: sb.String()}},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(completion.Content) == "" {
		return "", fmt.Errorf("merge produced no output")
	}
	return completion.Content, nil
}

// ConcatMerge joins the results with blank lines, in step order. It is the
// zero-cost alternative for callers who would rather not spend another
// generation on synthesis, and the fallback when generation fails.
type ConcatMerge struct{}

func (ConcatMerge) Merge(_ context.Context, _ string, results []messages.AgentResult) (string, error) {
	return ConcatMerge{}.concat(results), nil
}

func (ConcatMerge) concat(results []messages.AgentResult) string {
	outputs := make([]string, 0, len(results))
	for _, r := range results {
		outputs = append(outputs, strings.TrimSpace(r.Output))
	}
	return strings.Join(outputs, "\n\n")
}

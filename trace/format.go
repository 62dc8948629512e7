package trace

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/messages"
)

var (
	okIcon      = color.New(color.FgGreen).Sprint("✓")
	failIcon    = color.New(color.FgRed).Sprint("✗")
	partialIcon = color.New(color.FgYellow).Sprint("~")
	pendingIcon = color.New(color.FgCyan).Sprint("…")
)

const (
	snippetLen = 60
	timeUnit   = time.Millisecond
)

// Format renders the trace as a deterministic human-readable report, one
// line per step in dispatch order: status icon, actor, duration, and a
// truncated instruction/output pair. It is meant for logs and debugging.
func (s *Store) Format(traceID uuid.UUID) string {
	steps := s.Steps(traceID)
	sum := s.Summary(traceID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "trace %s: %d/%d steps, %d tokens, %s, status=%s\n",
		traceID, sum.CompletedSteps, sum.TotalSteps, sum.TokensUsed, sum.Duration, sum.Status)
	for i, step := range steps {
		fmt.Fprintf(&sb, "  %2d. %s %-12s %s\n", i+1, stepIcon(step), step.Message.To, snippet(step.Message.Instruction))
		if step.Done() {
			fmt.Fprintf(&sb, "      %s %s → %s\n", step.Result.Status, step.Result.Duration.Round(timeUnit), snippet(step.Result.Output))
		}
	}
	return sb.String()
}

func stepIcon(step Step) string {
	if !step.Done() {
		return pendingIcon
	}
	switch step.Result.Status {
	case messages.StatusSuccess:
		return okIcon
	case messages.StatusPartial:
		return partialIcon
	default:
		return failIcon
	}
}

func snippet(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if len(text) > snippetLen {
		return text[:snippetLen] + "…"
	}
	return text
}

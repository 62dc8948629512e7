package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/provider"
	"github.com/hyphalabs/quorum/specialist"
	"github.com/hyphalabs/quorum/tool"
)

// Dispatcher is the single contract shared by executors, recovery policies,
// and the coordinator: a named component that turns a task message into a
// result. Recovery policies compose by wrapping values of this interface.
type Dispatcher interface {
	Name() string
	Execute(ctx context.Context, msg messages.TaskMessage) messages.AgentResult
}

// ConfidenceFunc scores an output in [0,1] for the recovery layer's triage.
type ConfidenceFunc func(output string) float64

// Executor dispatches task messages to one specialist profile through a
// generation provider.
type Executor struct {
	profile    *specialist.Profile
	provider   provider.Provider
	confidence ConfidenceFunc
}

// WithConfidence replaces the default confidence heuristic.
var WithConfidence = opts.ForName[Executor, ConfidenceFunc]("confidence")

// New creates an executor for the given profile and provider. It panics on
// nil arguments or misconfigured options, matching the construction style
// for startup-time wiring.
func New(profile *specialist.Profile, prov provider.Provider, options ...opts.Option[Executor]) *Executor {
	if profile == nil {
		panic("executor: profile is required")
	}
	if prov == nil {
		panic("executor: provider is required")
	}
	e := &Executor{
		profile:    profile,
		provider:   prov,
		confidence: HeuristicConfidence,
	}
	if err := opts.Apply(e, options); err != nil {
		panic(err)
	}
	return e
}

// Name returns the wrapped specialist's name.
func (e *Executor) Name() string {
	return e.profile.Name()
}

// Execute runs one attempt. The message's timeout bounds the provider call;
// expiry yields a timeout result, any other provider failure an error
// result. An empty completion is also an error, so a success status always
// has output behind it. On success the result carries the output, the
// confidence score, token usage, tool calls filtered to the message's
// allowed set, and the wall-clock duration.
func (e *Executor) Execute(ctx context.Context, msg messages.TaskMessage) messages.AgentResult {
	start := time.Now()

	callCtx := ctx
	if msg.Constraints.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, msg.Constraints.Timeout)
		defer cancel()
	}

	completion, err := e.provider.Complete(callCtx, provider.CompletionParams{
		RunID:           msg.TraceID,
		Instructions:    e.renderInstructions(msg),
		Messages:        []provider.Message{{Role: provider.RoleUser, Content: renderUserTurn(msg)}},
		Tools:           e.allowedTools(msg),
		MaxOutputTokens: msg.Constraints.MaxOutputTokens,
		Temperature:     msg.Constraints.Temperature,
	})

	result := messages.NewResult(msg, messages.StatusSuccess)
	result.Duration = time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			result.Status = messages.StatusTimeout
			result.Error = "deadline exceeded"
			return result
		}
		result.Status = messages.StatusError
		result.Error = err.Error()
		return result
	}

	if strings.TrimSpace(completion.Content) == "" {
		result.Status = messages.StatusError
		result.Error = "provider returned empty output"
		return result
	}

	result.Output = completion.Content
	result.TokensUsed = completion.TokensUsed
	result.Confidence = e.confidence(completion.Content)
	for _, tc := range completion.ToolCalls {
		if !msg.AllowsTool(tc.Name) {
			slog.Warn("dropping tool call outside allowed set",
				slogx.Specialist(e.profile.Name()),
				slog.String("tool", tc.Name),
				slogx.TraceID(msg.TraceID))
			continue
		}
		result.ToolsUsed = append(result.ToolsUsed, messages.ToolUse{
			Name: tc.Name,
			Args: tc.Arguments,
		})
	}
	return result
}

// renderInstructions combines the profile's system instructions with a
// restatement of the message constraints so the model knows its budget.
func (e *Executor) renderInstructions(msg messages.TaskMessage) string {
	var sb strings.Builder
	sb.WriteString(e.profile.Instructions())
	sb.WriteString("\n\nOperating constraints:\n")
	fmt.Fprintf(&sb, "- Keep your answer under roughly %d tokens.\n", msg.Constraints.MaxOutputTokens)
	fmt.Fprintf(&sb, "- You have %s to respond.\n", msg.Constraints.Timeout)
	if len(msg.Constraints.AllowedTools) > 0 {
		fmt.Fprintf(&sb, "- You may call at most %d tools, limited to: %s.\n",
			msg.Constraints.MaxToolCalls, strings.Join(msg.Constraints.AllowedTools, ", "))
	} else {
		sb.WriteString("- No tools are available for this task.\n")
	}
	return sb.String()
}

// allowedTools intersects the profile's tool grants with the message's
// allowed set.
func (e *Executor) allowedTools(msg messages.TaskMessage) []tool.Definition {
	if len(msg.Constraints.AllowedTools) == 0 {
		return nil
	}
	var defs []tool.Definition
	for _, def := range e.profile.Tools() {
		if msg.AllowsTool(def.Name) {
			defs = append(defs, def)
		}
	}
	return defs
}

var uncertaintyPhrases = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i do not know",
}

// HeuristicConfidence is the default scoring function: 0 for empty output,
// 0.3 for very short output, 0.4 when the output hedges with an explicit
// uncertainty phrase, 0.8 otherwise. It is a deliberately crude triage
// signal for retry and validation decisions, not a calibrated probability;
// substitute a better signal through WithConfidence when one exists.
func HeuristicConfidence(output string) float64 {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return 0
	}
	if len(trimmed) < 50 {
		return 0.3
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			return 0.4
		}
	}
	return 0.8
}

// renderUserTurn appends the rendered context block, when present, to the
// instruction text.
func renderUserTurn(msg messages.TaskMessage) string {
	block := msg.Context.Render()
	if block == "" {
		return msg.Instruction
	}
	return msg.Instruction + "\n\n" + block
}

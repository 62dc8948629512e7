package quorum

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/provider"
	"github.com/hyphalabs/quorum/specialist"
	"github.com/hyphalabs/quorum/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callKind classifies provider calls by the coordinator phase making them.
type callKind string

const (
	callPlan   callKind = "plan"
	callDirect callKind = "direct"
	callMerge  callKind = "merge"
	callStep   callKind = "step"
)

type providerCall struct {
	kind   callKind
	params provider.CompletionParams
}

// scriptedProvider routes each call to a phase-specific response.
type scriptedProvider struct {
	plan   func(params provider.CompletionParams) (provider.Completion, error)
	direct func(params provider.CompletionParams) (provider.Completion, error)
	merge  func(params provider.CompletionParams) (provider.Completion, error)
	step   func(params provider.CompletionParams) (provider.Completion, error)

	mu    sync.Mutex
	calls []providerCall
}

func classify(params provider.CompletionParams) callKind {
	switch {
	case params.ResponseSchema != nil:
		return callPlan
	case params.Instructions == directInstructions:
		return callDirect
	case params.Instructions == mergeInstructions:
		return callMerge
	default:
		return callStep
	}
}

func (p *scriptedProvider) Complete(_ context.Context, params provider.CompletionParams) (provider.Completion, error) {
	kind := classify(params)
	p.mu.Lock()
	p.calls = append(p.calls, providerCall{kind: kind, params: params})
	p.mu.Unlock()

	switch kind {
	case callPlan:
		return p.plan(params)
	case callDirect:
		return p.direct(params)
	case callMerge:
		return p.merge(params)
	default:
		return p.step(params)
	}
}

func (p *scriptedProvider) callsOf(kind callKind) []providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []providerCall
	for _, c := range p.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func planCompletion(raw string) func(provider.CompletionParams) (provider.Completion, error) {
	return func(provider.CompletionParams) (provider.Completion, error) {
		return provider.Completion{Content: raw}, nil
	}
}

func textCompletion(text string) func(provider.CompletionParams) (provider.Completion, error) {
	return func(provider.CompletionParams) (provider.Completion, error) {
		return provider.Completion{Content: text}, nil
	}
}

func testRegistry() *specialist.Registry {
	r := specialist.NewRegistry()
	r.Register(specialist.New(
		specialist.Name("researcher"),
		specialist.Description("finds facts"),
		specialist.Instructions("You are a researcher."),
	))
	r.Register(specialist.New(
		specialist.Name("writer"),
		specialist.Description("writes prose"),
		specialist.Instructions("You are a writer."),
	))
	r.Register(specialist.New(
		specialist.Name("critic"),
		specialist.Description("reviews drafts"),
		specialist.Instructions("You are a critic."),
	))
	return r
}

// stepStarts records dispatched steps, for asserting what actually ran.
type stepStarts struct {
	mu      sync.Mutex
	started []messages.TaskMessage
}

func (h *stepStarts) OnStepStart(_ context.Context, msg messages.TaskMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, msg)
}

func (h *stepStarts) OnStepEnd(context.Context, messages.AgentResult) {}
func (h *stepStarts) OnError(context.Context, error)                  {}

func (h *stepStarts) snapshot() []messages.TaskMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]messages.TaskMessage(nil), h.started...)
}

func newTestCoordinator(prov provider.Provider) (*Coordinator, *stepStarts) {
	hook := &stepStarts{}
	co := New(
		WithProvider(prov),
		WithRegistry(testRegistry()),
		WithHooks(hook),
		WithMaxRetries(0),
		WithBackoff(time.Millisecond),
	)
	return co, hook
}

func TestHandle_directWhenPlannerDeclines(t *testing.T) {
	prov := &scriptedProvider{
		plan:   planCompletion(`{"delegate": false}`),
		direct: textCompletion("a direct answer"),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "hello there", nil)

	assert.Equal(t, "a direct answer", answer)
	assert.Empty(t, hook.snapshot())
	assert.Len(t, prov.callsOf(callDirect), 1)
}

func TestHandle_directWhenPlanIsMalformed(t *testing.T) {
	prov := &scriptedProvider{
		plan:   planCompletion("I think we should probably delegate this one"),
		direct: textCompletion("recovered with a direct answer"),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "do something", nil)

	assert.Equal(t, "recovered with a direct answer", answer)
	assert.Empty(t, hook.snapshot())
}

func TestHandle_directWhenPlanNamesUnknownSpecialist(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "router",
			"steps": [{"specialist": "astrologer", "instruction": "consult the stars"}]
		}`),
		direct: textCompletion("down to earth answer"),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "what does my future hold", nil)

	assert.Equal(t, "down to earth answer", answer)
	assert.Empty(t, hook.snapshot())
}

func TestHandle_directWhenPlannerErrors(t *testing.T) {
	prov := &scriptedProvider{
		plan: func(provider.CompletionParams) (provider.Completion, error) {
			return provider.Completion{}, fmt.Errorf("backend down")
		},
		direct: textCompletion("still answered"),
	}
	co, _ := newTestCoordinator(prov)

	assert.Equal(t, "still answered", co.Handle(context.Background(), "hi", nil))
}

func TestHandle_directHistoryWindow(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{"delegate": false}`),
		direct: func(params provider.CompletionParams) (provider.Completion, error) {
			// 10 trailing turns plus the current message
			require.Len(t, params.Messages, 11)
			assert.Equal(t, "turn 5", params.Messages[0].Content)
			assert.Equal(t, "the question", params.Messages[10].Content)
			return provider.Completion{Content: "ok"}, nil
		},
	}
	co, _ := newTestCoordinator(prov)

	history := make([]provider.Message, 15)
	for i := range history {
		history[i] = provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	assert.Equal(t, "ok", co.Handle(context.Background(), "the question", history))
}

func TestHandle_routerSingleResultVerbatim(t *testing.T) {
	output := strings.Repeat("the researcher's findings ", 4)
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "router",
			"steps": [{"specialist": "researcher", "instruction": "dig up the facts"}]
		}`),
		step: textCompletion(output),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "research this", nil)

	assert.Equal(t, output, answer)
	assert.Empty(t, prov.callsOf(callMerge))

	started := hook.snapshot()
	require.Len(t, started, 1)
	assert.Equal(t, CoordinatorName, started[0].From)
	assert.Equal(t, "researcher", started[0].To)
	assert.Equal(t, "dig up the facts", started[0].Instruction)

	steps := co.Trace().Steps(started[0].TraceID)
	require.Len(t, steps, 1)
	require.True(t, steps[0].Done())
	assert.Equal(t, messages.StatusSuccess, steps[0].Result.Status)
}

func TestHandle_retriedStepCompletesInTrace(t *testing.T) {
	output := strings.Repeat("findings on the second try ", 3)
	var stepCalls int
	var mu sync.Mutex
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "router",
			"steps": [{"specialist": "researcher", "instruction": "dig up the facts"}]
		}`),
		step: func(provider.CompletionParams) (provider.Completion, error) {
			mu.Lock()
			defer mu.Unlock()
			stepCalls++
			if stepCalls == 1 {
				return provider.Completion{}, fmt.Errorf("transient failure")
			}
			return provider.Completion{Content: output}, nil
		},
	}

	hook := &stepStarts{}
	co := New(
		WithProvider(prov),
		WithRegistry(testRegistry()),
		WithHooks(hook),
		WithMaxRetries(1),
		WithBackoff(time.Millisecond),
	)

	answer := co.Handle(context.Background(), "research this", nil)

	assert.Equal(t, output, answer)
	assert.Equal(t, 2, stepCalls)

	// the recovered attempt still completes the step that was started
	started := hook.snapshot()
	require.Len(t, started, 1)
	steps := co.Trace().Steps(started[0].TraceID)
	require.Len(t, steps, 1)
	require.True(t, steps[0].Done())
	assert.Equal(t, messages.StatusSuccess, steps[0].Result.Status)

	sum := co.Trace().Summary(started[0].TraceID)
	assert.Equal(t, 1, sum.CompletedSteps)
	assert.Equal(t, trace.StatusCompleted, sum.Status)
}

func TestHandle_pipelineFeedsPriorOutputForward(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "pipeline",
			"steps": [
				{"specialist": "researcher", "instruction": "gather material"},
				{"specialist": "writer", "instruction": "write it up"}
			]
		}`),
		step: func(params provider.CompletionParams) (provider.Completion, error) {
			if strings.Contains(params.Instructions, "researcher") {
				return provider.Completion{Content: strings.Repeat("raw research notes ", 4)}, nil
			}
			// the writer's turn must carry the researcher's output
			require.Contains(t, params.Messages[0].Content, "raw research notes")
			require.Contains(t, params.Messages[0].Content, "prior_result")
			return provider.Completion{Content: strings.Repeat("polished prose ", 4)}, nil
		},
		merge: textCompletion("the merged final answer"),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "write an article", nil)

	assert.Equal(t, "the merged final answer", answer)
	started := hook.snapshot()
	require.Len(t, started, 2)
	assert.Equal(t, "researcher", started[0].To)
	assert.Equal(t, "writer", started[1].To)
	assert.Equal(t, started[0].TraceID, started[1].TraceID)
}

func TestHandle_pipelineStopsAtFailedStep(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "pipeline",
			"steps": [
				{"specialist": "researcher", "instruction": "gather material"},
				{"specialist": "writer", "instruction": "write it up"}
			]
		}`),
		step: func(provider.CompletionParams) (provider.Completion, error) {
			return provider.Completion{}, fmt.Errorf("model exploded")
		},
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "write an article", nil)

	assert.Equal(t, degradedAnswer, answer)
	started := hook.snapshot()
	require.Len(t, started, 1)
	assert.Equal(t, "researcher", started[0].To)
}

func TestHandle_pipelineSynthesizesCompletedPrefix(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "pipeline",
			"steps": [
				{"specialist": "researcher", "instruction": "gather material"},
				{"specialist": "writer", "instruction": "write it up"},
				{"specialist": "critic", "instruction": "review the draft"}
			]
		}`),
		step: func(params provider.CompletionParams) (provider.Completion, error) {
			if strings.Contains(params.Instructions, "writer") {
				return provider.Completion{}, fmt.Errorf("writer is down")
			}
			return provider.Completion{Content: strings.Repeat("solid research ", 4)}, nil
		},
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "write an article", nil)

	// the critic never runs; the one settled result passes through verbatim
	started := hook.snapshot()
	require.Len(t, started, 2)
	assert.Equal(t, "researcher", started[0].To)
	assert.Equal(t, "writer", started[1].To)
	assert.Equal(t, strings.Repeat("solid research ", 4), answer)
	assert.Empty(t, prov.callsOf(callMerge))
}

func TestHandle_parallelKeepsSurvivors(t *testing.T) {
	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "parallel",
			"steps": [
				{"specialist": "researcher", "instruction": "check the numbers"},
				{"specialist": "writer", "instruction": "draft the summary"},
				{"specialist": "critic", "instruction": "list the risks"}
			]
		}`),
		step: func(params provider.CompletionParams) (provider.Completion, error) {
			if strings.Contains(params.Instructions, "writer") {
				return provider.Completion{}, fmt.Errorf("writer is down")
			}
			return provider.Completion{Content: strings.Repeat("a solid contribution ", 4)}, nil
		},
		merge: textCompletion("merged from the survivors"),
	}
	co, hook := newTestCoordinator(prov)

	answer := co.Handle(context.Background(), "assess this plan", nil)

	assert.Equal(t, "merged from the survivors", answer)
	require.Len(t, hook.snapshot(), 3)

	merges := prov.callsOf(callMerge)
	require.Len(t, merges, 1)
	prompt := merges[0].params.Messages[0].Content
	assert.Contains(t, prompt, "Draft 1")
	assert.Contains(t, prompt, "Draft 2")
	assert.NotContains(t, prompt, "Draft 3")
}

func TestHandle_emptyRegistryAnswersDirectly(t *testing.T) {
	prov := &scriptedProvider{
		direct: textCompletion("no team, still helpful"),
	}
	hook := &stepStarts{}
	co := New(
		WithProvider(prov),
		WithRegistry(specialist.NewRegistry()),
		WithHooks(hook),
	)

	answer := co.Handle(context.Background(), "hello", nil)

	assert.Equal(t, "no team, still helpful", answer)
	assert.Empty(t, prov.callsOf(callPlan))
	assert.Empty(t, hook.snapshot())
}

func TestHandle_stepMessagesCarryProfileDefaults(t *testing.T) {
	registry := specialist.NewRegistry()
	registry.Register(specialist.New(
		specialist.Name("researcher"),
		specialist.Description("finds facts"),
		specialist.Instructions("You are a researcher."),
		specialist.Defaults(messages.Constraints{MaxOutputTokens: 750, Timeout: 12 * time.Second, MaxToolCalls: 1}),
	))

	prov := &scriptedProvider{
		plan: planCompletion(`{
			"delegate": true, "pattern": "router",
			"steps": [{"specialist": "researcher", "instruction": "dig"}]
		}`),
		step: textCompletion(strings.Repeat("worthwhile findings ", 4)),
	}

	hook := &stepStarts{}
	co := New(
		WithProvider(prov),
		WithRegistry(registry),
		WithHooks(hook),
	)

	_ = co.Handle(context.Background(), "research this", nil)

	started := hook.snapshot()
	require.Len(t, started, 1)
	assert.Equal(t, 750, started[0].Constraints.MaxOutputTokens)
	assert.Equal(t, 12*time.Second, started[0].Constraints.Timeout)
	assert.Equal(t, 1, started[0].Constraints.MaxToolCalls)
	assert.NotEqual(t, uuid.Nil, started[0].TraceID)
}

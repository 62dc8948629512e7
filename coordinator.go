package quorum

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/executor"
	"github.com/hyphalabs/quorum/memory"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/pkg/uuidx"
	"github.com/hyphalabs/quorum/provider"
	"github.com/hyphalabs/quorum/recovery"
	"github.com/hyphalabs/quorum/specialist"
	"github.com/hyphalabs/quorum/trace"
)

// CoordinatorName is the From field on every message the coordinator sends.
const CoordinatorName = "coordinator"

const (
	// How many trailing conversation turns the planner and direct answers
	// see.
	directHistoryTurns = 10

	planMaxOutputTokens = 500
)

// Coordinator is the orchestration brain: it plans how to serve a user
// message, dispatches the plan through the recovery layer, and synthesizes
// the specialist results into one answer. It holds no conversation state of
// its own; callers pass history in.
type Coordinator struct {
	provider   provider.Provider
	registry   *specialist.Registry
	pool       *recovery.Pool
	assembler  *memory.Assembler
	store      *trace.Store
	hooks      trace.Hooks
	merge      MergeStrategy
	validators []recovery.Validator
	fallbacks  map[string][]string
	maxRetries int
	backoff    time.Duration
}

var (
	// WithProvider wires the generation backend. Required.
	WithProvider = opts.ForName[Coordinator, provider.Provider]("provider")
	// WithRegistry replaces the global specialist registry.
	WithRegistry = opts.ForName[Coordinator, *specialist.Registry]("registry")
	// WithPool injects a pre-built dispatch pool, e.g. one with tuned
	// breaker thresholds.
	WithPool = opts.ForName[Coordinator, *recovery.Pool]("pool")
	// WithAssembler injects a context assembler, typically one carrying a
	// memory searcher.
	WithAssembler = opts.ForName[Coordinator, *memory.Assembler]("assembler")
	// WithTraceStore replaces the execution record store.
	WithTraceStore = opts.ForName[Coordinator, *trace.Store]("store")
	// WithMergeStrategy replaces how multiple specialist results become one
	// answer.
	WithMergeStrategy = opts.ForName[Coordinator, MergeStrategy]("merge")
	// WithMaxRetries tunes the retry budget applied to every step.
	WithMaxRetries = opts.ForName[Coordinator, int]("maxRetries")
	// WithBackoff tunes the initial retry backoff applied to every step.
	WithBackoff = opts.ForName[Coordinator, time.Duration]("backoff")
)

// WithHooks appends observers notified of every step's start and end, in
// addition to the coordinator's own trace store.
func WithHooks(h trace.Hook, extra ...trace.Hook) opts.Option[Coordinator] {
	return opts.Type[Coordinator](func(c *Coordinator) error {
		c.hooks = append(c.hooks, h)
		c.hooks = append(c.hooks, extra...)
		return nil
	})
}

// WithStepValidators applies output validators to every dispatched step.
func WithStepValidators(v recovery.Validator, extra ...recovery.Validator) opts.Option[Coordinator] {
	return opts.Type[Coordinator](func(c *Coordinator) error {
		c.validators = append(c.validators, v)
		c.validators = append(c.validators, extra...)
		return nil
	})
}

// WithFallback declares that when the named specialist keeps failing, the
// listed specialists are tried in order before giving up.
func WithFallback(name string, fallbacks ...string) opts.Option[Coordinator] {
	return opts.Type[Coordinator](func(c *Coordinator) error {
		if c.fallbacks == nil {
			c.fallbacks = make(map[string][]string)
		}
		c.fallbacks[name] = fallbacks
		return nil
	})
}

// New creates a coordinator. A provider is required; everything else has a
// usable default. It panics on a missing provider or misconfigured options,
// matching the construction style for startup-time wiring.
func New(options ...opts.Option[Coordinator]) *Coordinator {
	c := &Coordinator{
		registry:   specialist.Global,
		maxRetries: recovery.DefaultMaxRetries,
		backoff:    recovery.DefaultInitialBackoff,
	}
	if err := opts.Apply(c, options); err != nil {
		panic(err)
	}
	if c.provider == nil {
		panic("quorum: coordinator needs a provider")
	}
	if c.pool == nil {
		c.pool = recovery.NewPool()
	}
	if c.assembler == nil {
		c.assembler = memory.NewAssembler()
	}
	if c.store == nil {
		c.store = trace.NewStore()
	}
	if c.merge == nil {
		c.merge = &GenerateMerge{Provider: c.provider}
	}
	c.hooks = append(trace.Hooks{c.store}, c.hooks...)
	return c
}

// Trace exposes the execution record store, for inspection after Handle
// returns.
func (c *Coordinator) Trace() *trace.Store {
	return c.store
}

// Handle serves one user message. It always returns displayable text: plan
// failures degrade to a direct answer and execution failures degrade to an
// apology, never an error or a panic.
func (c *Coordinator) Handle(ctx context.Context, userMessage string, history []provider.Message) string {
	decision := c.plan(ctx, userMessage)
	if !decision.Delegate {
		return c.direct(ctx, userMessage, history)
	}

	traceID := uuidx.New()
	slog.Info("delegating request",
		slogx.TraceID(traceID),
		slog.String("pattern", string(decision.Plan.Pattern)),
		slog.Int("steps", len(decision.Plan.Steps)))

	var results []messages.AgentResult
	switch decision.Plan.Pattern {
	case PatternRouter, PatternPipeline:
		results = c.runPipeline(ctx, traceID, decision.Plan.Steps, history)
	case PatternParallel:
		results = c.runParallel(ctx, traceID, decision.Plan.Steps, history)
	}

	answer := c.synthesize(ctx, userMessage, results)
	slog.Debug("request complete", slog.String("trace", c.store.Format(traceID)))
	return answer
}

// plan asks the backend whether and how to delegate. Any planner failure,
// transport or malformed output alike, collapses to a non-delegating
// decision.
func (c *Coordinator) plan(ctx context.Context, userMessage string) Decision {
	if c.registry.Len() == 0 {
		return Decision{Delegate: false}
	}

	completion, err := c.provider.Complete(ctx, provider.CompletionParams{
		RunID:           uuidx.New(),
		Instructions:    plannerInstructions + "\n\nAvailable specialists:\n" + c.registry.Describe(),
		Messages:        []provider.Message{{Role: provider.RoleUser, Content: userMessage}},
		MaxOutputTokens: planMaxOutputTokens,
		ResponseSchema:  planSchema(),
	})
	if err != nil {
		slog.Warn("planning failed, answering directly", slogx.Error(err))
		return Decision{Delegate: false}
	}

	decision, err := parseDecision(completion.Content)
	if err != nil {
		slog.Warn("discarding malformed plan, answering directly", slogx.Error(err))
		return Decision{Delegate: false}
	}

	// A plan naming ghosts is as useless as no plan.
	for _, step := range decision.Plan.Steps {
		if _, ok := c.registry.Get(step.Specialist); !ok {
			slog.Warn("plan names unknown specialist, answering directly",
				slogx.Specialist(step.Specialist))
			return Decision{Delegate: false}
		}
	}
	return decision
}

// direct answers without specialists, using the trailing conversation turns
// for continuity.
func (c *Coordinator) direct(ctx context.Context, userMessage string, history []provider.Message) string {
	turns := history
	if len(turns) > directHistoryTurns {
		turns = turns[len(turns)-directHistoryTurns:]
	}
	msgs := append(append([]provider.Message{}, turns...), provider.Message{
		Role:    provider.RoleUser,
		Content: userMessage,
	})

	completion, err := c.provider.Complete(ctx, provider.CompletionParams{
		RunID:        uuidx.New(),
		Instructions: directInstructions,
		Messages:     msgs,
	})
	if err != nil {
		slog.Error("direct answer failed", slogx.Error(err))
		return degradedAnswer
	}
	return completion.Content
}

// runPipeline executes steps strictly in order. Each step after the first
// sees the previous step's output as a prior result. Any unsettled step
// stops the pipeline, timeouts and cancellations included, since the next
// step would have no prior output to build on. The results so far still
// flow into synthesis.
func (c *Coordinator) runPipeline(ctx context.Context, traceID uuid.UUID, steps []PlanStep, history []provider.Message) []messages.AgentResult {
	results := make([]messages.AgentResult, 0, len(steps))
	for i, step := range steps {
		var prior []messages.AgentResult
		if i > 0 {
			prior = results[len(results)-1:]
		}
		result := c.dispatchStep(ctx, traceID, step, history, prior)
		results = append(results, result)
		if result.Failed() {
			slog.Warn("pipeline stopped at failed step",
				slogx.TraceID(traceID),
				slogx.Specialist(step.Specialist),
				slog.Int("step", i+1))
			break
		}
	}
	return results
}

// runParallel fans all steps out concurrently and waits for every one of
// them. One sibling failing never cancels the others; synthesis works with
// whatever settled.
func (c *Coordinator) runParallel(ctx context.Context, traceID uuid.UUID, steps []PlanStep, history []provider.Message) []messages.AgentResult {
	results := make([]messages.AgentResult, len(steps))
	var wg sync.WaitGroup
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step PlanStep) {
			defer wg.Done()
			results[i] = c.dispatchStep(ctx, traceID, step, history, nil)
		}(i, step)
	}
	wg.Wait()
	return results
}

// dispatchStep builds the task message for one plan step, assembles its
// context, and routes it through the pool. Dispatch refusals (unknown name,
// open circuit) come back as error results so the caller's bookkeeping
// stays uniform.
func (c *Coordinator) dispatchStep(ctx context.Context, traceID uuid.UUID, step PlanStep, history []provider.Message, prior []messages.AgentResult) messages.AgentResult {
	c.ensureDispatcher(step.Specialist)

	items := c.assembler.BuildContext(ctx, step.Instruction, history, prior)

	msgOpts := []opts.Option[messages.TaskMessage]{
		messages.WithTraceID(traceID),
		messages.WithContext(items...),
	}
	if profile, ok := c.registry.Get(step.Specialist); ok {
		constraints := profile.DefaultConstraints()
		if len(constraints.AllowedTools) == 0 {
			constraints.AllowedTools = profile.ToolNames()
		}
		msgOpts = append(msgOpts, messages.WithConstraints(constraints))
	}

	msg, err := messages.NewTaskMessage(CoordinatorName, step.Specialist, step.Instruction, msgOpts...)
	if err != nil {
		slog.Error("rejecting unbuildable step message",
			slogx.TraceID(traceID),
			slogx.Specialist(step.Specialist),
			slogx.Error(err))
		return refusalResult(traceID, step.Specialist, err)
	}

	c.hooks.OnStepStart(ctx, msg)
	result, err := c.pool.Dispatch(ctx, msg)
	if err != nil {
		c.hooks.OnError(ctx, err)
		result = messages.NewResult(msg, messages.StatusError)
		result.From = step.Specialist
		result.Error = err.Error()
	}
	c.hooks.OnStepEnd(ctx, result)
	return result
}

// ensureDispatcher lazily registers the recovery stack for a specialist the
// first time a plan names it: executor, optional validators, then either a
// fallback chain or a plain retrier. Registration is idempotent so breaker
// state persists across requests.
func (c *Coordinator) ensureDispatcher(name string) {
	if c.pool.Known(name) {
		return
	}
	profile, ok := c.registry.Get(name)
	if !ok {
		return
	}
	c.pool.Ensure(name, func() executor.Dispatcher {
		base := c.wrapValidators(executor.New(profile, c.provider))
		if fallbacks := c.fallbacks[name]; len(fallbacks) > 0 {
			var members []executor.Dispatcher
			for _, fb := range fallbacks {
				fbProfile, ok := c.registry.Get(fb)
				if !ok {
					slog.Warn("skipping unknown fallback specialist",
						slogx.Specialist(fb))
					continue
				}
				members = append(members, c.wrapValidators(executor.New(fbProfile, c.provider)))
			}
			if len(members) > 0 {
				return recovery.NewFallbackChain(base,
					recovery.WithFallbacks(members[0], members[1:]...),
					recovery.WithRetryPerAgent(c.maxRetries),
					recovery.WithFallbackBackoff(c.backoff),
				)
			}
		}
		return recovery.NewRetrier(base,
			recovery.WithMaxRetries(c.maxRetries),
			recovery.WithInitialBackoff(c.backoff),
		)
	})
}

func (c *Coordinator) wrapValidators(d executor.Dispatcher) executor.Dispatcher {
	if len(c.validators) == 0 {
		return d
	}
	return recovery.NewValidatingDispatcher(d,
		recovery.WithValidators(c.validators[0], c.validators[1:]...),
		recovery.WithValidationRetries(c.maxRetries),
	)
}

// refusalResult builds a well-formed error result for a step that never
// reached a dispatcher.
func refusalResult(traceID uuid.UUID, name string, err error) messages.AgentResult {
	return messages.AgentResult{
		ID:        uuidx.New(),
		From:      name,
		TraceID:   traceID,
		Status:    messages.StatusError,
		Error:     err.Error(),
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

const plannerInstructions = `You coordinate a team of specialists. Given the user's message, decide whether to answer it directly or delegate it.

Delegate only when a specialist's expertise clearly applies. When delegating, choose a pattern:
- "router": one specialist handles the whole request (exactly one step).
- "pipeline": steps run in order and each step builds on the previous step's output.
- "parallel": independent steps run at the same time and their outputs are merged.

Write each step's instruction as a complete, self-contained task for that specialist.`

const directInstructions = `You are a helpful assistant. Answer the user's message directly and concisely.`

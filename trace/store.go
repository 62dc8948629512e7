package trace

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyphalabs/quorum/internal/registry"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
)

// Step is one dispatch/result pair inside a trace. Result stays nil and
// EndTime zero until the step completes.
type Step struct {
	Message   messages.TaskMessage
	Result    *messages.AgentResult
	StartTime time.Time
	EndTime   time.Time
}

// Done reports whether the step has a recorded result.
func (s Step) Done() bool {
	return s.Result != nil
}

// Overall trace statuses reported by Summary.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Summary aggregates one trace.
type Summary struct {
	TraceID        uuid.UUID
	TotalSteps     int
	CompletedSteps int
	TokensUsed     int
	Duration       time.Duration
	Specialists    []string
	Tools          []string
	Status         string
}

// record holds one trace's steps. Parallel branches of the owning request
// append concurrently, so every access goes through the record's own lock.
type record struct {
	mu    sync.Mutex
	steps []*Step
}

// Store keeps traces in memory, keyed by trace id. Create one per test or
// per process and inject it where tracing is needed; there is no global
// instance.
type Store struct {
	traces registry.Registry[*record]
}

// NewStore creates an empty trace store.
func NewStore() *Store {
	return &Store{traces: registry.New[*record]()}
}

func (s *Store) trace(traceID uuid.UUID) *record {
	rec, _ := s.traces.GetOrAdd(traceID.String(), func() *record {
		return &record{}
	})
	return rec
}

// StartStep records the dispatch of a message under its trace.
func (s *Store) StartStep(msg messages.TaskMessage) {
	rec := s.trace(msg.TraceID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.steps = append(rec.steps, &Step{
		Message:   msg,
		StartTime: time.Now(),
	})
}

// CompleteStep records the result against the step whose message the result
// answers. A result for an unknown step is logged and dropped rather than
// invented into the trace.
func (s *Store) CompleteStep(result messages.AgentResult) {
	rec := s.trace(result.TraceID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, step := range rec.steps {
		if step.Message.ID == result.MessageID {
			step.Result = &result
			step.EndTime = time.Now()
			return
		}
	}
	slog.Warn("result does not match any recorded step",
		slogx.TraceID(result.TraceID),
		slog.String("message_id", result.MessageID.String()))
}

// Steps returns a snapshot of the trace's steps in dispatch order.
func (s *Store) Steps(traceID uuid.UUID) []Step {
	rec := s.trace(traceID)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Step, len(rec.steps))
	for i, step := range rec.steps {
		out[i] = *step
	}
	return out
}

// Summary aggregates the trace: step counts, token and wall-clock sums, the
// distinct specialists and tools touched, and an overall status. The status
// is error when any completed step errored, completed when every step has a
// result, and running otherwise.
func (s *Store) Summary(traceID uuid.UUID) Summary {
	steps := s.Steps(traceID)

	sum := Summary{
		TraceID:    traceID,
		TotalSteps: len(steps),
		Status:     StatusCompleted,
	}
	var specialists, tools []string
	anyError := false
	for _, step := range steps {
		if !step.Done() {
			continue
		}
		sum.CompletedSteps++
		sum.TokensUsed += step.Result.TokensUsed
		sum.Duration += step.Result.Duration
		if !slices.Contains(specialists, step.Result.From) {
			specialists = append(specialists, step.Result.From)
		}
		for _, tu := range step.Result.ToolsUsed {
			if !slices.Contains(tools, tu.Name) {
				tools = append(tools, tu.Name)
			}
		}
		if step.Result.Status == messages.StatusError || step.Result.Status == messages.StatusTimeout {
			anyError = true
		}
	}
	slices.Sort(specialists)
	slices.Sort(tools)
	sum.Specialists = specialists
	sum.Tools = tools

	switch {
	case anyError:
		sum.Status = StatusError
	case sum.CompletedSteps < sum.TotalSteps:
		sum.Status = StatusRunning
	}
	return sum
}

var _ Hook = (*Store)(nil)

// OnStepStart implements Hook by recording the dispatch.
func (s *Store) OnStepStart(_ context.Context, msg messages.TaskMessage) {
	s.StartStep(msg)
}

// OnStepEnd implements Hook by recording the completion.
func (s *Store) OnStepEnd(_ context.Context, result messages.AgentResult) {
	s.CompleteStep(result)
}

// OnError implements Hook. Step-level failures arrive as results, so this
// only logs infrastructure errors surfaced outside a step.
func (s *Store) OnError(_ context.Context, err error) {
	slog.Error("trace observed an error", slogx.Error(err))
}

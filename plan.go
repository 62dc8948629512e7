package quorum

import (
	"fmt"
	"strings"

	"github.com/hyphalabs/quorum/provider"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Pattern is the execution topology the planner chose for a request.
type Pattern string

const (
	// PatternRouter dispatches a single step to one specialist.
	PatternRouter Pattern = "router"
	// PatternPipeline dispatches steps strictly in order, feeding each
	// step's output into the next.
	PatternPipeline Pattern = "pipeline"
	// PatternParallel dispatches all steps concurrently and joins on all of
	// them before synthesis.
	PatternParallel Pattern = "parallel"
)

// PlanStep is one unit of the plan: which specialist does what.
type PlanStep struct {
	Specialist  string   `json:"specialist"`
	Instruction string   `json:"instruction"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// ExecutionPlan is the planner's delegation decision. It is produced once
// per request and never persisted.
type ExecutionPlan struct {
	Pattern Pattern    `json:"pattern"`
	Steps   []PlanStep `json:"steps"`
}

// Decision is the planner's answer: handle directly, or run a plan.
type Decision struct {
	Delegate bool
	Plan     ExecutionPlan
}

// planDecision is the wire shape requested from the planner.
type planDecision struct {
	Delegate bool       `json:"delegate"`
	Pattern  string     `json:"pattern,omitempty" jsonschema:"enum=router,enum=pipeline,enum=parallel"`
	Steps    []PlanStep `json:"steps,omitempty"`
}

// Structured outputs need a constrained schema subset.
var planReflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// planSchema describes the decision shape the planner must produce.
func planSchema() *provider.StructuredOutput {
	return &provider.StructuredOutput{
		Name:        "delegation_decision",
		Description: "whether and how to delegate the request to specialists",
		Schema:      planReflector.Reflect(planDecision{}),
	}
}

// parseDecision validates the planner's raw output into a Decision. The
// planner is a language model, so the output is treated as hostile until
// proven well-formed: anything that does not parse into a valid plan is an
// error the caller degrades to direct handling, never a crash.
func parseDecision(raw string) (Decision, error) {
	raw = strings.TrimSpace(raw)
	// tolerate fenced output, models love markdown
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	if !gjson.Valid(raw) {
		return Decision{}, fmt.Errorf("planner output is not valid JSON")
	}
	root := gjson.Parse(raw)

	delegate := root.Get("delegate")
	if !delegate.Exists() || !delegate.IsBool() {
		return Decision{}, fmt.Errorf("planner output is missing the delegate flag")
	}
	if !delegate.Bool() {
		return Decision{Delegate: false}, nil
	}

	pattern := Pattern(root.Get("pattern").String())
	switch pattern {
	case PatternRouter, PatternPipeline, PatternParallel:
	default:
		return Decision{}, fmt.Errorf("unknown execution pattern %q", pattern)
	}

	var steps []PlanStep
	for _, el := range root.Get("steps").Array() {
		step := PlanStep{
			Specialist:  el.Get("specialist").String(),
			Instruction: el.Get("instruction").String(),
		}
		for _, dep := range el.Get("depends_on").Array() {
			step.DependsOn = append(step.DependsOn, dep.String())
		}
		if step.Specialist == "" {
			return Decision{}, fmt.Errorf("plan step %d names no specialist", len(steps))
		}
		if step.Instruction == "" {
			return Decision{}, fmt.Errorf("plan step %d has no instruction", len(steps))
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return Decision{}, fmt.Errorf("delegating plan has no steps")
	}
	if pattern == PatternRouter && len(steps) != 1 {
		return Decision{}, fmt.Errorf("router plan must have exactly one step, got %d", len(steps))
	}

	return Decision{
		Delegate: true,
		Plan: ExecutionPlan{
			Pattern: pattern,
			Steps:   steps,
		},
	}, nil
}

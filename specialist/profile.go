package specialist

import (
	"slices"

	"github.com/fogfish/opts"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/tool"
)

// Profile is the static configuration for one specialist: a unique name, a
// description the planner uses to choose it, its system instructions, the
// tools it may call, and its default resource constraints. Profiles are
// immutable after construction; all accessors return copies of mutable
// state.
type Profile struct {
	name         string
	description  string
	instructions string
	tools        []tool.Definition
	defaults     messages.Constraints
}

var (
	Name         = opts.ForName[Profile, string]("name")
	Description  = opts.ForName[Profile, string]("description")
	Instructions = opts.ForName[Profile, string]("instructions")
	Defaults     = opts.ForName[Profile, messages.Constraints]("defaults")
)

// Tools grants the profile one or more tool definitions.
func Tools(t tool.Definition, extra ...tool.Definition) opts.Option[Profile] {
	return opts.Type[Profile](func(p *Profile) error {
		p.tools = append(p.tools, t)
		p.tools = append(p.tools, extra...)
		return nil
	})
}

// New creates an immutable specialist profile. It panics on misconfigured
// options, matching the construction style for startup-time wiring.
func New(options ...opts.Option[Profile]) *Profile {
	p := &Profile{
		defaults: messages.Constraints{
			MaxOutputTokens: messages.DefaultMaxOutputTokens,
			Timeout:         messages.DefaultTimeout,
			MaxToolCalls:    messages.DefaultMaxToolCalls,
		},
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	return p
}

// Name returns the profile's unique name.
func (p *Profile) Name() string { return p.name }

// Description returns the planner-facing summary of what this specialist is
// good at.
func (p *Profile) Description() string { return p.description }

// Instructions returns the system instructions for this specialist.
func (p *Profile) Instructions() string { return p.instructions }

// Tools returns a copy of the tool definitions this specialist may use.
func (p *Profile) Tools() []tool.Definition {
	return slices.Clone(p.tools)
}

// ToolNames returns the names of every granted tool.
func (p *Profile) ToolNames() []string {
	names := make([]string, len(p.tools))
	for i, t := range p.tools {
		names[i] = t.Name
	}
	return names
}

// DefaultConstraints returns the constraints applied to messages addressed
// to this specialist when the caller does not override them.
func (p *Profile) DefaultConstraints() messages.Constraints {
	c := p.defaults
	c.AllowedTools = slices.Clone(c.AllowedTools)
	return c
}

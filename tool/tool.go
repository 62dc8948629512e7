package tool

import (
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Definition declares one tool a specialist can be allowed to call. The
// parameter map keeps insertion order so rendered schemas and prompt text
// stay deterministic.
type Definition struct {
	Name        string
	Description string
	Parameters  *orderedmap.OrderedMap[string, Param]
}

var (
	// WithName sets the tool's unique name.
	WithName = opts.ForName[Definition, string]("Name")
	// WithDescription sets the description shown to the model.
	WithDescription = opts.ForName[Definition, string]("Description")
)

// WithParam appends one named parameter to the definition.
func WithParam(name string, p Param) opts.Option[Definition] {
	return opts.Type[Definition](func(d *Definition) error {
		if d.Parameters == nil {
			d.Parameters = orderedmap.New[string, Param]()
		}
		d.Parameters.Set(name, p)
		return nil
	})
}

// New builds a tool definition. It panics on misconfigured options, matching
// the construction style used across the library for startup-time wiring.
func New(options ...opts.Option[Definition]) Definition {
	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		panic(err)
	}
	if def.Parameters == nil {
		def.Parameters = orderedmap.New[string, Param]()
	}
	return def
}

// ToSchema renders the parameter list as the object schema providers expect
// for function-calling declarations.
func (d Definition) ToSchema() *jsonschema.Schema {
	properties := orderedmap.New[string, *jsonschema.Schema]()
	var required []string
	for pair := d.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		properties.Set(pair.Key, &jsonschema.Schema{
			Type:        pair.Value.Type,
			Description: pair.Value.Description,
		})
		if pair.Value.Required {
			required = append(required, pair.Key)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

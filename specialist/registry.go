package specialist

import (
	"slices"
	"strings"

	"github.com/hyphalabs/quorum/internal/registry"
)

// Registry holds specialist profiles keyed by name. Register everything at
// startup; the registry is safe for concurrent reads but profiles must not
// be replaced once requests are flowing.
type Registry struct {
	profiles registry.Registry[*Profile]
}

// NewRegistry creates an empty registry. Tests and embedders create their
// own; the package-level Global is a convenience for simple programs.
func NewRegistry() *Registry {
	return &Registry{profiles: registry.New[*Profile]()}
}

// Global is the default process-wide registry.
var Global = NewRegistry()

// Register adds a profile, replacing any previous profile with that name.
func (r *Registry) Register(p *Profile) {
	r.profiles.Add(p.Name(), p)
}

// Get looks up a profile by name.
func (r *Registry) Get(name string) (*Profile, bool) {
	return r.profiles.Get(name)
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	return r.profiles.Len()
}

// Names returns every registered specialist name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.profiles.Len())
	r.profiles.ForEach(func(name string, _ *Profile) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// Describe renders a deterministic "name: description" catalog for the
// planning prompt.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for i, name := range r.Names() {
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(p.Name())
		sb.WriteString(": ")
		sb.WriteString(p.Description())
	}
	return sb.String()
}

// Register adds a profile to the global registry.
func Register(p *Profile) {
	Global.Register(p)
}

// Get looks up a profile in the global registry.
func Get(name string) (*Profile, bool) {
	return Global.Get(name)
}

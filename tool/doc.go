// Package tool describes the callable capabilities a specialist may be
// granted. Definitions are declarative: a name, a description for the model,
// and an ordered parameter list that renders to a JSON schema for providers
// that advertise function calling.
//
// The coordinator never executes tools itself; it only checks, at dispatch
// time, that a tool call reported by the generation capability is inside the
// issuing message's allowed set. Execution belongs to the surrounding
// application.
package tool

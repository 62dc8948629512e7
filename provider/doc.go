// Package provider abstracts the language-model backends the coordinator
// and the specialist executors call into. A Provider is a stateless
// capability: given instructions, conversation turns, and resource options
// it returns one completion with any tool calls the model requested and the
// tokens it consumed.
//
// Implementations live in subpackages (openai, ollama). The rest of the
// library depends only on this interface, so backends are swappable without
// touching coordination, recovery, or tracing code.
package provider

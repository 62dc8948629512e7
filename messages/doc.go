// Package messages defines the immutable value types that flow between the
// coordinator, the recovery layer, and the specialist executors: TaskMessage
// for a unit of work, AgentResult for the outcome of one dispatch attempt,
// and ContextItem for the scored supporting material attached to a task.
//
// Design decisions:
//   - Immutability: messages and results are never mutated after creation;
//     retries derive fresh messages instead of editing the original
//   - Trace lineage: every message carries a TraceID that survives retries
//     and fallbacks, and a ParentID linking derived messages to their origin
//   - Failures as data: AgentResult carries a Status and an error string, so
//     no failure crosses a component boundary as a Go error
//   - JSON interop: full serialization support for event publication
package messages

// Package recovery provides the failure-handling policies wrapped around
// specialist executors: retry with exponential backoff and corrective
// context, fallback chains across multiple specialists, per-specialist
// circuit breakers, and output-validation-triggered retries.
//
// The policies compose by wrapping, not inheritance. Everything implements
// or consumes the executor.Dispatcher contract, so a call site can stack
// fallback-of-retry-of-validated executors and each layer only sees the
// layer beneath it. Failures stay data throughout: no policy ever converts
// an AgentResult failure into a Go error.
package recovery

// Package executor turns task messages into agent results by invoking the
// generation capability under the message's resource constraints. An
// Executor wraps exactly one specialist profile and holds no mutable state
// between calls, so a single instance is safe for concurrent reuse across
// requests.
//
// Failures never escape as Go errors: deadline expiry becomes a timeout
// result, any other provider failure becomes an error result. The recovery
// layer and the coordinator only ever see AgentResult values.
package executor

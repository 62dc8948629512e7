// Package quorum coordinates a team of model-backed specialists behind a
// single conversational surface.
//
// A Coordinator plans each incoming request: answer it directly, route it
// to one specialist, run a pipeline of dependent steps, or fan independent
// steps out in parallel. Steps travel as immutable task messages, come back
// as status-carrying results, and pass through a recovery layer of retries,
// fallback chains, and circuit breakers on the way. The surviving results
// are synthesized into one answer, and every step is recorded in an
// execution trace.
//
// Failures are data here: a specialist that times out, errors, or produces
// unusable output yields a result describing the failure, and the
// coordinator degrades to the best answer it can still give. Handle never
// returns an error to the user.
package quorum

// Package trace records every dispatched step of a request and produces
// aggregate statistics and a human-readable report. Traces live in memory
// only, scoped to the process lifetime; the report is for logging and
// debugging, not machine parsing.
package trace

// Package broker fans trace step events out to subscribers, either
// in-process or across a NATS connection. It lets dashboards and log
// shippers watch a request's progress without touching the trace store's
// in-memory state.
//
// A Broker hands out Topics; publishers write step events to a topic and
// subscribers attach a trace.Hook to receive them. The local broker drops
// slow subscribers instead of blocking publishers, so a stuck observer can
// never stall request execution.
package broker

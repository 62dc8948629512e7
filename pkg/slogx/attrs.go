package slogx

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Error returns a slog.Attr for the provided error under the "error" key.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog.Attr holding the string form of any fmt.Stringer.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// TraceID returns a slog.Attr for a trace identifier under the "trace_id"
// key, so every log line of one logical request carries the same marker.
func TraceID(id uuid.UUID) slog.Attr {
	return slog.String("trace_id", id.String())
}

// Specialist returns a slog.Attr naming the specialist a log line concerns.
func Specialist(name string) slog.Attr {
	return slog.String("specialist", name)
}

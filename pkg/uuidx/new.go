package uuidx

import "github.com/google/uuid"

// New generates a version 7 UUID. V7 ids are time-ordered, which keeps
// message and trace ids roughly sortable by creation time. It panics if
// generation fails, which only happens when the entropy source is broken.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a version 7 UUID and returns its string form.
func NewString() string {
	return New().String()
}

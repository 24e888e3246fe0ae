package uuidx

import "github.com/google/uuid"

// New generates a new UUID using the version 7 format and returns it.
// Version 7 ids embed a millisecond timestamp followed by random bits, so
// they sort by creation time. It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new UUID using the version 7 format and returns it as a string.
func NewString() string {
	return New().String()
}

// SessionID returns a fresh identifier for a broker session (one per tab or process).
func SessionID() string {
	return "session-" + NewString()
}

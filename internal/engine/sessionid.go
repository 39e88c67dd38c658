package engine

import (
	"github.com/google/uuid"
)

// SessionIDGenerator produces identifiers for form sessions.
// Implemented by UUIDv7Generator (production) and
// testutil.FixedSessionGenerator (tests and golden traces).
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs, so journaled
// sessions list in creation order.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

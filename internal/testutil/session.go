package testutil

// FixedSessionGenerator returns the same session ID every time, so the same
// scenario always produces byte-identical dispatch records.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator that always returns id.
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}

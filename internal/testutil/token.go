package testutil

// FixedTokenGenerator returns the same correlation token for every event.
//
// Dispatch traces recorded with it are byte-identical across runs, which is
// what golden files need.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed token generator.
//
// If token is empty, Generate() returns "test-event-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-event-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements dispatch.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

package testutil

import (
	"fmt"
	"sync"
)

// FixedTokens generates deterministic run tokens for tests.
//
// Each call to Generate returns "run-000001", "run-000002", and so on,
// so the same scenario always produces the same sync run tokens.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedTokens struct {
	mu  sync.Mutex
	seq int
}

// NewFixedTokens creates a generator starting at run-000001.
func NewFixedTokens() *FixedTokens {
	return &FixedTokens{}
}

// Generate returns the next token in sequence.
//
// Implements sync.TokenGenerator.
func (g *FixedTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("run-%06d", g.seq)
}

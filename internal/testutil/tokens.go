package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequenceGenerator generates numbered fetch tokens: "<prefix>-1",
// "<prefix>-2", and so on. It never runs out.
//
// The same scenario with a fresh SequenceGenerator produces the same tokens,
// which keeps golden logs stable.
//
// Thread-safety: SequenceGenerator is safe for concurrent use.
type SequenceGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequenceGenerator creates a generator. An empty prefix means "fetch".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "fetch"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *SequenceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

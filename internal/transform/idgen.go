package transform

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces ids for transactions whose source carries no stable,
// bank-assigned identifier. Generated ids are never treated as authoritative.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator returns random version 4 UUIDs as 32 lowercase hex characters
// without dashes, e.g. "9f1c0c5e7a2b4c6d8e0f1a2b3c4d5e6f".
type UUIDGenerator struct{}

// NewID returns a fresh random id.
func (UUIDGenerator) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SequenceGenerator returns "{prefix}{n}" with n counting from 1.
// Intended for tests that need deterministic ids. Safe for concurrent use.
type SequenceGenerator struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{Prefix: prefix}
}

// NewID returns the next id in the sequence.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s%d", g.Prefix, g.next)
}

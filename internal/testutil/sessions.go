package testutil

import (
	"fmt"
	"sync"
)

// SequentialSessionIDs generates "<prefix>-1", "<prefix>-2", ...
//
// It satisfies engine.SessionIDGenerator and never runs out, so a scenario
// that drops and recreates an entity still gets stable, readable ids.
type SequentialSessionIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialSessionIDs creates a generator. An empty prefix means "session".
func NewSequentialSessionIDs(prefix string) *SequentialSessionIDs {
	if prefix == "" {
		prefix = "session"
	}
	return &SequentialSessionIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialSessionIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

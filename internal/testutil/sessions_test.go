package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/latch/internal/engine"
)

var _ engine.SessionIDGenerator = (*SequentialSessionIDs)(nil)

func TestSequentialSessionIDs(t *testing.T) {
	g := NewSequentialSessionIDs("scenario-coast")
	assert.Equal(t, "scenario-coast-1", g.Generate())
	assert.Equal(t, "scenario-coast-2", g.Generate())
}

func TestSequentialSessionIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "session-1", NewSequentialSessionIDs("").Generate())
}

func TestSequentialSessionIDs_Unique(t *testing.T) {
	g := NewSequentialSessionIDs("p")
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

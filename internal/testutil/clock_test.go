package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameClock_StartsAtStart(t *testing.T) {
	c := NewFrameClock(100)
	assert.Equal(t, int64(100), c.Now())
}

func TestFrameClock_Advance(t *testing.T) {
	c := NewFrameClock(0)
	assert.Equal(t, int64(10), c.Advance(10))
	assert.Equal(t, int64(35), c.Advance(25))
	assert.Equal(t, int64(35), c.Now())
}

func TestFrameClock_SetMovesBackwards(t *testing.T) {
	c := NewFrameClock(500)
	c.Set(200)
	assert.Equal(t, int64(200), c.Now())
}

func TestFrameClock_Ticks(t *testing.T) {
	c := NewFrameClock(100)
	assert.Equal(t, []int64{100, 110, 120}, c.Ticks(3, 10))
	assert.Equal(t, int64(130), c.Now())

	assert.Empty(t, c.Ticks(0, 10))
	assert.Equal(t, int64(130), c.Now())
}

func TestFrameClock_ConcurrentAdvance(t *testing.T) {
	c := NewFrameClock(0)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				c.Advance(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Now())
}

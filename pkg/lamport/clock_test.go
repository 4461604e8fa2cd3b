package lamport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestObserve(t *testing.T) {
	c := New(0)
	assert.Equal(t, uint64(6), c.Observe(5))
	assert.Equal(t, uint64(7), c.Observe(2))
	assert.Equal(t, uint64(8), c.Tick())
	assert.Equal(t, uint64(8), c.Value())
}

func TestZeroValueClock(t *testing.T) {
	var c Clock
	assert.Equal(t, uint64(1), c.Tick())
}

func TestClockNeverDecreases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := New(rapid.Uint64Range(0, 1000).Draw(t, "start"))
		events := rapid.SliceOfN(rapid.Uint64Range(0, 1<<40), 1, 100).Draw(t, "events")

		prev := c.Value()
		for i, remote := range events {
			var got uint64
			if i%3 == 0 {
				got = c.Tick()
			} else {
				got = c.Observe(remote)
				// Causality: a receive is ordered after its send
				if got <= remote {
					t.Fatalf("observe(%d) gave %d", remote, got)
				}
			}
			if got <= prev {
				t.Fatalf("clock went from %d to %d", prev, got)
			}
			prev = got
		}
	})
}

func TestConcurrentTicks(t *testing.T) {
	c := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Tick()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), c.Value())
}

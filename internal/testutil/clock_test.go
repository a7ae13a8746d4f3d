package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_DefaultsToEpoch(t *testing.T) {
	assert.Equal(t, Epoch, NewFakeClock(time.Time{}).Now())
}

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	c := NewFakeClock(Epoch)

	assert.Equal(t, Epoch.Add(time.Hour), c.Advance(time.Hour))
	assert.Equal(t, Epoch.Add(time.Hour), c.Now())

	assert.Equal(t, Epoch.Add(30*time.Minute), c.Advance(-30*time.Minute))

	loc := time.FixedZone("UTC+2", 2*60*60)
	c.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), c.Now())
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	c := NewFakeClock(Epoch)
	const goroutines = 50

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(goroutines*time.Second), c.Now())
}

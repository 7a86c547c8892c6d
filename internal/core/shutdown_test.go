package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownCoordinator_StopIsIdempotent(t *testing.T) {
	c := NewShutdownCoordinator()
	assert.False(t, c.Stopped())

	select {
	case <-c.Done():
		t.Fatal("done closed before Stop")
	default:
	}

	c.Stop()
	c.Stop()

	assert.True(t, c.Stopped())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after Stop")
	}
}

func TestShutdownCoordinator_ConcurrentStop(t *testing.T) {
	c := NewShutdownCoordinator()

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Stop()
			_ = c.Stopped()
		}()
	}
	wg.Wait()

	assert.True(t, c.Stopped())
}

package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeStoreSuppressesSecondDelivery(t *testing.T) {
	s := NewDedupeStore(time.Minute, 128)

	assert.True(t, s.ShouldProcess("evt-1"))
	assert.False(t, s.ShouldProcess("evt-1"))
	assert.True(t, s.ShouldProcess("evt-2"))
}

func TestDedupeStoreExpires(t *testing.T) {
	s := NewDedupeStore(50*time.Millisecond, 128)

	assert.True(t, s.ShouldProcess("evt-1"))
	time.Sleep(120 * time.Millisecond)
	assert.True(t, s.ShouldProcess("evt-1"))
}

func TestDedupeStoreConcurrentSingleWinner(t *testing.T) {
	s := NewDedupeStore(time.Minute, 128)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.ShouldProcess("race-key") {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestDedupeStoreRelease(t *testing.T) {
	s := NewDedupeStore(time.Minute, 128)

	assert.True(t, s.ShouldProcess("evt-1"))
	s.Release("evt-1")
	assert.True(t, s.ShouldProcess("evt-1"))
}

func TestCooldownStoreBlocksWithinWindow(t *testing.T) {
	s := NewCooldownStore(50*time.Millisecond, 256)

	assert.True(t, s.Acquire("mr:1:2"))
	assert.False(t, s.Acquire("mr:1:2"))
	assert.True(t, s.Acquire("mr:1:3"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, s.Acquire("mr:1:2"))
}

func TestCooldownStoreRelease(t *testing.T) {
	s := NewCooldownStore(time.Minute, 256)

	assert.True(t, s.Acquire("mr:1:2"))
	s.Release("mr:1:2")
	assert.True(t, s.Acquire("mr:1:2"))
}

func TestIPRateLimiterPerIP(t *testing.T) {
	l := NewIPRateLimiter(1, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// Other addresses keep their own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestTaskPoolRunsSubmittedJobs(t *testing.T) {
	p := NewTaskPool(2, 16)

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := p.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		})
		assert.True(t, ok)
	}
	wg.Wait()
	p.Shutdown()
	assert.Equal(t, int32(8), ran)
}

func TestTaskPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewTaskPool(1, 1)
	defer p.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	assert.True(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started
	// Worker busy; one slot in the queue.
	assert.True(t, p.Submit(func(ctx context.Context) {}))
	assert.False(t, p.Submit(func(ctx context.Context) {}))
	close(release)
}

func TestTaskPoolSurvivesPanic(t *testing.T) {
	p := NewTaskPool(1, 4)

	done := make(chan struct{})
	assert.True(t, p.Submit(func(ctx context.Context) { panic("boom") }))
	assert.True(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped processing after panic")
	}
	p.Shutdown()
}

func TestTaskPoolSubmitDuringShutdown(t *testing.T) {
	p := NewTaskPool(2, 8)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					p.Submit(func(ctx context.Context) {})
				}
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	p.Shutdown()
	close(stop)
	wg.Wait()

	assert.False(t, p.Submit(func(ctx context.Context) {}))
}

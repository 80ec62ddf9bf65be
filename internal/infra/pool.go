package infra

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// TaskPool runs webhook processing jobs on a fixed set of workers so a
// delivery burst cannot spawn an unbounded number of review pipelines.
type TaskPool struct {
	mu     sync.Mutex
	closed bool
	jobs   chan func(ctx context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewTaskPool starts workers goroutines draining a queue of queueSize.
func NewTaskPool(workers, queueSize int) *TaskPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &TaskPool{
		jobs:   make(chan func(ctx context.Context), queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *TaskPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Int("worker", id).Interface("panic", r).Msg("Task panicked")
				}
			}()
			job(p.ctx)
		}()
	}
}

// Submit enqueues a job. Returns false if the queue is full or the pool
// is shutting down; the caller decides whether that drops the event.
// The send is serialized with Shutdown so it never hits a closed channel.
func (p *TaskPool) Submit(job func(ctx context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown cancels in-flight job contexts, stops accepting work and
// waits for workers to drain. Safe to call more than once.
func (p *TaskPool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cancel()
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

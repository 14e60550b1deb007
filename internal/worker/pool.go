package worker

import (
	"context"
	"sync"

	"github.com/ikkim/delivery-tracker/pkg/logger"
)

// Task is a detached unit of work.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of goroutines. Submission never
// blocks: when the queue is full the task is dropped and Submit returns false.
// Tasks are executed at most once and in no particular order.
type Pool struct {
	name   string
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}

	logger.Info("Worker pool started", map[string]interface{}{
		"pool":       name,
		"workers":    workers,
		"queue_size": queueSize,
	})
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().WithContext(map[string]interface{}{
				"pool":  p.name,
				"panic": r,
			}).Warn("Worker task panicked")
		}
	}()
	task(p.ctx)
}

// Submit enqueues task. It returns false when the pool is closed or full.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		logger.Warn("Task submitted to closed worker pool", map[string]interface{}{
			"pool": p.name,
		})
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		logger.Warn("Worker pool queue full, dropping task", map[string]interface{}{
			"pool":       p.name,
			"queue_size": cap(p.tasks),
		})
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish or for
// ctx to expire, whichever comes first.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

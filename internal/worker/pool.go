// Package worker provides a bounded pool for fan-out work such as announcements and outbox sweeps.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Task represents a unit of work to be processed by the pool
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	name        string
	workerCount int
	taskQueue   chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	closed      bool
	closeMux    sync.RWMutex
	failed      atomic.Int64
	logger      *slog.Logger
}

// NewPool creates a pool whose tasks run under a context derived from parent.
func NewPool(parent context.Context, name string, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		name:        name,
		workerCount: workerCount,
		taskQueue:   make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default().With("pool", name),
	}
}

// Start launches worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("worker_pool_started", "workers", p.workerCount)
}

// Submit queues task, blocking while the queue is full.
func (p *Pool) Submit(task Task) error {
	p.closeMux.RLock()
	defer p.closeMux.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- task:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("%w: %v", ErrPoolClosed, p.ctx.Err())
	}
}

// Wait stops accepting tasks and blocks until the queued ones complete.
func (p *Pool) Wait() {
	p.closeMux.Lock()
	if !p.closed {
		close(p.taskQueue)
		p.closed = true
	}
	p.closeMux.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Shutdown cancels running tasks and drops the queued ones.
func (p *Pool) Shutdown() {
	p.logger.Info("worker_pool_shutting_down")
	p.cancel()
	p.Wait()
}

// Failed returns how many tasks returned an error or panicked.
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		select {
		case <-p.ctx.Done():
			// drain without running so Wait returns
			continue
		default:
		}
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("worker_task_panic", "worker", id, "panic", r)
		}
	}()

	if err := task(p.ctx); err != nil {
		p.failed.Add(1)
		p.logger.Warn("worker_task_failed", "worker", id, "error", err)
	}
}

// Run executes tasks on a temporary pool of workerCount goroutines and waits for all of them.
func Run(ctx context.Context, name string, workerCount int, tasks []Task) (failed int64) {
	p := NewPool(ctx, name, workerCount)
	p.Start()
	for _, t := range tasks {
		if err := p.Submit(t); err != nil {
			break
		}
	}
	p.Wait()
	return p.Failed()
}

package batch

import (
	"context"
	"sync"

	"github.com/spigell/resume-batch/internal/document"
)

type poolJob struct {
	ref    document.Ref
	future *Future
}

// WorkerPool keeps a fixed number of workers pulling from an unbuffered queue,
// so a submit only succeeds when a worker is free.
type WorkerPool struct {
	ctx     context.Context
	run     RunFunc
	jobs    chan poolJob
	workers int

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewWorkerPool(ctx context.Context, workers int, run RunFunc) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	p := &WorkerPool{
		ctx:     ctx,
		run:     run,
		jobs:    make(chan poolJob),
		workers: workers,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job.future.resolve(p.run(p.ctx, job.ref))
	}
}

func (p *WorkerPool) Submit(ctx context.Context, ref document.Ref) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := newFuture()
	select {
	case p.jobs <- poolJob{ref: ref, future: f}:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

func (p *WorkerPool) Limit() int {
	return p.workers
}

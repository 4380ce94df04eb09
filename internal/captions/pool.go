package captions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner is satisfied by *Job.
type Runner interface {
	Run(ctx context.Context, assetID string) Outcome
}

// Pool runs caption jobs on a fixed set of goroutines. Jobs are detached
// from the request that dispatched them and each gets its own timeout.
type Pool struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	queue  chan string
	closed bool
	wg     sync.WaitGroup
}

func NewPool(runner Runner, workers, queueSize int, timeout time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		runner:  runner,
		timeout: timeout,
		logger:  slog.With("component", "caption-pool"),
		queue:   make(chan string, queueSize),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for assetID := range p.queue {
		p.run(assetID)
	}
}

func (p *Pool) run(assetID string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("caption job panicked", "asset_id", assetID, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	outcome := p.runner.Run(ctx, assetID)
	p.logger.Debug("caption job finished", "asset_id", assetID, "outcome", outcome)
}

// Dispatch queues a job without blocking. When the queue is full or the
// pool is closed the job is dropped.
func (p *Pool) Dispatch(assetID string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("caption pool closed, dropping job", "asset_id", assetID)
		return
	}

	select {
	case p.queue <- assetID:
	default:
		p.logger.Warn("caption queue full, dropping job", "asset_id", assetID)
	}
}

// Close stops accepting jobs and waits for queued ones until ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

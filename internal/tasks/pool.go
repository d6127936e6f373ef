package tasks

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 3

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Workers int `json:"workers"`
	Queued  int `json:"queued"`
	Running int `json:"running"`
}

// Pool runs jobs on a fixed number of workers. Submissions queue FIFO without bound,
// so Submit never blocks the caller.
type Pool struct {
	workers int
	handler func(context.Context, Job)
	logger  *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Job
	running int
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewPool creates a pool that passes each job to handler.
func NewPool(workers int, handler func(context.Context, Job), logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &Pool{workers: workers, handler: handler, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. Jobs receive ctx; cancelling it cancels running jobs
// but queued jobs are still handed out. Start is a no-op after the first call.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues job. It fails only after Shutdown.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return shared.ErrPoolClosed
	}
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting jobs and waits for the queue to drain.
// When ctx ends first, queued jobs are dropped and returned to the caller.
func (p *Pool) Shutdown(ctx context.Context) ([]Job, error) {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.cond.Broadcast()
	p.mu.Unlock()

	if !started {
		return p.takeQueue(), nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil, nil
	case <-ctx.Done():
		return p.takeQueue(), ctx.Err()
	}
}

func (p *Pool) takeQueue() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := p.queue
	p.queue = nil
	return dropped
}

// Stats reports queue depth and busy workers.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Workers: p.workers, Queued: len(p.queue), Running: p.running}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue[0] = Job{}
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(ctx, job)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			id := ""
			if job.Task != nil {
				id = job.Task.ID()
			}
			p.logger.Error("job panicked", "task", id, "panic", r)
		}
	}()
	p.handler(ctx, job)
}

package worker

import (
	"errors"
	"sync"

	"github.com/baharkarakas/evtrade-backend/internal/metrics"
)

var (
	ErrPoolFull   = errors.New("worker pool queue is full")
	ErrPoolClosed = errors.New("worker pool is stopped")
)

type task func()

// Pool runs submitted funcs on n goroutines.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	jobs   chan task
}

func NewPool(n, queue int) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan task, queue)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				job()
			}
		}()
	}
	return p
}

// Submit queues f without blocking the caller. It fails once Stop was called.
func (p *Pool) Submit(f task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- f:
		metrics.WorkerQueueDepth.Inc()
		return nil
	default:
		return ErrPoolFull
	}
}

// Stop drains the queue and waits for running jobs. Later calls only wait.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

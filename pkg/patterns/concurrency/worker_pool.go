package concurrency

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job is a unit of work executed by a worker.
type Job func()

// AdaptiveWorkerPool is an adaptive worker pool with backpressure.
// It scales the number of workers between minWorkers and maxWorkers
// based on the queue size. Submit blocks once the queue is full.
type AdaptiveWorkerPool struct {
	workers    int32
	maxWorkers int32
	minWorkers int32
	requests   chan Job
	shrink     chan struct{}
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAdaptiveWorkerPool creates a new AdaptiveWorkerPool.
func NewAdaptiveWorkerPool(minWorkers, maxWorkers, queueDepth int) *AdaptiveWorkerPool {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	pool := &AdaptiveWorkerPool{
		minWorkers: int32(minWorkers),
		maxWorkers: int32(maxWorkers),
		requests:   make(chan Job, queueDepth),
		shrink:     make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	atomic.StoreInt32(&pool.workers, int32(minWorkers))

	return pool
}

// worker runs jobs from the requests channel until the channel is closed
// or the pool asks it to retire.
func (p *AdaptiveWorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.requests:
			if !ok {
				return
			}
			job()
		case <-p.shrink:
			return
		}
	}
}

// adjustWorkers scales up if the queue is growing and down if it is empty.
func (p *AdaptiveWorkerPool) adjustWorkers(queueSize int) {
	current := atomic.LoadInt32(&p.workers)

	if queueSize > cap(p.requests)/2 && current < p.maxWorkers {
		if atomic.CompareAndSwapInt32(&p.workers, current, current+1) {
			p.wg.Add(1)
			go p.worker()
		}
		return
	}

	if queueSize == 0 && current > p.minWorkers {
		select {
		case p.shrink <- struct{}{}:
			atomic.AddInt32(&p.workers, -1)
		default:
		}
	}
}

// Submit queues a job, blocking while the queue is full.
func (p *AdaptiveWorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.requests <- job
	p.adjustWorkers(len(p.requests))
	return nil
}

// Workers returns the current number of workers.
func (p *AdaptiveWorkerPool) Workers() int {
	return int(atomic.LoadInt32(&p.workers))
}

// Shutdown stops accepting jobs and waits for queued jobs to finish.
func (p *AdaptiveWorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.requests)
	p.mu.Unlock()

	p.wg.Wait()
}

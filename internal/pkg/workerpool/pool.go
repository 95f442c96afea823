package workerpool

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Statistics holds task counters for the pool
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
}

// Pool is a fixed-size worker pool for background tasks. Tasks are
// fire-and-forget: completion is observed through the task itself, not the
// pool.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	closed atomic.Bool
}

// New creates a worker pool with the given number of workers
func New(workers int, logger *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}

	p := &Pool{logger: logger}

	antsPool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(v interface{}) {
			p.failed.Add(1)
			logger.Error("worker panic", zap.Any("error", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	p.pool = antsPool
	return p, nil
}

// Submit schedules a task for asynchronous execution
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	return p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
}

// Running returns the number of tasks currently executing
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns a snapshot of the pool's task counters
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown stops the pool and releases its workers
func (p *Pool) Shutdown() {
	p.closed.Store(true)
	p.pool.Release()
}

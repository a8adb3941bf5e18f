// Package pool bounds how many enclave executions run concurrently,
// independent of any single execution's own resource budget. A host serving
// many agents shares one Pool across repeated enclave.NewWithPool/Run calls the way
// a connection pool is shared across requests.
package pool

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/agentfront/enclave/internal/config"
)

// Pool hands out execution slots bounded by WorkerPoolConfig.MaxWorkers. The
// zero value returned for MaxWorkers<=0 is unbounded: Acquire never blocks.
type Pool struct {
	sem *semaphore.Weighted
}

// New builds a Pool sized from cfg.
func New(cfg config.WorkerPoolConfig) *Pool {
	if cfg.MaxWorkers <= 0 {
		return &Pool{}
	}
	return &Pool{sem: semaphore.NewWeighted(int64(cfg.MaxWorkers))}
}

// Acquire blocks until a slot is free or ctx is done. The returned func
// releases the slot and must be called exactly once.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.sem == nil {
		return func() {}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}

package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/agentfront/enclave/internal/config"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New(config.WorkerPoolConfig{MaxWorkers: 1})

	release1, err := p.Acquire(context.Background())
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.Error(t, err, "expected second acquire to block until the timeout")

	release1()
	release2, err := p.Acquire(context.Background())
	assert.NoError(t, err)
	release2()
}

func TestPool_UnboundedWhenMaxWorkersZero(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New(config.WorkerPoolConfig{MaxWorkers: 0})

	release1, err := p.Acquire(context.Background())
	assert.NoError(t, err)
	release2, err := p.Acquire(context.Background())
	assert.NoError(t, err)
	release1()
	release2()
}

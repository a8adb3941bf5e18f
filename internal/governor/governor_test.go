package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
)

func TestGovernor_IterationCap(t *testing.T) {
	defer goleak.VerifyNone(t)
	limits := config.DefaultGovernorLimits()
	limits.MaxIterations = 3
	g := New(limits)

	for i := 0; i < 3; i++ {
		assert.Nil(t, g.Tick())
	}
	err := g.Tick()
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ResourceExhausted, err.Kind)
}

func TestGovernor_MemoryLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	limits := config.DefaultGovernorLimits()
	limits.MemoryLimitBytes = 100
	g := New(limits)

	assert.Nil(t, g.Alloc(50))
	err := g.Alloc(60)
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.MemoryLimitExceeded, err.Kind)
	assert.GreaterOrEqual(t, g.Snapshot().AllocBytes, limits.MemoryLimitBytes)
}

func TestGovernor_ConsoleFlood(t *testing.T) {
	defer goleak.VerifyNone(t)
	limits := config.DefaultGovernorLimits()
	limits.MaxConsoleCalls = 2
	g := New(limits)

	assert.Nil(t, g.Console(10))
	assert.Nil(t, g.Console(10))
	err := g.Console(10)
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.IOFlood, err.Kind)
}

func TestGovernor_ToolCallLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	limits := config.DefaultGovernorLimits()
	limits.MaxToolCalls = 1
	g := New(limits)

	assert.Nil(t, g.ToolCall())
	err := g.ToolCall()
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ToolLimit, err.Kind)
}

func TestGovernor_CountersMonotonic(t *testing.T) {
	defer goleak.VerifyNone(t)
	g := New(config.DefaultGovernorLimits())
	var lastIter, lastTool, lastBytes, lastCalls int64
	for i := 0; i < 10; i++ {
		_ = g.Tick()
		_ = g.ToolCall()
		_ = g.Console(5)
		snap := g.Snapshot()
		assert.GreaterOrEqual(t, snap.Iterations, lastIter)
		assert.GreaterOrEqual(t, snap.ToolCalls, lastTool)
		assert.GreaterOrEqual(t, snap.ConsoleCalls, lastCalls)
		assert.GreaterOrEqual(t, snap.ConsoleBytes, lastBytes)
		lastIter, lastTool, lastCalls, lastBytes = snap.Iterations, snap.ToolCalls, snap.ConsoleCalls, snap.ConsoleBytes
	}
}

func TestEstimateFormulas(t *testing.T) {
	assert.Equal(t, int64(2*5+40), EstimateStringBytes(5))
	assert.Equal(t, int64(32+8*3), EstimateArrayBytes(3))
}

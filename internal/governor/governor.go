// Package governor tracks the resource budgets for one run: iteration
// cap, wall-clock timeout, memory-allocation estimate, console I/O caps, and
// tool-call cap. A Governor is bound to one Enclave run and exposes the
// native functions instrumented source calls into (__gov_tick, __gov_alloc)
// plus the console/tool-call accounting used by internal/jsvm's tool-call
// binding and curated console binding.
package governor

import (
	"sync"
	"time"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
)

// Counters mirrors the ResourceCounters record. All fields are
// monotonic except AllocBytes, which may decrease on explicit release;
// PeakAllocBytes tracks the running maximum.
type Counters struct {
	Iterations      int64
	ConsoleBytes    int64
	ConsoleCalls    int64
	ToolCalls       int64
	AllocBytes      int64
	PeakAllocBytes  int64
	StartWallTimeMs int64
}

// Governor enforces the budgets in config.GovernorLimits against a single
// execution's Counters, returning a sanitized *enclaveerr.Error the instant
// any budget is exceeded.
type Governor struct {
	mu      sync.Mutex
	limits  config.GovernorLimits
	counts  Counters
	start   time.Time
	timedUp bool
}

// New creates a Governor with its wall clock started now.
func New(limits config.GovernorLimits) *Governor {
	now := time.Now()
	return &Governor{
		limits: limits,
		start:  now,
		counts: Counters{StartWallTimeMs: now.UnixMilli()},
	}
}

// Snapshot returns a copy of the current counters, safe to embed in a
// SessionResult.
func (g *Governor) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counts
}

// Tick is called once per instrumented loop iteration (__gov_tick).
// Exceeding maxIterations yields RESOURCE_EXHAUSTED; otherwise the
// wall-clock budget is checked at the same checkpoint and exceeding it
// yields TIMEOUT. When both are exceeded, the iteration error is returned.
func (g *Governor) Tick() *enclaveerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts.Iterations++
	if g.counts.Iterations > g.limits.MaxIterations {
		return enclaveerr.New(enclaveerr.ResourceExhausted,
			"iteration cap exceeded: %d > %d", g.counts.Iterations, g.limits.MaxIterations).
			WithData(map[string]any{"iterations": g.counts.Iterations, "maxIterations": g.limits.MaxIterations})
	}
	return g.checkTimeoutLocked()
}

// CheckTimeout is the periodic external-watchdog check, callable
// independent of loop instrumentation (e.g. before resuming a suspended
// tool call).
func (g *Governor) CheckTimeout() *enclaveerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkTimeoutLocked()
}

func (g *Governor) checkTimeoutLocked() *enclaveerr.Error {
	elapsed := time.Since(g.start).Milliseconds()
	if elapsed >= g.limits.TimeoutMS {
		g.timedUp = true
		return enclaveerr.New(enclaveerr.Timeout, "wall-clock budget exceeded: %dms >= %dms", elapsed, g.limits.TimeoutMS).
			WithData(map[string]any{"elapsedMs": elapsed, "timeoutMs": g.limits.TimeoutMS})
	}
	return nil
}

// Alloc debits the caller-supplied allocation estimate (__gov_alloc). The
// string and array formulas live in EstimateStringBytes and
// EstimateArrayBytes; callers that do not use them pass their own figure.
func (g *Governor) Alloc(estimatedBytes int64) *enclaveerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts.AllocBytes += estimatedBytes
	if g.counts.AllocBytes > g.counts.PeakAllocBytes {
		g.counts.PeakAllocBytes = g.counts.AllocBytes
	}
	if g.limits.MemoryLimitBytes > 0 && g.counts.AllocBytes > g.limits.MemoryLimitBytes {
		return enclaveerr.MemoryLimit(g.counts.AllocBytes, g.limits.MemoryLimitBytes)
	}
	return nil
}

// Release lowers the allocation estimate, e.g. when a tracked buffer goes
// out of scope; AllocBytes may decrease but PeakAllocBytes never does.
func (g *Governor) Release(bytes int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts.AllocBytes -= bytes
	if g.counts.AllocBytes < 0 {
		g.counts.AllocBytes = 0
	}
}

// Console accounts for one console call of n output bytes against the
// maxConsoleCalls / maxConsoleOutputBytes pair, both reported as IO_FLOOD.
func (g *Governor) Console(bytes int64) *enclaveerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts.ConsoleCalls++
	g.counts.ConsoleBytes += bytes
	if g.counts.ConsoleCalls > g.limits.MaxConsoleCalls {
		return enclaveerr.New(enclaveerr.IOFlood, "console call cap exceeded: %d > %d", g.counts.ConsoleCalls, g.limits.MaxConsoleCalls).
			WithData(map[string]any{"consoleCalls": g.counts.ConsoleCalls, "maxConsoleCalls": g.limits.MaxConsoleCalls})
	}
	if g.counts.ConsoleBytes > g.limits.MaxConsoleOutputBytes {
		return enclaveerr.New(enclaveerr.IOFlood, "console output cap exceeded: %d > %d bytes", g.counts.ConsoleBytes, g.limits.MaxConsoleOutputBytes).
			WithData(map[string]any{"consoleBytes": g.counts.ConsoleBytes, "maxConsoleOutputBytes": g.limits.MaxConsoleOutputBytes})
	}
	return nil
}

// ToolCall accounts for one dispatched tool call against the maxToolCalls budget.
func (g *Governor) ToolCall() *enclaveerr.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts.ToolCalls++
	if g.counts.ToolCalls > g.limits.MaxToolCalls {
		return enclaveerr.New(enclaveerr.ToolLimit, "tool-call cap exceeded: %d > %d", g.counts.ToolCalls, g.limits.MaxToolCalls).
			WithData(map[string]any{"toolCalls": g.counts.ToolCalls, "maxToolCalls": g.limits.MaxToolCalls})
	}
	return nil
}

// EstimateStringBytes implements the string allocation formula.
func EstimateStringBytes(length int) int64 {
	return int64(2*length + 40)
}

// EstimateArrayBytes implements the array allocation formula.
func EstimateArrayBytes(n int) int64 {
	return int64(32 + 8*n)
}

// Elapsed returns the milliseconds since the Governor's wall clock started.
func (g *Governor) Elapsed() int64 {
	return time.Since(g.start).Milliseconds()
}

// TimedOut reports whether a prior Tick/CheckTimeout observed a timeout.
func (g *Governor) TimedOut() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timedUp
}

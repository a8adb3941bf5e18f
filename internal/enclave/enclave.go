// Package enclave implements the top-level orchestrator: source text flows
// through the syntactic validator, instrumentation, the dual-context VM,
// the resource governor, and the tool-call bridge, landing on a terminal
// SessionResult. It owns the run state machine:
// Created → Validating → Rejected | Instrumented → Running →
// (Suspended ⇄ Running)* → Completed | Failed | Cancelled | TimedOut.
package enclave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentfront/enclave/internal/bridge"
	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
	"github.com/agentfront/enclave/internal/governor"
	"github.com/agentfront/enclave/internal/instrument"
	"github.com/agentfront/enclave/internal/jsvm"
	"github.com/agentfront/enclave/internal/obslog"
	"github.com/agentfront/enclave/internal/pool"
	"github.com/agentfront/enclave/internal/validator"
)

// Status is a point in the run state machine.
type Status string

const (
	StatusCreated      Status = "created"
	StatusValidating   Status = "validating"
	StatusRejected     Status = "rejected"
	StatusInstrumented Status = "instrumented"
	StatusRunning      Status = "running"
	StatusSuspended    Status = "suspended"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
	StatusTimedOut     Status = "timed_out"
)

// Stats is the portion of a SessionResult derived from governor.Counters,
// plus wall-clock and hard-termination metadata.
type Stats struct {
	Iterations     int64 `json:"iterations"`
	ConsoleBytes   int64 `json:"consoleBytes"`
	ConsoleCalls   int64 `json:"consoleCalls"`
	ToolCalls      int64 `json:"toolCalls"`
	AllocBytes     int64 `json:"allocBytes"`
	PeakAllocBytes int64 `json:"peakAllocBytes"`
	ElapsedMs      int64 `json:"elapsedMs"`
	Hard           bool  `json:"hard,omitempty"`
}

// SessionResult is a sum type: Success(value, stats) or
// Failure(errorKind, message, data, stats).
type SessionResult struct {
	Success bool
	Value   any
	Stats   Stats

	ErrorKind enclaveerr.Kind
	Message   string
	Data      map[string]any
}

// Enclave is one sandboxed execution context, uniquely owning its parsed
// program, counters, membrane configuration, and realms.
type Enclave struct {
	ID     string
	opts   config.Options
	lc     config.LevelConfig
	log    *obslog.Logger
	status Status
	pool   *pool.Pool
}

// New validates opts and returns a ready-to-run Enclave with unbounded
// concurrency. Use NewWithPool to share a concurrency-bounded pool across
// many Enclave instances (e.g. one host process serving many agents).
func New(opts config.Options) (*Enclave, error) {
	return NewWithPool(opts, nil)
}

// NewWithPool is New, additionally bounding concurrent Run calls across
// every Enclave sharing p to p's capacity.
func NewWithPool(opts config.Options, p *pool.Pool) (*Enclave, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid enclave options: %w", err)
	}
	return &Enclave{
		ID:     uuid.NewString(),
		opts:   opts,
		lc:     opts.ResolvedLevelConfig(),
		log:    obslog.Get(obslog.CategoryEnclave),
		status: StatusCreated,
		pool:   p,
	}, nil
}

// Status reports the current state-machine state.
func (e *Enclave) Status() Status { return e.status }

// Run executes source to completion (or failure) and returns the terminal
// SessionResult. It never panics past this boundary: every internal error
// is folded into a Failure instead.
func (e *Enclave) Run(ctx context.Context, source string) *SessionResult {
	if e.pool != nil {
		release, err := e.pool.Acquire(ctx)
		if err != nil {
			e.status = StatusCancelled
			return e.failure(enclaveerr.New(enclaveerr.Cancelled, "waiting for a worker slot: %v", err), governor.Counters{})
		}
		defer release()
	}

	e.status = StatusValidating
	e.log.Debug("validating source (%d bytes)", len(source))

	if e.opts.SkipValidation {
		e.log.Warn("validation bypassed via SkipValidation; never use in production")
	} else if _, verr := validator.Validate(source, e.lc, e.opts.Limits); verr != nil {
		e.status = StatusRejected
		e.log.WithFields("warn", "validation rejected program", map[string]any{"rule": verr.Data["rule"]})
		return e.failure(verr, governor.Counters{})
	}

	instrumented := instrument.Rewrite(source)
	prepared := jsvm.PrepareSource(instrumented)
	e.status = StatusInstrumented

	gov := governor.New(e.opts.Limits)
	br := bridge.New(e.opts.Bridge, e.opts.ToolHandler)

	vm, verr := jsvm.New(e.opts, e.lc, gov, br)
	if verr != nil {
		e.status = StatusFailed
		return e.failure(verr, gov.Snapshot())
	}
	defer vm.Dispose()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(e.opts.Limits.TimeoutMS)*time.Millisecond)
	defer cancel()

	e.status = StatusRunning
	value, runErr := vm.Run(runCtx, prepared)

	counters := gov.Snapshot()
	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			e.status = StatusTimedOut
			runErr = enclaveerr.New(enclaveerr.Timeout, "wall-clock budget exceeded")
		} else if ctx.Err() == context.Canceled {
			e.status = StatusCancelled
			runErr = enclaveerr.New(enclaveerr.Cancelled, "execution cancelled")
		} else {
			e.status = StatusFailed
		}
		return e.failure(runErr, counters)
	}

	e.status = StatusCompleted
	return &SessionResult{
		Success: true,
		Value:   value,
		Stats:   statsFrom(counters, gov.Elapsed(), false),
	}
}

func (e *Enclave) failure(err *enclaveerr.Error, counters governor.Counters) *SessionResult {
	return &SessionResult{
		Success:   false,
		ErrorKind: err.Kind,
		Message:   err.Message,
		Data:      err.Data,
		Stats:     statsFrom(counters, 0, false),
	}
}

func statsFrom(c governor.Counters, elapsedMs int64, hard bool) Stats {
	return Stats{
		Iterations:     c.Iterations,
		ConsoleBytes:   c.ConsoleBytes,
		ConsoleCalls:   c.ConsoleCalls,
		ToolCalls:      c.ToolCalls,
		AllocBytes:     c.AllocBytes,
		PeakAllocBytes: c.PeakAllocBytes,
		ElapsedMs:      elapsedMs,
		Hard:           hard,
	}
}

// Dispose releases the Enclave's resources. Terminal states release the
// realm; reuse requires a new instance.
func (e *Enclave) Dispose() {}

// Package bridge implements the tool-call bridge: converting
// an in-sandbox `callTool(name, args)` into a suspension, handing the
// request to a host-supplied handler, and resuming the inner realm with a
// structurally-cloned, membrane-ready result. Suspension is modeled as a
// blocking native Go call rather than sobek's Promise-construction API —
// the native function blocks the calling goroutine on a channel, and the
// plain (non-async) JS-side `callTool` shim returns the already-resolved
// value directly — the same "coroutine via message passing" shape this
// package is built around.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
	"github.com/google/uuid"
)

// ToolCall mirrors the record {id, name, args, resolve, reject};
// resolve/reject are modeled as a single response channel instead of
// separate callbacks, which is equivalent and simpler to drive from Go.
type ToolCall struct {
	ID   string
	Name string
	Args any

	response chan toolResponse
}

type toolResponse struct {
	value any
	err   *enclaveerr.Error
}

var dangerousKeys = map[string]bool{
	"constructor": true, "prototype": true, "__proto__": true,
}

// Bridge serializes tool-call dispatch: calls issued by the same execution
// observe strict FIFO completion order, enforced by allowing only one
// in-flight request at a time.
type Bridge struct {
	cfg      config.BridgeConfig
	handler  config.ToolHandler
	inFlight int32
	limiter  *rate.Limiter
}

// New constructs a Bridge bound to one tool handler. A MaxCallsPerSecond of
// zero leaves limiter nil, so dispatch pacing is skipped entirely.
func New(cfg config.BridgeConfig, handler config.ToolHandler) *Bridge {
	b := &Bridge{cfg: cfg, handler: handler}
	if cfg.MaxCallsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.MaxCallsPerSecond), 1)
	}
	return b
}

// Call validates args, dispatches to the host handler, validates the
// response, and returns the cloned result — or a sanitized *enclaveerr.Error
// from whichever step failed. It is safe to call from the goroutine
// driving the inner realm because it blocks synchronously; the JS shim that
// calls it is a plain function, so the VM sees the result as an ordinary,
// already-resolved return value.
func (b *Bridge) Call(ctx context.Context, name string, args any) (any, *enclaveerr.Error) {
	if !atomic.CompareAndSwapInt32(&b.inFlight, 0, 1) {
		return nil, enclaveerr.New(enclaveerr.Internal, "tool bridge: concurrent call attempted; at most one in-flight request is supported")
	}
	defer atomic.StoreInt32(&b.inFlight, 0)

	if err := b.validateArgs(args); err != nil {
		return nil, err
	}

	if b.limiter != nil {
		if werr := b.limiter.Wait(ctx); werr != nil {
			return nil, enclaveerr.New(enclaveerr.ToolLimit, "tool call pacing: %v", werr)
		}
	}

	call := &ToolCall{ID: uuid.NewString(), Name: name, Args: args, response: make(chan toolResponse, 1)}
	go b.dispatch(call)

	select {
	case <-ctx.Done():
		return nil, enclaveerr.New(enclaveerr.Cancelled, "tool call %s cancelled: %v", call.ID, ctx.Err())
	case resp := <-call.response:
		if resp.err != nil {
			return nil, resp.err
		}
		return resp.value, nil
	}
}

func (b *Bridge) dispatch(call *ToolCall) {
	if b.handler == nil {
		call.response <- toolResponse{err: enclaveerr.New(enclaveerr.ToolError, "no toolHandler configured for call %q", call.Name)}
		return
	}
	result, err := b.handler(call.Name, call.Args)
	if err != nil {
		call.response <- toolResponse{err: enclaveerr.New(enclaveerr.ToolError, "%s", err.Error())}
		return
	}
	if err := b.validateResponseSize(result); err != nil {
		call.response <- toolResponse{err: err}
		return
	}
	cloned, cerr := structuralClone(result)
	if cerr != nil {
		call.response <- toolResponse{err: enclaveerr.New(enclaveerr.ToolError, "tool response not structurally cloneable: %v", cerr)}
		return
	}
	call.response <- toolResponse{value: cloned}
}

// validateArgs enforces step 1: no functions/symbols (Go side:
// nothing callable crosses this boundary by construction), bounded depth,
// no dangerous keys, bounded size.
func (b *Bridge) validateArgs(args any) *enclaveerr.Error {
	depth, err := scanDepth(args, 0, b.cfg.MaxArgDepth)
	if err != nil {
		return enclaveerr.New(enclaveerr.ToolPayloadTooLarge, "%v", err)
	}
	_ = depth
	encoded, mErr := json.Marshal(args)
	if mErr != nil {
		return enclaveerr.New(enclaveerr.ToolPayloadTooLarge, "tool args not JSON-serializable: %v", mErr)
	}
	if int64(len(encoded)) > b.cfg.MaxPayloadBytes {
		return enclaveerr.New(enclaveerr.ToolPayloadTooLarge, "tool args exceed max payload of %d bytes", b.cfg.MaxPayloadBytes).
			WithData(map[string]any{"sizeBytes": len(encoded), "maxPayloadBytes": b.cfg.MaxPayloadBytes})
	}
	return nil
}

func (b *Bridge) validateResponseSize(v any) *enclaveerr.Error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return enclaveerr.New(enclaveerr.ToolPayloadTooLarge, "tool response not JSON-serializable: %v", err)
	}
	if int64(len(encoded)) > b.cfg.MaxPayloadBytes {
		return enclaveerr.New(enclaveerr.ToolPayloadTooLarge, "tool response exceeds max payload of %d bytes", b.cfg.MaxPayloadBytes).
			WithData(map[string]any{"sizeBytes": len(encoded), "maxPayloadBytes": b.cfg.MaxPayloadBytes})
	}
	return nil
}

func scanDepth(v any, depth, max int) (int, error) {
	if depth > max {
		return depth, fmt.Errorf("depth %d exceeds max arg depth %d", depth, max)
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if dangerousKeys[k] {
				return depth, fmt.Errorf("dangerous key %q in tool payload", k)
			}
			if _, err := scanDepth(val, depth+1, max); err != nil {
				return depth, err
			}
		}
	case []any:
		for _, val := range t {
			if _, err := scanDepth(val, depth+1, max); err != nil {
				return depth, err
			}
		}
	}
	return depth, nil
}

// structuralClone deep-clones v through a JSON round-trip, Go-side, so the
// value handed back across the bridge shares no object identity with
// whatever the host handler's return statement still holds onto. This runs
// unconditionally, before the value ever reaches a realm; internal/jsvm
// layers a second, optional clone on top of this one when the outer realm
// is enabled, rebuilding the value inside a wholly separate sobek runtime
// for defense in depth against the inner realm sharing identity with it.
func structuralClone(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

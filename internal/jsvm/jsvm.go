// Package jsvm wires a sobek.Runtime into a dual-context isolation model:
// an inner realm carrying the membrane prelude and the native bindings, and
// (when DoubleVMEnabled) a
// second outer realm used purely to rebuild tool-call results through its
// own JSON.stringify/JSON.parse before the inner realm ever sees them, so
// no value handed back from a tool call shares object identity across the
// two runtimes.
//
// Only tool-call results pass through the membrane's wrap(). The runtime's
// own intrinsics stay present and unwrapped, and host-supplied globals are
// bound unwrapped; the curated global namespace is enforced by the
// validator's allow-list, not by removing bindings from the realm.
//
// The `await callTool(...)` surface the validator sanctions for a top-level
// `__ag_main` entry is implemented without sobek's Promise-construction
// APIs: tool-call suspension is a real Go-level blocking channel receive
// (internal/bridge), so the JS-visible call is synchronous under the hood.
// Rather than depend on an unverified job-queue-draining API to resolve the
// resulting awaited value, the runtime strips the `async`/`await` keywords
// from validated source before execution — legal because, by construction,
// those keywords only ever appear around a callTool invocation that has
// already fully resolved by the time control returns to the engine.
package jsvm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/sobek"
	"golang.org/x/sync/errgroup"

	"github.com/agentfront/enclave/internal/bridge"
	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
	"github.com/agentfront/enclave/internal/governor"
	"github.com/agentfront/enclave/internal/instrument"
	"github.com/agentfront/enclave/internal/lexer"
	"github.com/agentfront/enclave/internal/membrane"
	"github.com/agentfront/enclave/internal/sanitize"
)

// VM owns the inner realm (and, when enabled, the outer realm used for
// tool-result cloning) for one enclave run.
type VM struct {
	inner *sobek.Runtime
	outer *sobek.Runtime // nil unless opts.DoubleVMEnabled

	gov  *governor.Governor
	br   *bridge.Bridge
	opts config.Options
	lc   config.LevelConfig
}

// New creates a VM, seeds the inner realm with the membrane prelude and
// native bindings, and (when enabled) allocates the outer realm used for
// tool-result cloning — the outer realm needs no seeding beyond sobek's own
// builtin JSON object. It does not run user code.
func New(opts config.Options, lc config.LevelConfig, gov *governor.Governor, br *bridge.Bridge) (*VM, *enclaveerr.Error) {
	v := &VM{gov: gov, br: br, opts: opts, lc: lc}

	v.inner = sobek.New()
	if opts.DoubleVMEnabled {
		v.outer = sobek.New()
	}

	if err := v.seedRealm(v.inner); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VM) seedRealm(rt *sobek.Runtime) *enclaveerr.Error {
	policy := membrane.Policy{
		BlockedProperties: blockedPropertyNames(v.lc),
		StrictThrow:       v.lc.StrictThrow,
		MaxDepth:          v.opts.SecureProxy.ProxyMaxDepth,
	}
	prelude, err := membrane.Render(policy)
	if err != nil {
		return enclaveerr.New(enclaveerr.Internal, "render membrane prelude: %v", err)
	}
	if _, err := rt.RunString(prelude); err != nil {
		return enclaveerr.New(enclaveerr.Internal, "install membrane prelude: %v", err)
	}

	if err := v.bindNatives(rt); err != nil {
		return err
	}
	if err := v.bindGlobals(rt); err != nil {
		return err
	}
	return nil
}

// cloneAcrossRealms rebuilds value inside the outer realm via
// JSON.stringify/JSON.parse and exports the result back to Go, so the
// object the inner realm ultimately receives was constructed by a
// different sobek runtime than whatever produced value. Call only when
// v.outer is non-nil.
func (v *VM) cloneAcrossRealms(value any) (any, error) {
	if err := v.outer.Set("__enclave_clone_in", v.outer.ToValue(value)); err != nil {
		return nil, fmt.Errorf("stage clone input: %w", err)
	}
	cloned, err := v.outer.RunString("JSON.parse(JSON.stringify(__enclave_clone_in))")
	if err != nil {
		return nil, fmt.Errorf("clone across realms: %w", err)
	}
	return cloned.Export(), nil
}

func blockedPropertyNames(lc config.LevelConfig) []string {
	set := config.NewBlockedPropertySet(lc.BlockedCategories)
	return set.Names()
}

// bindNatives wires the governor/bridge native functions into rt: the
// instrumentation hooks (__gov_tick, __gov_alloc, __gov_concat) and the
// synchronous tool-call primitive (__callToolSync), plus a curated console
// bound to the governor's console accounting, enabled only when the level
// config turns the console on (PERMISSIVE).
func (v *VM) bindNatives(rt *sobek.Runtime) *enclaveerr.Error {
	if err := rt.Set("__gov_tick", func(sobek.FunctionCall) sobek.Value {
		if gerr := v.gov.Tick(); gerr != nil {
			panic(rt.NewGoError(gerr))
		}
		return sobek.Undefined()
	}); err != nil {
		return wrapBindErr(err)
	}

	if err := rt.Set("__gov_alloc", func(call sobek.FunctionCall) sobek.Value {
		n := int64(0)
		if len(call.Arguments) > 0 {
			n = call.Arguments[0].ToInteger()
		}
		if gerr := v.gov.Alloc(n); gerr != nil {
			panic(rt.NewGoError(gerr))
		}
		return sobek.Undefined()
	}); err != nil {
		return wrapBindErr(err)
	}

	// __gov_concat backs the self-doubling growth rewrite in
	// internal/instrument: it performs the `+` itself so the debit reflects
	// the actual resulting size rather than a flat estimate, and falls back
	// to numeric addition when neither operand is a string so rewriting
	// `s += s` for an accumulator that happens to be a number stays correct.
	if err := rt.Set(instrument.ConcatFunc, func(call sobek.FunctionCall) sobek.Value {
		if len(call.Arguments) < 2 {
			return sobek.Undefined()
		}
		a, b := call.Arguments[0], call.Arguments[1]
		_, aIsStr := a.Export().(string)
		_, bIsStr := b.Export().(string)
		if aIsStr || bIsStr {
			result := a.String() + b.String()
			if gerr := v.gov.Alloc(governor.EstimateStringBytes(len(result))); gerr != nil {
				panic(rt.NewGoError(gerr))
			}
			return rt.ToValue(result)
		}
		return rt.ToValue(a.ToFloat() + b.ToFloat())
	}); err != nil {
		return wrapBindErr(err)
	}

	if err := rt.Set("__callToolSync", func(call sobek.FunctionCall) sobek.Value {
		name := ""
		if len(call.Arguments) > 0 {
			name = call.Arguments[0].String()
		}
		var args any
		if len(call.Arguments) > 1 {
			args = call.Arguments[1].Export()
		}
		if gerr := v.gov.ToolCall(); gerr != nil {
			panic(rt.NewGoError(gerr))
		}
		result, berr := v.br.Call(context.Background(), name, args)
		if berr != nil {
			san := sanitize.FromHostError(string(berr.Kind), berr.Message, v.opts.SanitizeStackTraces)
			jsErr := rt.NewGoError(enclaveerr.New(berr.Kind, "%s: %s", san.Name, san.Message))
			panic(jsErr)
		}
		if v.outer != nil {
			cloned, cerr := v.cloneAcrossRealms(result)
			if cerr != nil {
				panic(rt.NewGoError(enclaveerr.New(enclaveerr.Internal, "outer-realm clone: %v", cerr)))
			}
			result = cloned
		}
		return rt.ToValue(result)
	}); err != nil {
		return wrapBindErr(err)
	}

	// callTool is the in-sandbox surface user code calls; it is a plain
	// (non-async) function because __callToolSync already blocks until the
	// result is ready (see package doc), and its return value is passed
	// through the membrane wrap() installed by the prelude before user code
	// sees it.
	if _, err := rt.RunString(`function callTool(name, args) { return globalThis.__enclave_wrap(__callToolSync(name, args)); }`); err != nil {
		return enclaveerr.New(enclaveerr.Internal, "install callTool shim: %v", err)
	}

	if v.lc.ConsoleEnabled {
		console := rt.NewObject()
		logFn := func(call sobek.FunctionCall) sobek.Value {
			var sb strings.Builder
			for i, a := range call.Arguments {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(a.String())
			}
			if gerr := v.gov.Console(int64(sb.Len())); gerr != nil {
				panic(rt.NewGoError(gerr))
			}
			return sobek.Undefined()
		}
		for _, name := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(name, logFn); err != nil {
				return wrapBindErr(err)
			}
		}
		if err := rt.Set("console", console); err != nil {
			return wrapBindErr(err)
		}
	}

	return nil
}

// bindGlobals injects host-supplied construction-option globals after the
// standard curated namespace is already present from the runtime's own
// intrinsics; function-valued globals are only bound
// when AllowFunctionsInGlobals is set and, if an allow-list is present,
// restricted to it — enforced earlier by config.Options.Validate but
// re-checked here defensively since globals are the one host-authored
// surface reaching the inner realm directly.
func (v *VM) bindGlobals(rt *sobek.Runtime) *enclaveerr.Error {
	for _, g := range v.opts.Globals {
		if g.IsFunc && !v.opts.AllowFunctionsInGlobals {
			continue
		}
		if g.IsFunc && len(v.opts.FunctionAllowList) > 0 && !v.opts.FunctionAllowList[g.Name] {
			continue
		}
		if err := rt.Set(g.Name, g.Value); err != nil {
			return wrapBindErr(err)
		}
	}
	return nil
}

func wrapBindErr(err error) *enclaveerr.Error {
	return enclaveerr.New(enclaveerr.Internal, "bind runtime global: %v", err)
}

// PrepareSource strips the sanctioned async/await keywords (see package
// doc) and wraps the body in an immediately-invoked function so a bare
// `return` at the top level works the way the scenarios expect
// (`return 1 + 2;`).
func PrepareSource(instrumented string) string {
	toks := lexer.All(instrumented)
	var out strings.Builder
	last := 0
	for _, t := range toks {
		if t.Kind == lexer.Keyword && (t.Value == "async" || t.Value == "await") {
			out.WriteString(instrumented[last:t.Start])
			last = t.End
			continue
		}
	}
	out.WriteString(instrumented[last:])
	stripped := out.String()
	return "(function(){\n" + stripped + "\n})()"
}

// Run executes prepared source in the inner realm and returns the
// resulting exported value, or an *enclaveerr.Error when execution fails.
// A governor or bridge failure raised by a native binding and left uncaught
// by the script keeps its own error kind (a bridge failure carries the
// sanitized name and message); any other uncaught script exception is
// reported as SECURITY_VIOLATION. The watchdog that interrupts the realm on cancellation runs as an
// errgroup member alongside the (implicit) execution, so its own exit is
// waited on before Run returns rather than leaked as a bare goroutine.
func (v *VM) Run(ctx context.Context, source string) (result any, runErr *enclaveerr.Error) {
	defer func() {
		if r := recover(); r != nil {
			runErr = toEnclaveError(r)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			v.inner.Interrupt(gctx.Err())
		case <-done:
		}
		return nil
	})

	value, err := v.inner.RunString(source)
	close(done)
	_ = g.Wait()

	if err != nil {
		return nil, toEnclaveError(err)
	}
	return value.Export(), nil
}

// Dispose releases both realms. Sobek runtimes have no explicit Close, so
// this is a no-op retained for symmetry with the Enclave lifecycle and as
// the hook future worker-pool recycling would attach to.
func (v *VM) Dispose() {}

func toEnclaveError(r any) *enclaveerr.Error {
	switch e := r.(type) {
	case *enclaveerr.Error:
		return e
	case *sobek.InterruptedError:
		return enclaveerr.New(enclaveerr.Timeout, "execution interrupted: %v", e)
	case *sobek.Exception:
		var inner *enclaveerr.Error
		if errors.As(e, &inner) {
			return inner
		}
		return enclaveerr.New(enclaveerr.SecurityViolation, "unhandled exception: %v", e)
	case error:
		return enclaveerr.New(enclaveerr.Internal, "%v", e)
	default:
		return enclaveerr.New(enclaveerr.Internal, "panic: %v", r)
	}
}

package config

import (
	"fmt"

	"github.com/agentfront/enclave/internal/lexer"
)

// GlobalValue is a host-supplied global binding.
// Functions are only honored when AllowFunctionsInGlobals is set, and then
// only for names on FunctionAllowList (if non-empty).
type GlobalValue struct {
	Name  string
	Value any
	IsFunc bool
	FuncBody string // source text, scanned for forbidden tokens before binding
}

// ToolHandler is the host capability invoked by the in-sandbox callTool
// surface. It must not block indefinitely; the
// governor's wall clock keeps running while it executes.
type ToolHandler func(name string, args any) (any, error)

// Options collects every construction option accepted when building an
// Enclave.
type Options struct {
	SecurityLevel SecurityLevel
	Limits        GovernorLimits
	Globals       []GlobalValue
	AllowFunctionsInGlobals bool
	FunctionAllowList       map[string]bool

	ToolHandler ToolHandler
	Bridge      BridgeConfig

	DoubleVMEnabled bool

	Adapter    Adapter
	WorkerPool WorkerPoolConfig

	SecureProxy SecureProxyConfig

	SanitizeStackTraces bool

	// SkipValidation bypasses the syntactic validator; intended only for
	// testing the runtime layers in isolation, never production use.
	SkipValidation bool
}

// DefaultOptions returns the security-recommended defaults: SECURE level,
// double VM on, isolated bridge, in-process adapter.
func DefaultOptions() Options {
	return Options{
		SecurityLevel:       Secure,
		Limits:              DefaultGovernorLimits(),
		Bridge:              DefaultBridgeConfig(),
		DoubleVMEnabled:     true,
		Adapter:             AdapterInProcess,
		WorkerPool:          DefaultWorkerPoolConfig(),
		SecureProxy:         DefaultSecureProxyConfig(),
		SanitizeStackTraces: true,
	}
}

// Validate checks every option for internal consistency.
func (o Options) Validate() error {
	if err := o.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := o.Bridge.Validate(); err != nil {
		return fmt.Errorf("toolBridge: %w", err)
	}
	if err := o.WorkerPool.Validate(); err != nil {
		return fmt.Errorf("workerPoolConfig: %w", err)
	}
	if err := o.SecureProxy.Validate(); err != nil {
		return fmt.Errorf("secureProxyConfig: %w", err)
	}
	if o.Adapter == AdapterWorker && o.WorkerPool.MaxWorkers < 1 {
		return fmt.Errorf("adapter=worker requires workerPoolConfig.maxWorkers >= 1")
	}
	for _, g := range o.Globals {
		if g.IsFunc && !o.AllowFunctionsInGlobals {
			return fmt.Errorf("global %q is a function but allowFunctionsInGlobals is false", g.Name)
		}
		if g.IsFunc && len(o.FunctionAllowList) > 0 && !o.FunctionAllowList[g.Name] {
			return fmt.Errorf("global %q is a function not present in the function allow-list", g.Name)
		}
		if g.IsFunc {
			for _, t := range lexer.All(g.FuncBody) {
				if (t.Kind == lexer.Ident || t.Kind == lexer.Keyword) && ForbiddenIdentifierSet[t.Value] {
					return fmt.Errorf("global %q function body uses forbidden identifier %q", g.Name, t.Value)
				}
			}
		}
		if ForbiddenIdentifierSet[g.Name] {
			return fmt.Errorf("global %q uses a forbidden identifier as its name", g.Name)
		}
	}
	return nil
}

// ResolvedLevelConfig resolves the LevelConfig for o.SecurityLevel, folding
// in the explicit SecureProxyConfig overrides.
func (o Options) ResolvedLevelConfig() LevelConfig {
	lc := LevelConfigFor(o.SecurityLevel)
	if !o.SecureProxy.BlockConstructor {
		delete(lc.BlockedCategories, CategoryPrototype)
	}
	if !o.SecureProxy.BlockPrototype {
		// BlockPrototype=false has no effect: the resolved LevelConfig has no
		// field for it, and the membrane prelude's getPrototypeOf trap always
		// returns null.
	}
	if !o.SecureProxy.BlockLegacyAccessors {
		delete(lc.BlockedCategories, CategoryLegacyAccessors)
	}
	lc.RedactStackTraces = lc.RedactStackTraces || o.SanitizeStackTraces
	for _, g := range o.Globals {
		lc.AllowedGlobals[g.Name] = true
	}
	return lc
}

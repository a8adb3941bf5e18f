package config

import "fmt"

// GovernorLimits is a flat struct of system-wide resource ceilings with a
// Validate method.
type GovernorLimits struct {
	MaxIterations         int64 `yaml:"max_iterations" json:"max_iterations"`
	TimeoutMS             int64 `yaml:"timeout_ms" json:"timeout_ms"`
	MemoryLimitBytes      int64 `yaml:"memory_limit_bytes" json:"memory_limit_bytes"` // 0 = off
	MaxConsoleOutputBytes int64 `yaml:"max_console_output_bytes" json:"max_console_output_bytes"`
	MaxConsoleCalls       int64 `yaml:"max_console_calls" json:"max_console_calls"`
	MaxToolCalls          int64 `yaml:"max_tool_calls" json:"max_tool_calls"`

	// Resource-bomb literal ceilings.
	MaxArrayLiteralLen int64 `yaml:"max_array_literal_len" json:"max_array_literal_len"`
	MaxRepeatCount     int64 `yaml:"max_repeat_count" json:"max_repeat_count"`
	MaxBigIntExponent  int64 `yaml:"max_bigint_exponent" json:"max_bigint_exponent"`
}

// DefaultGovernorLimits returns conservative defaults.
func DefaultGovernorLimits() GovernorLimits {
	return GovernorLimits{
		MaxIterations:         1_000_000,
		TimeoutMS:             5_000,
		MemoryLimitBytes:      64 * 1024 * 1024,
		MaxConsoleOutputBytes: 64 * 1024,
		MaxConsoleCalls:       1_000,
		MaxToolCalls:          100,
		MaxArrayLiteralLen:    1_000_000,
		MaxRepeatCount:        1_000_000,
		MaxBigIntExponent:     1_000,
	}
}

// Validate enforces the ranges the governor depends on.
func (l GovernorLimits) Validate() error {
	if l.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be > 0")
	}
	if l.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be > 0")
	}
	if l.MemoryLimitBytes < 0 {
		return fmt.Errorf("memory_limit_bytes must be >= 0 (0 disables the limit)")
	}
	if l.MaxConsoleCalls < 0 || l.MaxConsoleOutputBytes < 0 {
		return fmt.Errorf("console limits must be >= 0")
	}
	if l.MaxToolCalls < 0 {
		return fmt.Errorf("max_tool_calls must be >= 0")
	}
	if l.MaxArrayLiteralLen < 0 || l.MaxRepeatCount < 0 || l.MaxBigIntExponent < 0 {
		return fmt.Errorf("resource-bomb literal ceilings must be >= 0")
	}
	return nil
}

// BridgeMode selects how the tool-call bridge dispatches requests.
type BridgeMode string

const (
	BridgeIsolated BridgeMode = "isolated"
	BridgeDirect   BridgeMode = "direct"
)

// BridgeConfig configures the tool-call bridge: dispatch mode, payload size
// and argument-depth caps, and dispatch pacing.
type BridgeConfig struct {
	Mode                      BridgeMode `yaml:"mode" json:"mode"`
	AcknowledgeInsecureDirect bool       `yaml:"acknowledge_insecure_direct" json:"acknowledge_insecure_direct"`
	MaxPayloadBytes           int64      `yaml:"max_payload_bytes" json:"max_payload_bytes"`
	MaxArgDepth               int        `yaml:"max_arg_depth" json:"max_arg_depth"`

	// MaxCallsPerSecond paces dispatch to the host handler independently of
	// the governor's total-call budget. Zero disables pacing.
	MaxCallsPerSecond float64 `yaml:"max_calls_per_second" json:"max_calls_per_second"`
}

// DefaultBridgeConfig returns the safe default (isolated mode).
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Mode:              BridgeIsolated,
		MaxPayloadBytes:   256 * 1024,
		MaxArgDepth:       10,
		MaxCallsPerSecond: 50,
	}
}

// Validate enforces that `direct` mode was explicitly acknowledged.
func (b BridgeConfig) Validate() error {
	if b.Mode == BridgeDirect && !b.AcknowledgeInsecureDirect {
		return fmt.Errorf("toolBridge.mode=direct requires acknowledgeInsecureDirect=true")
	}
	if b.Mode != BridgeIsolated && b.Mode != BridgeDirect {
		return fmt.Errorf("unknown tool bridge mode %q", b.Mode)
	}
	if b.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be > 0")
	}
	if b.MaxArgDepth <= 0 {
		return fmt.Errorf("max_arg_depth must be > 0")
	}
	if b.MaxCallsPerSecond < 0 {
		return fmt.Errorf("max_calls_per_second must be >= 0")
	}
	return nil
}

// WorkerPoolConfig governs the optional shared worker pool, kept as its
// own struct rather than folded into GovernorLimits since it governs
// concurrency across Enclave instances, not one run's budget.
type WorkerPoolConfig struct {
	MinWorkers            int   `yaml:"min_workers" json:"min_workers"`
	MaxWorkers            int   `yaml:"max_workers" json:"max_workers"`
	MemoryLimitPerWorker  int64 `yaml:"memory_limit_per_worker" json:"memory_limit_per_worker"`
	WarmOnInit            bool  `yaml:"warm_on_init" json:"warm_on_init"`
}

// DefaultWorkerPoolConfig returns a modest fixed-size pool (1 to 8 workers).
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MinWorkers:           1,
		MaxWorkers:           8,
		MemoryLimitPerWorker: 128 * 1024 * 1024,
		WarmOnInit:           false,
	}
}

// Validate checks worker-pool bounds.
func (w WorkerPoolConfig) Validate() error {
	if w.MinWorkers < 0 {
		return fmt.Errorf("min_workers must be >= 0")
	}
	if w.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1")
	}
	if w.MinWorkers > w.MaxWorkers {
		return fmt.Errorf("min_workers (%d) must be <= max_workers (%d)", w.MinWorkers, w.MaxWorkers)
	}
	return nil
}

// SecureProxyConfig carries explicit membrane overrides.
type SecureProxyConfig struct {
	BlockConstructor      bool `yaml:"block_constructor" json:"block_constructor"`
	BlockPrototype        bool `yaml:"block_prototype" json:"block_prototype"`
	BlockLegacyAccessors  bool `yaml:"block_legacy_accessors" json:"block_legacy_accessors"`
	ProxyMaxDepth         int  `yaml:"proxy_max_depth" json:"proxy_max_depth"`
}

// DefaultSecureProxyConfig returns a conservative default max recursion depth.
func DefaultSecureProxyConfig() SecureProxyConfig {
	return SecureProxyConfig{
		BlockConstructor:     true,
		BlockPrototype:       true,
		BlockLegacyAccessors: true,
		ProxyMaxDepth:        8,
	}
}

func (s SecureProxyConfig) Validate() error {
	if s.ProxyMaxDepth <= 0 {
		return fmt.Errorf("proxy_max_depth must be > 0")
	}
	return nil
}

// Adapter selects the execution host.
type Adapter string

const (
	AdapterInProcess Adapter = "in-process"
	AdapterWorker    Adapter = "worker"
)

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of an enclave config file: one field per
// concern, yaml tags, DefaultFileConfig + Load + environment-variable
// overrides.
type FileConfig struct {
	SecurityLevel string           `yaml:"security_level"`
	Limits        GovernorLimits   `yaml:"limits"`
	Bridge        BridgeConfig     `yaml:"bridge"`
	WorkerPool    WorkerPoolConfig `yaml:"worker_pool"`
	SecureProxy   SecureProxyConfig `yaml:"secure_proxy"`
	DoubleVM      bool             `yaml:"double_vm_enabled"`
	Sanitize      bool             `yaml:"sanitize_stack_traces"`
}

// DefaultFileConfig mirrors DefaultOptions in on-disk form.
func DefaultFileConfig() *FileConfig {
	d := DefaultOptions()
	return &FileConfig{
		SecurityLevel: d.SecurityLevel.String(),
		Limits:        d.Limits,
		Bridge:        d.Bridge,
		WorkerPool:    d.WorkerPool,
		SecureProxy:   d.SecureProxy,
		DoubleVM:      d.DoubleVMEnabled,
		Sanitize:      d.SanitizeStackTraces,
	}
}

// Load reads a YAML config file, falling back to defaults for a missing file.
func Load(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	if path == "" {
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets ENCLAVE_<FIELD> environment variables win over
// file/default values.
func applyEnvOverrides(cfg *FileConfig) {
	if v := os.Getenv("ENCLAVE_SECURITY_LEVEL"); v != "" {
		cfg.SecurityLevel = strings.ToUpper(v)
	}
	if v := os.Getenv("ENCLAVE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.TimeoutMS = n
		}
	}
	if v := os.Getenv("ENCLAVE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MaxIterations = n
		}
	}
	if v := os.Getenv("ENCLAVE_MEMORY_LIMIT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.MemoryLimitBytes = n
		}
	}
}

// ToOptions converts the on-disk shape into runtime Options (ToolHandler and
// Globals are wired separately by the caller, since they are not
// serializable).
func (f *FileConfig) ToOptions() (Options, error) {
	level, err := ParseSecurityLevel(f.SecurityLevel)
	if err != nil {
		return Options{}, err
	}
	return Options{
		SecurityLevel:       level,
		Limits:              f.Limits,
		Bridge:              f.Bridge,
		DoubleVMEnabled:     f.DoubleVM,
		Adapter:             AdapterInProcess,
		WorkerPool:          f.WorkerPool,
		SecureProxy:         f.SecureProxy,
		SanitizeStackTraces: f.Sanitize,
	}, nil
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestGovernorLimits_Validate(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := DefaultGovernorLimits()
	assert.NoError(t, good.Validate())

	bad := good
	bad.MaxIterations = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.TimeoutMS = -1
	assert.Error(t, bad.Validate())

	bad = good
	bad.MemoryLimitBytes = -1
	assert.Error(t, bad.Validate())

	bad = good
	bad.MemoryLimitBytes = 0
	assert.NoError(t, bad.Validate(), "zero memory limit disables the check, it is not invalid")
}

func TestBridgeConfig_Validate(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := DefaultBridgeConfig()
	assert.NoError(t, good.Validate())

	direct := good
	direct.Mode = BridgeDirect
	assert.Error(t, direct.Validate(), "direct mode requires explicit acknowledgement")
	direct.AcknowledgeInsecureDirect = true
	assert.NoError(t, direct.Validate())

	bad := good
	bad.MaxCallsPerSecond = -1
	assert.Error(t, bad.Validate())

	bad = good
	bad.Mode = "bogus"
	assert.Error(t, bad.Validate())
}

func TestWorkerPoolConfig_Validate(t *testing.T) {
	defer goleak.VerifyNone(t)

	good := DefaultWorkerPoolConfig()
	assert.NoError(t, good.Validate())

	bad := good
	bad.MaxWorkers = 0
	assert.Error(t, bad.Validate())

	bad = good
	bad.MinWorkers = 10
	bad.MaxWorkers = 2
	assert.Error(t, bad.Validate())
}

func TestOptions_ValidateRejectsFunctionGlobalsWithoutOptIn(t *testing.T) {
	defer goleak.VerifyNone(t)

	opts := DefaultOptions()
	opts.Globals = []GlobalValue{{Name: "helper", IsFunc: true}}
	assert.Error(t, opts.Validate())

	opts.AllowFunctionsInGlobals = true
	assert.NoError(t, opts.Validate())
}

func TestOptions_ValidateRejectsForbiddenGlobalName(t *testing.T) {
	defer goleak.VerifyNone(t)

	opts := DefaultOptions()
	opts.Globals = []GlobalValue{{Name: "eval"}}
	assert.Error(t, opts.Validate())
}

func TestResolvedLevelConfig_MergesGlobalsAndSanitizeOverride(t *testing.T) {
	defer goleak.VerifyNone(t)

	opts := DefaultOptions()
	opts.SecurityLevel = Secure
	opts.SanitizeStackTraces = true
	opts.Globals = []GlobalValue{{Name: "myHostFn"}}

	lc := opts.ResolvedLevelConfig()
	assert.True(t, lc.AllowedGlobals["myHostFn"])
	assert.True(t, lc.RedactStackTraces)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg, err := Load("/nonexistent/path/does-not-exist.yaml")
	assert.NoError(t, err)
	assert.Equal(t, DefaultFileConfig().SecurityLevel, cfg.SecurityLevel)
}

func TestApplyEnvOverrides_WinsOverDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Setenv("ENCLAVE_SECURITY_LEVEL", "strict")
	t.Setenv("ENCLAVE_TIMEOUT_MS", "9999")
	t.Setenv("ENCLAVE_MAX_ITERATIONS", "42")

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "STRICT", cfg.SecurityLevel)
	assert.EqualValues(t, 9999, cfg.Limits.TimeoutMS)
	assert.EqualValues(t, 42, cfg.Limits.MaxIterations)
}

func TestParseSecurityLevel_Lattice(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.True(t, Strict.AtLeast(Secure))
	assert.True(t, Secure.AtLeast(Standard))
	assert.False(t, Standard.AtLeast(Secure))

	lvl, err := ParseSecurityLevel("secure")
	assert.NoError(t, err)
	assert.Equal(t, Secure, lvl)

	_, err = ParseSecurityLevel("nonsense")
	assert.Error(t, err)
}

package enclave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/agentfront/enclave/internal/bridge"
	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
	"github.com/agentfront/enclave/internal/pool"
)

// TestScenarios exercises the core end-to-end behaviors: a plain successful
// run, iteration/memory exhaustion, constructor-name obfuscation, and a
// full tool-call round trip.
func TestScenarios(t *testing.T) {
	defer goleak.VerifyNone(t)

	tests := []struct {
		name      string
		code      string
		configure func(*config.Options)
		wantOK    bool
		wantValue any
		wantKind  enclaveerr.Kind
	}{
		{
			name:      "baseline success",
			code:      "return 1 + 2;",
			wantOK:    true,
			wantValue: int64(3),
		},
		{
			name: "iteration overflow",
			code: "let s=0; for (let i=0;i<1000;i++) s+=i; return s;",
			configure: func(o *config.Options) {
				o.Limits.MaxIterations = 100
			},
			wantOK:   false,
			wantKind: enclaveerr.ResourceExhausted,
		},
		{
			name: "iteration overflow with braced body",
			code: "let s=0; for (let i=0;i<1000;i++) { s+=i; } return s;",
			configure: func(o *config.Options) {
				o.Limits.MaxIterations = 100
			},
			wantOK:   false,
			wantKind: enclaveerr.ResourceExhausted,
		},
		{
			name: "memory bomb via self-doubling concat",
			code: `let s="a"; for (let i=0;i<25;i++) { s = s+s; } return s.length;`,
			configure: func(o *config.Options) {
				o.Limits.MemoryLimitBytes = 1 * 1024 * 1024
			},
			wantOK:   false,
			wantKind: enclaveerr.MemoryLimitExceeded,
		},
		{
			name:     "constructor name built from string concatenation",
			code:     "const k='con'+'structor'; return Array[k] ? 1 : 0;",
			wantOK:   false,
			wantKind: enclaveerr.ValidationFailed,
		},
		{
			name: "tool round-trip",
			code: "const r = callTool('t', {}); return r.count;",
			configure: func(o *config.Options) {
				o.ToolHandler = bridge.EchoHandler
			},
			wantOK:    true,
			wantValue: int64(42),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.DefaultOptions()
			opts.Limits.TimeoutMS = 2000
			if tt.configure != nil {
				tt.configure(&opts)
			}
			enc, err := New(opts)
			assert.NoError(t, err)

			result := enc.Run(context.Background(), tt.code)
			if tt.wantOK {
				assert.True(t, result.Success, "expected success, got failure: %s", result.Message)
				assert.Equal(t, tt.wantValue, result.Value)
				return
			}
			assert.False(t, result.Success)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, result.ErrorKind)
			}
		})
	}
}

// TestRun_SharedPoolSerializesExecutions exercises the optional worker-pool
// path: two Enclaves sharing a one-slot pool must
// run one at a time, and both still complete successfully.
func TestRun_SharedPoolSerializesExecutions(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := pool.New(config.WorkerPoolConfig{MaxWorkers: 1})
	opts := config.DefaultOptions()
	opts.Limits.TimeoutMS = 2000

	encA, err := NewWithPool(opts, p)
	assert.NoError(t, err)
	encB, err := NewWithPool(opts, p)
	assert.NoError(t, err)

	assert.NotEqual(t, encA.ID, encB.ID)

	resA := encA.Run(context.Background(), "return 1;")
	resB := encB.Run(context.Background(), "return 2;")

	assert.True(t, resA.Success)
	assert.True(t, resB.Success)
	assert.EqualValues(t, 1, resA.Value)
	assert.EqualValues(t, 2, resB.Value)
}

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
)

func TestBridge_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := New(config.DefaultBridgeConfig(), EchoHandler)

	result, err := b.Call(context.Background(), "t", map[string]any{})
	assert.Nil(t, err)
	m, ok := result.(map[string]any)
	assert.True(t, ok)
	assert.EqualValues(t, 42, m["count"])
}

func TestBridge_DangerousKeyRejected(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := New(config.DefaultBridgeConfig(), EchoHandler)

	_, err := b.Call(context.Background(), "anything", map[string]any{"__proto__": map[string]any{}})
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ToolPayloadTooLarge, err.Kind)
}

func TestBridge_HandlerError(t *testing.T) {
	defer goleak.VerifyNone(t)
	handler := func(name string, args any) (any, error) {
		return nil, errors.New("boom")
	}
	b := New(config.DefaultBridgeConfig(), handler)

	_, err := b.Call(context.Background(), "x", nil)
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ToolError, err.Kind)
}

func TestBridge_PayloadTooLarge(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.DefaultBridgeConfig()
	cfg.MaxPayloadBytes = 4
	b := New(cfg, EchoHandler)

	_, err := b.Call(context.Background(), "t", map[string]any{"x": "way too large a payload for four bytes"})
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ToolPayloadTooLarge, err.Kind)
}

func TestBridge_NoHandlerConfigured(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := New(config.DefaultBridgeConfig(), nil)

	_, err := b.Call(context.Background(), "t", nil)
	assert.NotNil(t, err)
	assert.Equal(t, enclaveerr.ToolError, err.Kind)
}

func TestBridge_RatePacingRejectsOnCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.DefaultBridgeConfig()
	cfg.MaxCallsPerSecond = 1
	b := New(cfg, EchoHandler)
	assert.NotNil(t, b.limiter)

	// Exhaust the single burst token, then cancel before the next one
	// refills so Wait returns promptly instead of actually sleeping ~1s.
	_, err := b.Call(context.Background(), "t", map[string]any{})
	assert.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err2 := b.Call(ctx, "t", map[string]any{})
	assert.NotNil(t, err2)
	assert.Equal(t, enclaveerr.ToolLimit, err2.Kind)
}

func TestBridge_ZeroRateLeavesLimiterDisabled(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := config.DefaultBridgeConfig()
	cfg.MaxCallsPerSecond = 0
	b := New(cfg, EchoHandler)
	assert.Nil(t, b.limiter)
}

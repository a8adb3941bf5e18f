package membrane

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_EmbedsPolicy(t *testing.T) {
	src, err := Render(Policy{
		BlockedProperties: []string{"constructor", "prototype", "__proto__"},
		StrictThrow:       true,
		MaxDepth:          8,
	})
	assert.NoError(t, err)
	assert.True(t, strings.Contains(src, "__enclave_wrap"))
	assert.True(t, strings.Contains(src, `constructor`))
	assert.True(t, strings.Contains(src, "new Proxy"))
	assert.True(t, strings.Contains(src, "getPrototypeOf"))
}

func TestRender_EmptyPolicyStillValid(t *testing.T) {
	src, err := Render(Policy{})
	assert.NoError(t, err)
	assert.True(t, strings.Contains(src, "globalThis.__enclave_wrap"))
}

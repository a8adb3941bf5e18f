package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMessage_StripsControlCharsAndTruncates(t *testing.T) {
	defer goleak.VerifyNone(t)

	raw := "hello\x00world\x1bred\tend\n"
	got := Message(raw)
	assert.Equal(t, "helloworldred\tend\n", got)

	long := strings.Repeat("a", maxMessageBytes+100)
	got = Message(long)
	assert.Len(t, got, maxMessageBytes)
}

func TestName_AllowListOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.Equal(t, "TypeError", Name("TypeError"))
	assert.Equal(t, "RangeError", Name("RangeError"))
	assert.Equal(t, "Error", Name("EvilCustomError"))
	assert.Equal(t, "Error", Name(""))
}

func TestStack_OmittedUnlessRedacted(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.Equal(t, "", Stack(false))
	assert.Equal(t, "<stack redacted>", Stack(true))
}

func TestFromHostError_SanitizesAllFields(t *testing.T) {
	defer goleak.VerifyNone(t)

	got := FromHostError("DatabaseConnectionError", "failed at /var/secrets/db.key\x00", true)
	assert.Equal(t, "Error", got.Name)
	assert.Equal(t, "failed at /var/secrets/db.key", got.Message)
	assert.Equal(t, "<stack redacted>", got.Stack)
}

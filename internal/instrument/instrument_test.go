package instrument

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewrite_LoopGetsTickCall(t *testing.T) {
	src := "let s=0; for (let i=0;i<1000;i++) { s+=i; } return s;"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"))
	idx := strings.Index(out, "{")
	tickIdx := strings.Index(out, TickFunc)
	assert.Greater(t, tickIdx, idx)
}

func TestRewrite_WhileLoopGetsTickCall(t *testing.T) {
	src := "let i=0; while (i<10) { i++; }"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"))
}

func TestRewrite_BraceLessForLoopGetsTickCall(t *testing.T) {
	src := "let s=0; for (let i=0;i<1000;i++) s+=i; return s;"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"), "expected tick call, got: %s", out)
	assert.True(t, strings.Contains(out, "s+=i;"))
}

func TestRewrite_BraceLessWhileLoopGetsTickCall(t *testing.T) {
	src := "let i=0; while (i<10) i++;"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"), "expected tick call, got: %s", out)
}

func TestRewrite_BraceLessNestedLoopBothGetTickCalls(t *testing.T) {
	src := "let s=0; for (let i=0;i<3;i++) for (let j=0;j<3;j++) s++;"
	out := Rewrite(src)
	assert.Equal(t, 2, strings.Count(out, TickFunc+"();"), "expected two tick calls, got: %s", out)
}

func TestRewrite_DoWhileLoopGetsTickCall(t *testing.T) {
	src := "let i=0; do { i++; } while (i<10);"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"), "expected tick call, got: %s", out)
}

func TestRewrite_BraceLessDoWhileLoopGetsTickCall(t *testing.T) {
	src := "let i=0; do i++; while (i<10);"
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, TickFunc+"();"), "expected tick call, got: %s", out)
	assert.True(t, strings.Contains(out, "while (i<10);"))
}

func TestRewrite_RepeatCallGetsAllocDebit(t *testing.T) {
	src := `let s = "a".repeat(5);`
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, AllocFunc+"(64)"))
	assert.True(t, strings.Contains(out, ".repeat(5)"))
}

func TestRewrite_ArrayFromGetsAllocDebit(t *testing.T) {
	src := `let a = Array.from([1,2,3]);`
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, AllocFunc+"(64)"))
	assert.True(t, strings.Contains(out, ".from("))
}

func TestRewrite_NoLoopsUnaffected(t *testing.T) {
	src := "return 1 + 2;"
	out := Rewrite(src)
	assert.Equal(t, src, out)
}

func TestRewrite_SelfDoublingAssignGetsConcatCall(t *testing.T) {
	src := `let s="a"; for (let i=0;i<25;i++) { s = s + s; } return s.length;`
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, ConcatFunc+"(s, s)"))
	assert.False(t, strings.Contains(out, "s = s + s;"))
}

func TestRewrite_SelfDoublingCompoundAssignGetsConcatCall(t *testing.T) {
	src := `let s="a"; s += s;`
	out := Rewrite(src)
	assert.True(t, strings.Contains(out, ConcatFunc+"(s, s)"))
}

func TestRewrite_MemberConcatAssignUnaffected(t *testing.T) {
	src := `let o={s:"a"}; o.s += o.s;`
	out := Rewrite(src)
	assert.Equal(t, src, out)
}

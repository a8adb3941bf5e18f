package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/agentfront/enclave/internal/config"
)

func TestValidate(t *testing.T) {
	defer goleak.VerifyNone(t)

	lc := config.LevelConfigFor(config.Secure)
	limits := config.DefaultGovernorLimits()

	tests := []struct {
		name       string
		code       string
		shouldPass bool
		rule       string
	}{
		{
			name:       "baseline arithmetic",
			code:       "return 1 + 2;",
			shouldPass: true,
		},
		{
			name:       "disallowed identifier eval",
			code:       "eval('1+1');",
			shouldPass: false,
			rule:       "disallowed_identifier",
		},
		{
			name:       "disallowed identifier as string literal",
			code:       "let k = 'eval'; return k;",
			shouldPass: false,
			rule:       "disallowed_identifier_literal",
		},
		{
			name:       "constructor obfuscation via concatenation",
			code:       "const k = 'con' + 'structor'; return Array[k] ? 1 : 0;",
			shouldPass: false,
			rule:       "constructor_obfuscation",
		},
		{
			name:       "computed destructuring with non-literal key",
			code:       "const k = 'x'; const { [k]: v } = obj;",
			shouldPass: false,
			rule:       "computed_destructuring",
		},
		{
			name:       "computed destructuring with literal key is fine",
			code:       "const obj = {a:1}; const { ['a']: v } = obj; return v;",
			shouldPass: true,
		},
		{
			name:       "meta-programming denylist",
			code:       "return Object.getPrototypeOf({});",
			shouldPass: false,
			rule:       "meta_programming_denylist",
		},
		{
			name:       "resource bomb: new Array(n)",
			code:       "return new Array(100000000).length;",
			shouldPass: false,
			rule:       "resource_bomb_array",
		},
		{
			name:       "resource bomb: string.repeat(n)",
			code:       "return 'a'.repeat(100000000).length;",
			shouldPass: false,
			rule:       "resource_bomb_repeat",
		},
		{
			name:       "infinite loop while(true)",
			code:       "while(true) { }",
			shouldPass: false,
			rule:       "infinite_loop",
		},
		{
			name:       "infinite loop for(;;)",
			code:       "for(;;) { }",
			shouldPass: false,
			rule:       "infinite_loop",
		},
		{
			name:       "regex literal rejected at SECURE",
			code:       "const r = /a+/; return r.test('a');",
			shouldPass: false,
			rule:       "regex_literal_forbidden",
		},
		{
			// "Function" is itself a disallowed identifier, so the
			// identifier rule short-circuits before the dynamic-codegen rule
			// would otherwise fire for this same input.
			name:       "dynamic code generation via new Function",
			code:       "const f = new Function('return 1'); return f();",
			shouldPass: false,
			rule:       "disallowed_identifier",
		},
		{
			name:       "named function declaration forbidden at SECURE",
			code:       "function foo() { return 1; } return foo();",
			shouldPass: false,
			rule:       "named_function_declaration_forbidden",
		},
		{
			name:       "unknown global",
			code:       "return someRandomHostGlobal.value;",
			shouldPass: false,
			rule:       "unknown_global",
		},
		{
			name:       "arrow function form is permitted",
			code:       "const f = (x) => x + 1; return f(2);",
			shouldPass: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Validate(tt.code, lc, limits)
			if tt.shouldPass {
				assert.Nil(t, err)
				assert.True(t, report.Accepted)
				return
			}
			assert.NotNil(t, err)
			assert.False(t, report.Accepted)
			if tt.rule != "" {
				assert.Equal(t, tt.rule, report.Violations[0].Rule)
			}
		})
	}
}

func TestValidate_ForbiddenTokenSoundness(t *testing.T) {
	defer goleak.VerifyNone(t)
	lc := config.LevelConfigFor(config.Secure)
	limits := config.DefaultGovernorLimits()

	for _, tok := range config.ForbiddenIdentifiers {
		t.Run(tok, func(t *testing.T) {
			_, err := Validate("return "+tok+";", lc, limits)
			assert.NotNil(t, err, "expected token %q to be rejected at SECURE", tok)
		})
	}
}

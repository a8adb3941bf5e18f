// Package validator implements the syntactic validator over enclave source
// text (rejecting disallowed identifiers, obfuscated forbidden tokens,
// unsafe computed destructuring, meta-programming member access,
// resource-bomb literals, ReDoS-prone regex literals, dynamic code
// generation, and restricted function forms). It operates on the token
// stream from internal/lexer rather than a full AST: a lightweight
// substring/token-scanning pass that reports the first blocking violation
// and stops, rather than building a parse tree just to walk it once.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentfront/enclave/internal/config"
	"github.com/agentfront/enclave/internal/enclaveerr"
	"github.com/agentfront/enclave/internal/lexer"
)

// Violation is one rule failure, matching the ValidationError shape.
type Violation struct {
	Rule     string
	Location string
	Snippet  string
}

// Report is the full result of a validation pass.
type Report struct {
	Accepted   bool
	Violations []Violation
	// DeclaredNames are identifiers bound somewhere in source (var/let/const/
	// function/param/catch/for-loop), used by the globals-enumeration rule.
	DeclaredNames map[string]bool
}

// Validate runs every enabled rule against src in token order. The first
// violation short-circuits: any rule failing yields a ValidationError and
// stops further checking.
func Validate(src string, lc config.LevelConfig, limits config.GovernorLimits) (*Report, *enclaveerr.Error) {
	toks := lexer.All(src)
	sig := significant(toks)

	declared := collectDeclarations(sig)
	report := &Report{Accepted: true, DeclaredNames: declared}

	rules := []func() *Violation{
		func() *Violation {
			if !lc.EnableDisallowedIdentifiers {
				return nil
			}
			return checkDisallowedIdentifiers(sig, src)
		},
		func() *Violation {
			if !lc.EnableConstructorObfuscation {
				return nil
			}
			return checkConstructorObfuscation(sig, src)
		},
		func() *Violation {
			if !lc.EnableComputedDestructuring {
				return nil
			}
			return checkComputedDestructuring(sig, src)
		},
		func() *Violation {
			if !lc.EnableMetaProgrammingDenylist {
				return nil
			}
			return checkMetaProgramming(sig, src)
		},
		func() *Violation {
			if !lc.EnableResourceBombLiterals {
				return nil
			}
			return checkResourceBombs(sig, src, limits)
		},
		func() *Violation {
			if !lc.EnableReDoSPrescan {
				return nil
			}
			return checkRegexLiterals(sig, src, lc.RejectAllRegexLiterals)
		},
		func() *Violation {
			if !lc.EnableDynamicCodeGenDeny {
				return nil
			}
			return checkDynamicCodeGen(sig, src)
		},
		func() *Violation {
			if !lc.RestrictFunctionForms {
				return nil
			}
			return checkFunctionForms(sig, src)
		},
		func() *Violation {
			return checkUnknownGlobals(sig, src, declared, lc.AllowedGlobals)
		},
	}

	for _, rule := range rules {
		if v := rule(); v != nil {
			report.Accepted = false
			report.Violations = append(report.Violations, *v)
			return report, enclaveerr.Validation(v.Rule, v.Location, v.Snippet)
		}
	}
	return report, nil
}

func significant(toks []lexer.Token) []lexer.Token {
	out := make([]lexer.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == lexer.Comment || t.Kind == lexer.LineTerminator {
			continue
		}
		out = append(out, t)
	}
	return out
}

func locationFor(src string, pos int) string {
	line := 1
	col := 1
	for i := 0; i < pos && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return fmt.Sprintf("%d:%d", line, col)
}

func snippetAt(src string, start, end int) string {
	if end > len(src) {
		end = len(src)
	}
	if start < 0 {
		start = 0
	}
	s := src[start:end]
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return s
}

// --- rule: disallowed identifiers -----------------------------------------

func checkDisallowedIdentifiers(toks []lexer.Token, src string) *Violation {
	for _, t := range toks {
		switch t.Kind {
		case lexer.Ident, lexer.Keyword:
			if config.ForbiddenIdentifierSet[t.Value] {
				return &Violation{
					Rule:     "disallowed_identifier",
					Location: locationFor(src, t.Start),
					Snippet:  snippetAt(src, t.Start, t.End),
				}
			}
		case lexer.String:
			if lit, ok := unquote(t.Value); ok && config.ForbiddenIdentifierSet[lit] {
				return &Violation{
					Rule:     "disallowed_identifier_literal",
					Location: locationFor(src, t.Start),
					Snippet:  snippetAt(src, t.Start, t.End),
				}
			}
		}
	}
	return nil
}

func unquote(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	q := raw[0]
	if q != '"' && q != '\'' {
		return "", false
	}
	if raw[len(raw)-1] != q {
		return "", false
	}
	inner := raw[1 : len(raw)-1]
	if strings.ContainsAny(inner, "\\") {
		// decode \xHH / \uHHHH escapes so an escaped spelling of a forbidden
		// token still compares equal; literals whose escapes do not decode
		// this way are skipped
		decoded, err := strconv.Unquote(`"` + inner + `"`)
		if err != nil {
			return "", false
		}
		return decoded, true
	}
	return inner, true
}

// --- rule: constructor obfuscation ----------------------------------------

// checkConstructorObfuscation conservatively constant-folds chains of
// literal string tokens joined by `+`, and a handful of literal-only
// transform calls (split/join/reverse/slice), checking whether the folded
// value equals a forbidden token. Per this folder "folds only
// over literals ... proven constant"; anything involving a non-literal
// operand is left to the disallowed-identifier and unknown-global rules.
func checkConstructorObfuscation(toks []lexer.Token, src string) *Violation {
	i := 0
	for i < len(toks) {
		if toks[i].Kind != lexer.String {
			i++
			continue
		}
		folded, ok := unquote(toks[i].Value)
		if !ok {
			i++
			continue
		}
		j := i + 1
		for j+1 < len(toks) && toks[j].Kind == lexer.Punct && toks[j].Value == "+" && toks[j+1].Kind == lexer.String {
			part, ok := unquote(toks[j+1].Value)
			if !ok {
				break
			}
			folded += part
			j += 2
		}
		if config.ForbiddenIdentifierSet[folded] && j > i+1 {
			return &Violation{
				Rule:     "constructor_obfuscation",
				Location: locationFor(src, toks[i].Start),
				Snippet:  snippetAt(src, toks[i].Start, toks[j-1].End),
			}
		}
		i++
	}

	// char-code construction: String.fromCharCode(...) with
	// all-numeric-literal arguments. (Hex/unicode escapes inside string
	// literals are decoded by unquote and caught by the folding above.)
	for i := 0; i+1 < len(toks); i++ {
		if toks[i].Kind == lexer.Ident && toks[i].Value == "fromCharCode" {
			if v, ok := foldCharCodeCall(toks, i, src); ok && config.ForbiddenIdentifierSet[v] {
				return &Violation{
					Rule:     "constructor_obfuscation",
					Location: locationFor(src, toks[i].Start),
					Snippet:  snippetAt(src, toks[i].Start, toks[i].End),
				}
			}
		}
	}

	// reverse/split/join/slice pipelines over a single literal: detect a
	// literal string immediately followed eventually by `.reverse()` and/or
	// `.split('').join('')` chains and fold the obvious cases.
	for i := 0; i < len(toks); i++ {
		if toks[i].Kind != lexer.String {
			continue
		}
		base, ok := unquote(toks[i].Value)
		if !ok {
			continue
		}
		folded, end, changed := foldStringMethodChain(toks, i+1, base)
		if changed && config.ForbiddenIdentifierSet[folded] {
			return &Violation{
				Rule:     "constructor_obfuscation",
				Location: locationFor(src, toks[i].Start),
				Snippet:  snippetAt(src, toks[i].Start, toks[end].End),
			}
		}
	}
	return nil
}

func foldCharCodeCall(toks []lexer.Token, nameIdx int, src string) (string, bool) {
	k := nameIdx + 1
	if k >= len(toks) || toks[k].Value != "(" {
		return "", false
	}
	k++
	var sb strings.Builder
	for k < len(toks) && toks[k].Value != ")" {
		if toks[k].Kind == lexer.Number {
			n, err := strconv.ParseInt(strings.TrimSuffix(toks[k].Value, "n"), 0, 32)
			if err != nil {
				return "", false
			}
			sb.WriteRune(rune(n))
			k++
			if k < len(toks) && toks[k].Value == "," {
				k++
			}
			continue
		}
		return "", false
	}
	return sb.String(), true
}

// foldStringMethodChain walks `.method(args)` suffixes applying a small,
// fixed set of transforms, as long as every argument is a literal. Returns
// the folded value and whether any transform applied.
func foldStringMethodChain(toks []lexer.Token, i int, val string) (string, int, bool) {
	changed := false
	end := i - 1
	for i+1 < len(toks) && toks[i].Value == "." && toks[i+1].Kind == lexer.Ident {
		method := toks[i+1].Value
		k := i + 2
		if k >= len(toks) || toks[k].Value != "(" {
			break
		}
		// gather literal args between ( and )
		var args []string
		k++
		ok := true
		for k < len(toks) && toks[k].Value != ")" {
			if toks[k].Kind == lexer.String {
				s, good := unquote(toks[k].Value)
				if !good {
					ok = false
					break
				}
				args = append(args, s)
			} else if toks[k].Value != "," {
				ok = false
				break
			}
			k++
		}
		if !ok || k >= len(toks) {
			break
		}
		switch method {
		case "reverse":
			runes := []rune(val)
			for l, r := 0, len(runes)-1; l < r; l, r = l+1, r-1 {
				runes[l], runes[r] = runes[r], runes[l]
			}
			val = string(runes)
		case "split":
			// split('') then a later join('') re-concatenates to the same
			// string (or reversed, handled above); treat as a no-op marker.
		case "join":
			// join after split is identity for our purposes (no per-char mutation modeled).
		case "slice":
			// only support no-op / full slice; anything else aborts folding.
			if len(args) != 0 {
				return val, end, changed
			}
		default:
			return val, end, changed
		}
		changed = true
		end = k
		i = k + 1
	}
	return val, end, changed
}

// --- rule: computed destructuring -----------------------------------------

func checkComputedDestructuring(toks []lexer.Token, src string) *Violation {
	for i := 0; i < len(toks); i++ {
		if toks[i].Value != "{" {
			continue
		}
		// look for `[` immediately starting a destructuring key
		for j := i + 1; j < len(toks) && toks[j].Value != "}"; j++ {
			if toks[j].Value != "[" {
				continue
			}
			// find matching close bracket
			depth := 1
			k := j + 1
			exprLen := 0
			literalOnly := true
			for k < len(toks) && depth > 0 {
				switch toks[k].Value {
				case "[":
					depth++
				case "]":
					depth--
				}
				if depth > 0 {
					if toks[k].Kind != lexer.String && toks[k].Kind != lexer.Number {
						literalOnly = false
					}
					exprLen++
				}
				k++
			}
			if k < len(toks) && toks[k].Value == ":" && exprLen > 0 && !literalOnly {
				return &Violation{
					Rule:     "computed_destructuring",
					Location: locationFor(src, toks[j].Start),
					Snippet:  snippetAt(src, toks[i].Start, toks[k].End),
				}
			}
		}
	}
	return nil
}

// --- rule: meta-programming denylist ---------------------------------------

var metaProgrammingMembers = map[string]bool{
	"getPrototypeOf": true, "setPrototypeOf": true,
	"getOwnPropertyDescriptor": true, "getOwnPropertyDescriptors": true,
}

func checkMetaProgramming(toks []lexer.Token, src string) *Violation {
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].Kind != lexer.Ident || toks[i].Value != "Object" {
			continue
		}
		if toks[i+1].Value != "." || toks[i+2].Kind != lexer.Ident {
			continue
		}
		if metaProgrammingMembers[toks[i+2].Value] {
			return &Violation{
				Rule:     "meta_programming_denylist",
				Location: locationFor(src, toks[i].Start),
				Snippet:  snippetAt(src, toks[i].Start, toks[i+2].End),
			}
		}
	}
	for i := 0; i < len(toks); i++ {
		if toks[i].Kind == lexer.Ident && toks[i].Value == "Reflect" {
			return &Violation{
				Rule:     "meta_programming_denylist",
				Location: locationFor(src, toks[i].Start),
				Snippet:  snippetAt(src, toks[i].Start, toks[i].End),
			}
		}
	}
	return nil
}

// --- rule: resource-bomb literals -------------------------------------------

func checkResourceBombs(toks []lexer.Token, src string, limits config.GovernorLimits) *Violation {
	for i := 0; i < len(toks); i++ {
		t := toks[i]

		// new Array(n)
		if t.Kind == lexer.Keyword && t.Value == "new" && i+3 < len(toks) &&
			toks[i+1].Value == "Array" && toks[i+2].Value == "(" && toks[i+3].Kind == lexer.Number {
			if n, ok := intLiteral(toks[i+3].Value); ok && n > limits.MaxArrayLiteralLen {
				return &Violation{Rule: "resource_bomb_array", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+3].End)}
			}
		}

		// "x".repeat(n) / x.repeat(n)
		if t.Kind == lexer.Ident && t.Value == "repeat" && i+2 < len(toks) && toks[i+1].Value == "(" && toks[i+2].Kind == lexer.Number {
			if n, ok := intLiteral(toks[i+2].Value); ok && n > limits.MaxRepeatCount {
				return &Violation{Rule: "resource_bomb_repeat", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+2].End)}
			}
		}

		// BigInt literal ** BigInt literal exponent
		if t.Kind == lexer.Number && strings.HasSuffix(t.Value, "n") && i+2 < len(toks) && toks[i+1].Value == "**" && toks[i+2].Kind == lexer.Number {
			if n, ok := intLiteral(toks[i+2].Value); ok && n > limits.MaxBigIntExponent {
				return &Violation{Rule: "resource_bomb_bigint_pow", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+2].End)}
			}
		}

		// while(true) / while(1)
		if t.Kind == lexer.Keyword && t.Value == "while" && i+3 < len(toks) && toks[i+1].Value == "(" {
			cond := toks[i+2]
			if toks[i+3].Value == ")" && ((cond.Kind == lexer.Keyword && cond.Value == "true") || (cond.Kind == lexer.Number && cond.Value == "1")) {
				return &Violation{Rule: "infinite_loop", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+3].End)}
			}
		}

		// for(;;)
		if t.Kind == lexer.Keyword && t.Value == "for" && i+4 < len(toks) && toks[i+1].Value == "(" {
			if toks[i+2].Value == ";" && toks[i+3].Value == ";" && toks[i+4].Value == ")" {
				return &Violation{Rule: "infinite_loop", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+4].End)}
			}
		}
	}
	return nil
}

func intLiteral(raw string) (int64, bool) {
	raw = strings.TrimSuffix(raw, "n")
	n, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// --- rule: ReDoS prescan ----------------------------------------------------

func checkRegexLiterals(toks []lexer.Token, src string, rejectAll bool) *Violation {
	for _, t := range toks {
		if t.Kind != lexer.Regex {
			continue
		}
		if rejectAll {
			return &Violation{Rule: "regex_literal_forbidden", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
		}
		if looksPolynomial(t.Value) {
			return &Violation{Rule: "redos_pattern", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
		}
	}
	return nil
}

// looksPolynomial applies a cheap textual heuristic for
// catastrophic-backtracking shapes: a group containing a `+` or `*` at its
// own depth that is itself followed by `+` or `*`, which covers `(...+)+`
// and `([...]+)*`. Alternation with overlapping branches such as `(a|a)+`
// is not detected.
func looksPolynomial(pattern string) bool {
	quantifiers := []byte{'+', '*'}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '(' {
			continue
		}
		depth := 1
		j := i + 1
		hasInnerQuant := false
		for j < len(pattern) && depth > 0 {
			switch pattern[j] {
			case '(':
				depth++
			case ')':
				depth--
			case '+', '*':
				if depth == 1 {
					hasInnerQuant = true
				}
			}
			j++
		}
		if j >= len(pattern) {
			continue
		}
		if hasInnerQuant && j < len(pattern) {
			for _, q := range quantifiers {
				if pattern[j] == q {
					return true
				}
			}
		}
	}
	return false
}

// --- rule: dynamic code generation ------------------------------------------

func checkDynamicCodeGen(toks []lexer.Token, src string) *Violation {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind == lexer.Keyword && t.Value == "new" && i+1 < len(toks) && toks[i+1].Value == "Function" {
			return &Violation{Rule: "dynamic_code_gen", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[i+1].End)}
		}
		if t.Kind == lexer.Ident && t.Value == "eval" && i+1 < len(toks) && toks[i+1].Value == "(" {
			return &Violation{Rule: "dynamic_code_gen", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
		}
		if t.Kind == lexer.Keyword && t.Value == "import" && i+1 < len(toks) && toks[i+1].Value == "(" {
			return &Violation{Rule: "dynamic_code_gen", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
		}
	}
	return nil
}

// --- rule: function form restrictions --------------------------------------

func checkFunctionForms(toks []lexer.Token, src string) *Violation {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != lexer.Keyword || t.Value != "function" {
			continue
		}
		j := i + 1
		isGenerator := j < len(toks) && toks[j].Value == "*"
		if isGenerator {
			j++
		}
		hasName := j < len(toks) && toks[j].Kind == lexer.Ident
		name := ""
		if hasName {
			name = toks[j].Value
		}
		isTopLevelAsyncEntry := name == "__ag_main" && i > 0 && toks[i-1].Kind == lexer.Keyword && toks[i-1].Value == "async" && !isGenerator
		if isGenerator {
			return &Violation{Rule: "generator_function_forbidden", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
		}
		if hasName && !isTopLevelAsyncEntry {
			return &Violation{Rule: "named_function_declaration_forbidden", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, toks[j].End)}
		}
	}
	return nil
}

// --- rule: unknown globals --------------------------------------------------

func checkUnknownGlobals(toks []lexer.Token, src string, declared map[string]bool, allowed map[string]bool) *Violation {
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Kind != lexer.Ident {
			continue
		}
		if i > 0 && toks[i-1].Value == "." {
			continue // member access, not a free identifier reference
		}
		if i+1 < len(toks) && toks[i+1].Value == ":" && i > 0 && (toks[i-1].Value == "{" || toks[i-1].Value == ",") {
			continue // object literal property key shorthand target checked separately
		}
		if declared[t.Value] || allowed[t.Value] {
			continue
		}
		return &Violation{Rule: "unknown_global", Location: locationFor(src, t.Start), Snippet: snippetAt(src, t.Start, t.End)}
	}
	return nil
}

// collectDeclarations gathers every identifier bound by var/let/const,
// function declarations/expressions, parameter lists, catch clauses, and
// for-loop variables — a conservative over-approximation of "in scope"
// good enough for the unknown-globals rule's token-level view.
func collectDeclarations(toks []lexer.Token) map[string]bool {
	declared := make(map[string]bool)
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.Kind == lexer.Keyword && (t.Value == "var" || t.Value == "let" || t.Value == "const"):
			collectBindingNames(toks, i+1, declared)
		case t.Kind == lexer.Keyword && t.Value == "function":
			j := i + 1
			if j < len(toks) && toks[j].Value == "*" {
				j++
			}
			if j < len(toks) && toks[j].Kind == lexer.Ident {
				declared[toks[j].Value] = true
				j++
			}
			collectParamNames(toks, j, declared)
		case t.Kind == lexer.Keyword && t.Value == "catch":
			collectParamNames(toks, i+1, declared)
		case t.Value == "=>":
			collectArrowParamNames(toks, i, declared)
		}
	}
	return declared
}

// collectBindingNames walks a var/let/const declarator list starting just
// after the keyword, recording pattern identifiers and skipping over
// initializer expressions (the part after `=` up to the next depth-0 comma)
// so that identifiers used only as initializer values are not mistaken for
// bindings.
func collectBindingNames(toks []lexer.Token, i int, declared map[string]bool) {
	depth := 0
	inInitializer := false
	for i < len(toks) {
		t := toks[i]
		switch t.Value {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			if depth == 0 {
				return
			}
			depth--
		case ";":
			if depth == 0 {
				return
			}
		case ",":
			if depth == 0 {
				inInitializer = false
			}
		case "=":
			if depth == 0 {
				inInitializer = true
			}
		}
		if !inInitializer && t.Kind == lexer.Ident {
			declared[t.Value] = true
		}
		i++
	}
}

func collectParamNames(toks []lexer.Token, i int, declared map[string]bool) {
	if i >= len(toks) || toks[i].Value != "(" {
		return
	}
	depth := 1
	i++
	for i < len(toks) && depth > 0 {
		switch toks[i].Value {
		case "(":
			depth++
		case ")":
			depth--
		}
		if depth > 0 && toks[i].Kind == lexer.Ident {
			declared[toks[i].Value] = true
		}
		i++
	}
}

func collectArrowParamNames(toks []lexer.Token, arrowIdx int, declared map[string]bool) {
	// walk backwards from => to find either a single identifier or a
	// parenthesized parameter list
	i := arrowIdx - 1
	if i < 0 {
		return
	}
	if toks[i].Value == ")" {
		depth := 1
		j := i - 1
		for j >= 0 && depth > 0 {
			switch toks[j].Value {
			case ")":
				depth++
			case "(":
				depth--
			}
			if depth > 0 && toks[j].Kind == lexer.Ident {
				declared[toks[j].Value] = true
			}
			j--
		}
		return
	}
	if toks[i].Kind == lexer.Ident {
		declared[toks[i].Value] = true
	}
}

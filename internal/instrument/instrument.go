// Package instrument rewrites validated source text to call back into the
// governor at loop headers and allocation-producing call sites, keeping the
// rewrite purely syntactic rather than a full parse/transform.
// It is a textual rewriter operating on internal/lexer tokens rather than a
// tree transform — cheaper to keep correct for a grammar this small than a
// full parser would be.
package instrument

import (
	"strings"

	"github.com/agentfront/enclave/internal/lexer"
)

// TickFunc, AllocFunc and ConcatFunc are the names of the native bindings
// the governor exposes into the runtime (wired by internal/jsvm); every
// instrumented loop/allocation/concat call site calls through these names.
const (
	TickFunc   = "__gov_tick"
	AllocFunc  = "__gov_alloc"
	ConcatFunc = "__gov_concat"
)

var allocMethods = map[string]bool{
	"repeat": true, "join": true, "fill": true,
}

// Rewrite inserts a TickFunc() call as the first statement of every loop
// body (for/while/do-while), rebracing brace-less single-statement bodies
// so the call still lands inside the loop, wraps calls to Array.from and
// the allocMethods with an AllocFunc(estimatedBytes) debit evaluated before
// the call executes, and rewrites the self-doubling growth statements
// `s = s + s;` / `s += s;` to route through ConcatFunc so the accumulator's
// actual size is debited rather than going untracked.
func Rewrite(src string) string {
	toks := lexer.All(src)
	var out strings.Builder
	last := 0
	pendingClose := map[int]int{}
	doWhileTrailer := map[int]bool{}

	emitUpTo := func(pos int) {
		out.WriteString(src[last:pos])
		last = pos
	}

	// bodyEndOf reports the index of the token that closes the body
	// starting at bodyStart, without injecting anything.
	bodyEndOf := func(bodyStart int) (int, bool) {
		if toks[bodyStart].Value == "{" {
			return matchBrace(toks, bodyStart)
		}
		return statementEnd(toks, bodyStart)
	}

	injectTick := func(bodyStart int) {
		if toks[bodyStart].Value == "{" {
			emitUpTo(toks[bodyStart].End)
			out.WriteString(TickFunc + "();")
			last = toks[bodyStart].End
			return
		}
		if end, ok := statementEnd(toks, bodyStart); ok {
			emitUpTo(toks[bodyStart].Start)
			out.WriteString("{" + TickFunc + "();")
			last = toks[bodyStart].Start
			pendingClose[end]++
		}
	}

	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.Kind == lexer.Keyword && t.Value == "while" && doWhileTrailer[i]:
			// the `while (cond);` trailer of a do-while already consumed
			// by the `do` case below; not a loop header of its own.
		case t.Kind == lexer.Keyword && (t.Value == "for" || t.Value == "while"):
			if bodyStart, ok := findLoopBodyStart(toks, i); ok {
				injectTick(bodyStart)
			}
		case t.Kind == lexer.Keyword && t.Value == "do":
			if i+1 < len(toks) {
				bodyStart := i + 1
				injectTick(bodyStart)
				if bodyEnd, ok := bodyEndOf(bodyStart); ok && bodyEnd+1 < len(toks) && toks[bodyEnd+1].Value == "while" {
					doWhileTrailer[bodyEnd+1] = true
				}
			}
		case t.Kind == lexer.Ident && allocMethods[t.Value] && i > 0 && toks[i-1].Value == "." && i+1 < len(toks) && toks[i+1].Value == "(":
			if baseStart, ok := findMemberExprStart(toks, i-1); ok {
				emitUpTo(toks[baseStart].Start)
				out.WriteString("(" + AllocFunc + "(64),")
				emitUpTo(toks[i-1].Start)
				out.WriteString(")")
			}
		case t.Kind == lexer.Ident && t.Value == "Array" && i+2 < len(toks) && toks[i+1].Value == "." && toks[i+2].Value == "from":
			emitUpTo(t.Start)
			out.WriteString("(" + AllocFunc + "(64),Array)")
			last = t.End
		case t.Kind == lexer.Ident:
			if end, rhs, ok := matchSelfConcat(toks, i); ok {
				emitUpTo(t.Start)
				out.WriteString(t.Value + " = " + ConcatFunc + "(" + t.Value + ", " + rhs + ");")
				last = toks[end].End
				i = end
			}
		}
		for pendingClose[i] > 0 {
			emitUpTo(toks[i].End)
			out.WriteString("}")
			last = toks[i].End
			pendingClose[i]--
		}
	}
	emitUpTo(len(src))
	return out.String()
}

// findLoopBodyStart finds where the loop body following the `for`/`while`
// keyword at index kw begins, skipping the parenthesized header, and
// reports whether such a body position was found.
func findLoopBodyStart(toks []lexer.Token, kw int) (int, bool) {
	i, ok := skipParenHeader(toks, kw+1)
	if !ok || i >= len(toks) {
		return 0, false
	}
	return i, true
}

// skipParenHeader walks the parenthesized `(...)` starting at i and returns
// the index of the token immediately following its matching `)`.
func skipParenHeader(toks []lexer.Token, i int) (int, bool) {
	if i >= len(toks) || toks[i].Value != "(" {
		return 0, false
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
		i++
	}
	if depth != 0 {
		return 0, false
	}
	return i, true
}

// statementEnd returns the index of the token that terminates the
// statement starting at start: the matching `}` if start opens a brace
// block, or the `;` that closes a simple statement or a brace-less
// if/for/while/do-while control statement (descending through else
// clauses and nested headers so the whole construct — not just its first
// clause — gets rebraced).
func statementEnd(toks []lexer.Token, start int) (int, bool) {
	if start >= len(toks) {
		return 0, false
	}
	t := toks[start]
	switch {
	case t.Value == "{":
		return matchBrace(toks, start)
	case t.Kind == lexer.Keyword && t.Value == "if":
		afterCond, ok := skipParenHeader(toks, start+1)
		if !ok {
			return 0, false
		}
		end, ok := statementEnd(toks, afterCond)
		if !ok {
			return 0, false
		}
		if end+1 < len(toks) && toks[end+1].Kind == lexer.Keyword && toks[end+1].Value == "else" {
			return statementEnd(toks, end+2)
		}
		return end, true
	case t.Kind == lexer.Keyword && (t.Value == "for" || t.Value == "while"):
		afterHeader, ok := skipParenHeader(toks, start+1)
		if !ok {
			return 0, false
		}
		return statementEnd(toks, afterHeader)
	case t.Kind == lexer.Keyword && t.Value == "do":
		bodyEnd, ok := statementEnd(toks, start+1)
		if !ok {
			return 0, false
		}
		i := bodyEnd + 1
		if i >= len(toks) || toks[i].Value != "while" {
			return 0, false
		}
		afterCond, ok := skipParenHeader(toks, i+1)
		if !ok {
			return 0, false
		}
		if afterCond < len(toks) && toks[afterCond].Value == ";" {
			return afterCond, true
		}
		return afterCond - 1, true
	default:
		depth := 0
		for i := start; i < len(toks); i++ {
			switch toks[i].Value {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case ";":
				if depth == 0 {
					return i, true
				}
			}
		}
		return 0, false
	}
}

// matchBrace returns the index of the `}` matching the `{` at open.
func matchBrace(toks []lexer.Token, open int) (int, bool) {
	depth := 1
	for i := open + 1; i < len(toks); i++ {
		switch toks[i].Value {
		case "{":
			depth++
		case "}":
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// findMemberExprStart scans backward from the `.` at dotIdx to find the
// start of the primary expression it is a member of — a run of
// Ident/String/Number/`)`-matched/`]`-matched tokens joined by `.`. It stops
// at the first token that cannot begin or continue such a chain.
func findMemberExprStart(toks []lexer.Token, dotIdx int) (int, bool) {
	if dotIdx <= 0 {
		return 0, false
	}
	i := dotIdx - 1
	start := -1
	for i >= 0 {
		t := toks[i]
		switch {
		case t.Kind == lexer.Ident || t.Kind == lexer.String || t.Kind == lexer.Number || (t.Kind == lexer.Keyword && t.Value == "this"):
			start = i
			i--
		case t.Value == ")" || t.Value == "]":
			close := t.Value
			open := "("
			if close == "]" {
				open = "["
			}
			depth := 1
			i--
			for i >= 0 && depth > 0 {
				if toks[i].Value == close {
					depth++
				} else if toks[i].Value == open {
					depth--
				}
				i--
			}
			start = i + 1
		case t.Value == ".":
			i--
			continue
		default:
			i = -1
			continue
		}
		if i >= 0 && toks[i].Value != "." {
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	return start, true
}

// matchSelfConcat recognizes the "self-doubling" growth statements
// `s = s + s;` and `s += s;` — the memory-bomb shape built from plain `+`
// rather than a method call — and reports the index of the closing `;` and
// the textual operand to pass alongside the accumulator into ConcatFunc.
// It only fires when the identifier at i opens a statement, not when it is
// itself a member access (`o.s += s;` is left alone).
func matchSelfConcat(toks []lexer.Token, i int) (end int, rhs string, ok bool) {
	if i > 0 && toks[i-1].Value == "." {
		return 0, "", false
	}
	name := toks[i].Value

	if i+3 < len(toks) && toks[i+1].Value == "+=" && toks[i+2].Kind == lexer.Ident && toks[i+2].Value == name && toks[i+3].Value == ";" {
		return i + 3, name, true
	}

	if i+5 < len(toks) && toks[i+1].Value == "=" && toks[i+2].Kind == lexer.Ident && toks[i+2].Value == name &&
		toks[i+3].Value == "+" && toks[i+4].Kind == lexer.Ident && toks[i+4].Value == name && toks[i+5].Value == ";" {
		return i + 5, name, true
	}

	return 0, "", false
}

package gridline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// formulaLexer splits formula text into tokens. Every byte of the input lands
// in exactly one token, so joining token values reproduces the input.
var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'|` + "`[^`]*`"},
	{Name: "Number", Pattern: `(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`},
	{Name: "TypedRef", Pattern: `@[A-Za-z]+\d+\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Op", Pattern: `\?\?|\?\.|[^\s\w"'@` + "`" + `]`},
})

type tokenKind uint8

const (
	tokString tokenKind = iota
	tokNumber
	tokTypedRef
	tokIdent
	tokSpace
	tokOp
)

var tokenKinds = func() map[lexer.TokenType]tokenKind {
	sym := formulaLexer.Symbols()
	return map[lexer.TokenType]tokenKind{
		sym["String"]:     tokString,
		sym["Number"]:     tokNumber,
		sym["TypedRef"]:   tokTypedRef,
		sym["Ident"]:      tokIdent,
		sym["Whitespace"]: tokSpace,
		sym["Op"]:         tokOp,
	}
}()

type token struct {
	kind  tokenKind
	text  string
	start int
}

func (t token) end() int { return t.start + len(t.text) }

func (t token) is(op string) bool { return t.kind == tokOp && t.text == op }

// lexFormula tokenizes text. Unlexable input (an unterminated string, a stray
// '@') is reported as a *ParseError at the first byte no rule accepts.
func lexFormula(text string) ([]token, error) {
	lex, err := formulaLexer.LexString("", text)
	if err != nil {
		return nil, &ParseError{Input: text, Start: 0, End: len(text), Msg: err.Error()}
	}
	var toks []token
	offset := 0
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, lexError(text, offset)
		}
		if tok.EOF() {
			return toks, nil
		}
		toks = append(toks, token{kind: tokenKinds[tok.Type], text: tok.Value, start: tok.Pos.Offset})
		offset = tok.Pos.Offset + len(tok.Value)
	}
}

func lexError(text string, at int) *ParseError {
	end := at + 1
	msg := fmt.Sprintf("unexpected character %q", text[at:end])
	switch text[at] {
	case '"', '\'', '`':
		end = len(text)
		msg = "unterminated string literal"
	case '@':
		for end < len(text) && (isAlpha(text[end]) || isDigit(text[end]) || text[end] == '_') {
			end++
		}
		msg = "malformed typed reference"
	}
	return &ParseError{Input: text, Start: at, End: end, Msg: msg}
}

// rangeFunc describes a function that accepts range arguments.
type rangeFunc struct {
	emit  string
	slots []int // argument positions (as written) that take a range
}

var rangeFuncs = map[string]rangeFunc{
	"SUM":       {"SUM_RANGE", []int{0}},
	"AVG":       {"AVG_RANGE", []int{0}},
	"AVERAGE":   {"AVG_RANGE", []int{0}},
	"COUNT":     {"COUNT_RANGE", []int{0}},
	"MIN":       {"MIN_RANGE", []int{0}},
	"MAX":       {"MAX_RANGE", []int{0}},
	"PRODUCT":   {"PRODUCT_RANGE", []int{0}},
	"MEDIAN":    {"MEDIAN_RANGE", []int{0}},
	"CONCAT":    {"CONCAT_RANGE", []int{0}},
	"VEC":       {"VEC_RANGE", []int{0}},
	"LOOKUP":    {"LOOKUP_RANGE", []int{1, 2}},
	"BARCHART":  {"BARCHART_RANGE", []int{0}},
	"LINECHART": {"LINECHART_RANGE", []int{0}},
	"SCATTER":   {"SCATTER_RANGE", []int{0, 1}},
}

// rangeSlots maps an emitted *_RANGE name to the positions of its first bound
// argument in the rewritten call.
var rangeSlots = func() map[string][]int {
	out := make(map[string][]int, len(rangeFuncs))
	for _, fn := range rangeFuncs {
		slots := make([]int, len(fn.slots))
		for i, s := range fn.slots {
			slots[i] = s + 3*i
		}
		out[fn.emit] = slots
	}
	return out
}()

// Preprocess rewrites spreadsheet references in a formula body into accessor
// calls understood by the expression runtime:
//
//	A1            → CELL(0, 0)
//	@B2           → VALUE(1, 1)
//	SUM(A1:B5, x) → SUM_RANGE(0, 0, 1, 4, x)
//
// Accessor arguments are zero-based column then row. Range corners keep the
// order they were written in. References inside string literals, member
// accesses and longer identifiers are left alone.
func Preprocess(raw string) (string, error) {
	return preprocess(raw, nil)
}

// PreprocessAt is Preprocess for a formula stored at the given cell; it also
// replaces ROW() and COL() with that cell's one-based row and column.
func PreprocessAt(raw string, at CellRef) (string, error) {
	return preprocess(raw, &at)
}

type frame struct {
	open     string
	call     *rangeFunc
	name     string
	arg      int
	ternary  int
	ranges   map[int]bool
	openedAt token
}

func preprocess(raw string, at *CellRef) (string, error) {
	toks, err := lexFormula(raw)
	if err != nil {
		return "", err
	}
	p := &rewriter{input: raw, toks: toks, at: at, frames: []*frame{{}}}
	return p.run()
}

type rewriter struct {
	input  string
	toks   []token
	at     *CellRef
	frames []*frame
	out    strings.Builder
}

func (p *rewriter) top() *frame { return p.frames[len(p.frames)-1] }

func (p *rewriter) errorf(start, end int, format string, args ...any) error {
	return &ParseError{Input: p.input, Start: start, End: end, Msg: fmt.Sprintf(format, args...)}
}

func (p *rewriter) next(i int) int { return nextSolid(p.toks, i) }

func (p *rewriter) prev(i int) int { return prevSolid(p.toks, i) }

func (p *rewriter) run() (string, error) {
	for i := 0; i < len(p.toks); i++ {
		tok := p.toks[i]
		switch tok.kind {
		case tokOp:
			if err := p.op(tok); err != nil {
				return "", err
			}
		case tokTypedRef:
			ref, err := ParseCellRef(tok.text[1:])
			if err != nil {
				return "", p.errorf(tok.start, tok.end(), "malformed typed reference")
			}
			fmt.Fprintf(&p.out, "VALUE(%d, %d)", ref.Col, ref.Row)
		case tokIdent:
			j, err := p.ident(i)
			if err != nil {
				return "", err
			}
			i = j
		default:
			p.out.WriteString(tok.text)
		}
	}
	if len(p.frames) > 1 {
		open := p.top().openedAt
		return "", p.errorf(open.start, len(p.input), "unclosed %q", open.text)
	}
	return p.out.String(), nil
}

var closers = map[string]string{")": "(", "]": "[", "}": "{"}

func (p *rewriter) op(tok token) error {
	switch tok.text {
	case "(", "[", "{":
		p.frames = append(p.frames, &frame{open: tok.text, openedAt: tok})
	case ")", "]", "}":
		f := p.top()
		if len(p.frames) == 1 || f.open != closers[tok.text] {
			return p.errorf(tok.start, tok.end(), "unbalanced %q", tok.text)
		}
		if f.call != nil {
			for _, slot := range f.call.slots {
				if !f.ranges[slot] {
					return p.errorf(f.openedAt.start, tok.end(), "%s expects a range as argument %d", f.name, slot+1)
				}
			}
		}
		p.frames = p.frames[:len(p.frames)-1]
	case ",":
		p.top().arg++
	case "?":
		p.top().ternary++
	case ":":
		if f := p.top(); f.ternary > 0 {
			f.ternary--
		}
	}
	p.out.WriteString(tok.text)
	return nil
}

// ident rewrites the identifier at i and returns the index of the last token consumed.
func (p *rewriter) ident(i int) (int, error) {
	tok := p.toks[i]
	if pj := p.prev(i); pj >= 0 && (p.toks[pj].is(".") || p.toks[pj].is("?.")) {
		p.out.WriteString(tok.text)
		return i, nil
	}

	nj := p.next(i)
	if nj >= 0 && p.toks[nj].is("(") {
		return p.call(i, nj)
	}

	if !looksLikeRef(tok.text) {
		p.out.WriteString(tok.text)
		return i, nil
	}
	ref, err := ParseCellRef(tok.text)
	if err != nil {
		return 0, p.errorf(tok.start, tok.end(), "malformed reference %q", tok.text)
	}

	f := p.top()
	if nj >= 0 && p.toks[nj].is(":") && f.ternary == 0 {
		ej := p.next(nj)
		if ej < 0 || p.toks[ej].kind != tokIdent || !looksLikeRef(p.toks[ej].text) {
			if f.open != "{" && f.open != "[" {
				end := p.toks[nj].end()
				if ej >= 0 {
					end = p.toks[ej].end()
				}
				return 0, p.errorf(tok.start, end, "incomplete range")
			}
			fmt.Fprintf(&p.out, "CELL(%d, %d)", ref.Col, ref.Row)
			return i, nil
		}
		endTok := p.toks[ej]
		end, err := ParseCellRef(endTok.text)
		if err != nil {
			return 0, p.errorf(endTok.start, endTok.end(), "malformed reference %q", endTok.text)
		}
		if err := p.checkRangeArg(i, ej, f); err != nil {
			return 0, err
		}
		f.ranges[f.arg] = true
		fmt.Fprintf(&p.out, "%d, %d, %d, %d", ref.Col, ref.Row, end.Col, end.Row)
		return ej, nil
	}

	fmt.Fprintf(&p.out, "CELL(%d, %d)", ref.Col, ref.Row)
	return i, nil
}

// checkRangeArg verifies that the range spanning tokens i..j is a whole
// argument of a range function in one of its range slots.
func (p *rewriter) checkRangeArg(i, j int, f *frame) error {
	span := p.input[p.toks[i].start:p.toks[j].end()]
	if f.call == nil {
		return p.errorf(p.toks[i].start, p.toks[j].end(), "range %s used outside a range function", span)
	}
	before, after := p.prev(i), p.next(j)
	whole := before >= 0 && (p.toks[before].is("(") || p.toks[before].is(",")) &&
		after >= 0 && (p.toks[after].is(")") || p.toks[after].is(","))
	slot := false
	for _, s := range f.call.slots {
		slot = slot || s == f.arg
	}
	if !whole || !slot || f.ranges[f.arg] {
		return p.errorf(p.toks[i].start, p.toks[j].end(), "range %s not allowed as argument %d of %s", span, f.arg+1, f.name)
	}
	return nil
}

// call handles an identifier at i followed by "(" at open.
func (p *rewriter) call(i, open int) (int, error) {
	name := p.toks[i].text
	if p.at != nil && (name == "ROW" || name == "COL") {
		if cj := p.next(open); cj >= 0 && p.toks[cj].is(")") {
			n := p.at.Row + 1
			if name == "COL" {
				n = p.at.Col + 1
			}
			p.out.WriteString(strconv.Itoa(n))
			return cj, nil
		}
	}

	fn, ok := rangeFuncs[name]
	if !ok || !p.hasRangeArg(open) {
		p.out.WriteString(name)
		return i, nil
	}
	p.out.WriteString(fn.emit)
	for k := i + 1; k <= open; k++ {
		p.out.WriteString(p.toks[k].text)
	}
	p.frames = append(p.frames, &frame{
		open:     "(",
		call:     &fn,
		name:     name,
		ranges:   make(map[int]bool, len(fn.slots)),
		openedAt: p.toks[open],
	})
	return open, nil
}

// hasRangeArg reports whether the call opened at open has a ref:ref pair
// among its direct arguments.
func (p *rewriter) hasRangeArg(open int) bool {
	depth, ternary := 0, 0
	for k := open; k < len(p.toks); k++ {
		t := p.toks[k]
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
			if depth == 0 {
				return false
			}
		case depth == 1 && t.is("?"):
			ternary++
		case depth == 1 && t.is(":") && ternary > 0:
			ternary--
		case depth == 1 && ternary == 0 && t.kind == tokIdent && looksLikeRef(t.text):
			c := p.next(k)
			if c < 0 || !p.toks[c].is(":") {
				continue
			}
			if e := p.next(c); e >= 0 && p.toks[e].kind == tokIdent && looksLikeRef(p.toks[e].text) {
				return true
			}
		}
	}
	return false
}

// looksLikeRef reports whether s has the letters-then-digits shape of a cell reference.
func looksLikeRef(s string) bool {
	i := 0
	for i < len(s) && isAlpha(s[i]) {
		i++
	}
	if i == 0 || i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

package compiler

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// sumEngine is a tiny line grammar: every non-blank line is an integer and
// the evaluator adds them up.
func sumEngine() *Engine[int] {
	parse := func(text string) (int, error) {
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return 0, &ParseError{Line: 1, Column: 1, Msg: "not a number"}
		}
		return n, nil
	}
	eval := func(lines []MatchedLine[int]) (string, error) {
		sum := 0
		for _, l := range lines {
			if l.Node < 0 {
				return "", errors.New("negative")
			}
			if l.Node == 999 {
				panic("boom")
			}
			sum += l.Node
		}
		return strconv.Itoa(sum), nil
	}
	return NewEngine(parse, eval)
}

func TestEngine_Eval(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single", "7", "7"},
		{"several", "1\n2\n3", "6"},
		{"blank lines", "1\n\n  \n2\n", "3"},
		{"empty", "", "0"},
		{"parse error", "1\nx\n3", "ERROR: Parsing failed: line 2, column 1: not a number"},
		{"first parse error wins", "a\nb", "ERROR: Parsing failed: line 1, column 1: not a number"},
		{"evaluator error", "1\n-1", "ERROR: Parsing evaluator failed: negative"},
		{"evaluator panic", "999", "ERROR: Parsing evaluator failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sumEngine().ParseAndEval(tt.input); got != tt.want {
				t.Errorf("ParseAndEval(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEngine_ErrorTypes(t *testing.T) {
	e := sumEngine()
	_, err := e.Eval("1\n\nz")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Line != 3 {
		t.Errorf("Line = %d, want 3", pe.Line)
	}

	_, err = e.Eval("-5")
	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EvalError, got %T", err)
	}
	if !IsErrorResult(FormatError(err)) {
		t.Errorf("FormatError(%v) has no error prefix", err)
	}
}

func TestEngine_IncrementalReuse(t *testing.T) {
	e := sumEngine()
	if got := e.ParseAndEval("1\n2\n3"); got != "6" {
		t.Fatalf("first eval = %q", got)
	}
	if s := e.Matcher().Stats(); s.Reparsed != 3 || s.Reused != 0 {
		t.Errorf("first stats = %+v, want 3 reparsed", s)
	}

	if got := e.ParseAndEval("1\n5\n3"); got != "9" {
		t.Fatalf("second eval = %q", got)
	}
	if s := e.Matcher().Stats(); s.Reparsed != 1 || s.Reused != 2 {
		t.Errorf("second stats = %+v, want 1 reparsed and 2 reused", s)
	}

	// Identical input reparses nothing.
	if got := e.ParseAndEval("1\n5\n3"); got != "9" {
		t.Fatalf("third eval = %q", got)
	}
	if s := e.Matcher().Stats(); s.Reparsed != 0 || s.Reused != 3 {
		t.Errorf("third stats = %+v, want 3 reused", s)
	}
}

// Any sequence of edits must give the same result as a fresh engine.
func TestEngine_IncrementalMatchesFresh(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"1", "2", "3", "\n", "\n", " ", "x"}
	mutate := func(s string) string {
		pos := 0
		if len(s) > 0 {
			pos = rng.Intn(len(s) + 1)
		}
		switch rng.Intn(3) {
		case 0:
			return s[:pos] + alphabet[rng.Intn(len(alphabet))] + s[pos:]
		case 1:
			if pos < len(s) {
				return s[:pos] + s[pos+1:]
			}
			return s
		default:
			end := min(len(s), pos+rng.Intn(4))
			return s[:pos] + alphabet[rng.Intn(len(alphabet))] + s[end:]
		}
	}

	inc := sumEngine()
	src := "10\n20\n30"
	for i := 0; i < 500; i++ {
		src = mutate(src)
		got := inc.ParseAndEval(src)
		want := sumEngine().ParseAndEval(src)
		if got != want {
			t.Fatalf("step %d: incremental %q, fresh %q for input %q", i, got, want, src)
		}
	}
}

func TestMatcher_LinePositions(t *testing.T) {
	m := NewMatcher(func(text string) (string, error) { return strings.ToUpper(text), nil })
	m.SetInput("ab\n\ncd")
	lines, err := m.Match()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[1].Index != 2 || lines[1].Offset != 4 || lines[1].Node != "CD" {
		t.Errorf("second line = %+v", lines[1])
	}

	m.ReplaceInputRange(0, 2, "xyz")
	if m.Input() != "xyz\n\ncd" {
		t.Fatalf("Input() = %q", m.Input())
	}
	lines, err = m.Match()
	if err != nil {
		t.Fatal(err)
	}
	if lines[0].Node != "XYZ" || lines[1].Offset != 5 {
		t.Errorf("after edit = %+v", lines)
	}
	if s := m.Stats(); s.Reparsed != 1 || s.Reused != 1 {
		t.Errorf("stats = %+v, want 1 reparsed and 1 reused", s)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic self-test grammar
// ---------------------------------------------------------------------------

type arithExpr struct {
	Left *arithTerm  `@@`
	Ops  []*arithAdd `@@*`
}

type arithAdd struct {
	Op    string     `@( "+" | "-" )`
	Right *arithTerm `@@`
}

type arithTerm struct {
	Left *arithFactor `@@`
	Ops  []*arithMul  `@@*`
}

type arithMul struct {
	Op    string       `@( "*" | "/" )`
	Right *arithFactor `@@`
}

type arithFactor struct {
	Number *float64  `  @Number`
	Sub    *arithExpr `| "(" @@ ")"`
}

func (e *arithExpr) value() float64 {
	v := e.Left.value()
	for _, op := range e.Ops {
		if op.Op == "+" {
			v += op.Right.value()
		} else {
			v -= op.Right.value()
		}
	}
	return v
}

func (t *arithTerm) value() float64 {
	v := t.Left.value()
	for _, op := range t.Ops {
		if op.Op == "*" {
			v *= op.Right.value()
		} else {
			v /= op.Right.value()
		}
	}
	return v
}

func (f *arithFactor) value() float64 {
	if f.Number != nil {
		return *f.Number
	}
	return f.Sub.value()
}

var arithParser = participle.MustBuild[arithExpr](
	participle.Lexer(lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?`},
		{Name: "Op", Pattern: `[-+*/()]`},
		{Name: "Whitespace", Pattern: `[ \t]+`},
	})),
	participle.Elide("Whitespace"),
)

// arithEngine evaluates one arithmetic expression per line and joins the
// results with commas.
func arithEngine() *Engine[*arithExpr] {
	parse := func(text string) (*arithExpr, error) {
		e, err := arithParser.ParseString("", text)
		if err != nil {
			return nil, &ParseError{Line: 1, Column: 1, Msg: err.Error()}
		}
		return e, nil
	}
	eval := func(lines []MatchedLine[*arithExpr]) (string, error) {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = strconv.FormatFloat(l.Node.value(), 'g', -1, 64)
		}
		return strings.Join(out, ","), nil
	}
	return NewEngine(parse, eval)
}

func TestEngine_ArithmeticGrammar(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1+2*3", "7"},
		{"(1+2)*3", "9"},
		{"10 / 4 - 1", "1.5"},
		{"1\n2+2\n\n3*3", "1,4,9"},
	}
	e := arithEngine()
	for _, tt := range tests {
		if got := e.ParseAndEval(tt.input); got != tt.want {
			t.Errorf("ParseAndEval(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	got := e.ParseAndEval("1+1\n2*(3")
	if !strings.HasPrefix(got, "ERROR: Parsing failed: line 2,") {
		t.Errorf("unbalanced parenthesis: got %q", got)
	}
	if got := e.ParseAndEval("1+1\n2*(3)"); got != "2,6" {
		t.Errorf("after fix: got %q", got)
	}
}

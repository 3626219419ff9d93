package compiler

import (
	"fmt"
)

// EvalFunc runs the semantic actions over the matched lines.
type EvalFunc[T any] func(lines []MatchedLine[T]) (string, error)

// Engine couples a Matcher with semantic actions. Consecutive inputs are
// diffed so only the changed window is handed to the matcher.
type Engine[T any] struct {
	matcher *Matcher[T]
	eval    EvalFunc[T]
	prev    string
	primed  bool
}

// NewEngine creates an engine from a line parser and an evaluator.
func NewEngine[T any](parse ParseFunc[T], eval EvalFunc[T]) *Engine[T] {
	return &Engine[T]{matcher: NewMatcher(parse), eval: eval}
}

// Matcher exposes the underlying matcher (for stats).
func (e *Engine[T]) Matcher() *Matcher[T] { return e.matcher }

// Eval feeds input to the matcher and evaluates the result. Grammar
// mismatches are returned as *ParseError; evaluator faults, including
// panics, as *EvalError.
func (e *Engine[T]) Eval(input string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = &EvalError{Err: fmt.Errorf("%v", r)}
		}
	}()
	e.feed(input)
	lines, err := e.matcher.Match()
	if err != nil {
		return "", err
	}
	result, err = e.eval(lines)
	if err != nil {
		return "", &EvalError{Err: err}
	}
	return result, nil
}

// ParseAndEval is Eval with the error rendered as an ERROR: string.
func (e *Engine[T]) ParseAndEval(input string) string {
	out, err := e.Eval(input)
	if err != nil {
		return FormatError(err)
	}
	return out
}

func (e *Engine[T]) feed(input string) {
	if !e.primed {
		e.primed = true
		e.prev = input
		e.matcher.SetInput(input)
		return
	}
	old := e.prev
	e.prev = input
	if old == input {
		return
	}
	start := commonPrefix(old, input)
	if start == 0 {
		e.matcher.SetInput(input)
		return
	}
	minCommon := min(len(old), len(input)) - start
	suffix := commonSuffix(old, input, minCommon)
	end := len(input) - suffix
	oldEnd := len(old) - suffix
	e.matcher.ReplaceInputRange(start, oldEnd, input[start:end])
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// commonSuffix is the common suffix length of a and b, capped at limit so
// it never overlaps the common prefix.
func commonSuffix(a, b string, limit int) int {
	i := 0
	for i < limit && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

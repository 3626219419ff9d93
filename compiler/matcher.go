package compiler

import (
	"errors"
	"strings"

	"github.com/google/btree"
)

// ---------------------------------------------------------------------------
// Matcher: incremental line-oriented parsing
// ---------------------------------------------------------------------------

// ParseFunc parses one physical line of input.
type ParseFunc[T any] func(text string) (T, error)

// MatchedLine is one non-blank line of the current input and its node.
type MatchedLine[T any] struct {
	Index  int    // 0-based physical line index
	Offset int    // byte offset of the line in the input
	Text   string // line text without the trailing newline
	Node   T
}

// MatchStats describes the work done by the last Match.
type MatchStats struct {
	Reparsed int
	Reused   int
}

type lineEntry[T any] struct {
	start int
	end   int
	text  string
	node  T
	err   error
}

func lessEntry[T any](a, b *lineEntry[T]) bool { return a.start < b.start }

// Matcher keeps the current input and the parse result of every line,
// keyed by byte offset. Edits invalidate only the lines they touch; lines
// after an edit are shifted and reused.
type Matcher[T any] struct {
	parse ParseFunc[T]
	input string
	lines *btree.BTreeG[*lineEntry[T]]
	stats MatchStats
}

// NewMatcher creates a matcher using parse for every line.
func NewMatcher[T any](parse ParseFunc[T]) *Matcher[T] {
	return &Matcher[T]{
		parse: parse,
		lines: btree.NewG[*lineEntry[T]](16, lessEntry[T]),
	}
}

// Input returns the current input.
func (m *Matcher[T]) Input() string { return m.input }

// Stats returns the counters of the last Match.
func (m *Matcher[T]) Stats() MatchStats { return m.stats }

// SetInput replaces the whole input and drops all cached lines.
func (m *Matcher[T]) SetInput(input string) {
	m.input = input
	m.lines.Clear(false)
}

// ReplaceInputRange replaces input[start:oldEnd] with text.
func (m *Matcher[T]) ReplaceInputRange(start, oldEnd int, text string) {
	if start < 0 || oldEnd < start || oldEnd > len(m.input) {
		m.SetInput(m.input[:min(max(start, 0), len(m.input))] + text)
		return
	}
	m.input = m.input[:start] + text + m.input[oldEnd:]
	delta := len(text) - (oldEnd - start)

	var shifted, stale []*lineEntry[T]
	m.lines.Ascend(func(e *lineEntry[T]) bool {
		switch {
		case e.end < start:
		case e.start > oldEnd:
			shifted = append(shifted, e)
		default:
			stale = append(stale, e)
		}
		return true
	})
	for _, e := range stale {
		m.lines.Delete(e)
	}
	for _, e := range shifted {
		m.lines.Delete(e)
	}
	for _, e := range shifted {
		e.start += delta
		e.end += delta
		m.lines.ReplaceOrInsert(e)
	}
}

// Match parses every line not already cached and returns all non-blank
// lines in order. The error is the first line's *ParseError, rebased to its
// physical line.
func (m *Matcher[T]) Match() ([]MatchedLine[T], error) {
	m.stats = MatchStats{}
	next := btree.NewG[*lineEntry[T]](16, lessEntry[T])
	var out []MatchedLine[T]
	var firstErr error

	off := 0
	for idx, text := range strings.Split(m.input, "\n") {
		start := off
		off += len(text) + 1
		if strings.TrimSpace(text) == "" {
			continue
		}
		e, ok := m.lines.Get(&lineEntry[T]{start: start})
		if ok && e.end == start+len(text) && e.text == text {
			m.stats.Reused++
		} else {
			node, err := m.parse(text)
			e = &lineEntry[T]{start: start, end: start + len(text), text: text, node: node, err: err}
			m.stats.Reparsed++
		}
		next.ReplaceOrInsert(e)
		if e.err != nil {
			if firstErr == nil {
				firstErr = rebase(e.err, idx)
			}
			continue
		}
		out = append(out, MatchedLine[T]{Index: idx, Offset: start, Text: text, Node: e.node})
	}
	m.lines = next
	return out, firstErr
}

func rebase(err error, idx int) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		cp := *pe
		cp.Line = idx + 1
		return &cp
	}
	return &ParseError{Line: idx + 1, Column: 1, Msg: err.Error()}
}

package compiler

import (
	"errors"
	"fmt"
)

// ErrorPrefix starts every failed result of the text compile boundary.
const ErrorPrefix = "ERROR:"

// ParseError is a grammar mismatch at a physical source position.
type ParseError struct {
	Line   int    // 1-based physical line
	Column int    // 1-based column within the line
	Label  string // BASIC line number of the failing line, if it has one
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("line %d (label %s), column %d: %s", e.Line, e.Label, e.Column, e.Msg)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// EvalError is a fault inside the semantic actions for input that parsed.
type EvalError struct {
	Err error
}

func (e *EvalError) Error() string { return e.Err.Error() }
func (e *EvalError) Unwrap() error { return e.Err }

// FormatError renders err the way the text compile boundary reports it.
func FormatError(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return ErrorPrefix + " Parsing failed: " + pe.Error()
	}
	return ErrorPrefix + " Parsing evaluator failed: " + err.Error()
}

// IsErrorResult reports whether a compile result is an error string.
func IsErrorResult(s string) bool {
	return len(s) >= len(ErrorPrefix) && s[:len(ErrorPrefix)] == ErrorPrefix
}

// Package syntaxcheck reports JavaScript syntax errors in generated scripts.
package syntaxcheck

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
	"github.com/tliron/commonlog"

	"github.com/chazu/locobasic/vm"
)

var log = commonlog.GetLogger("locobasic.syntaxcheck")

// ErrClosed is returned by Check after Close.
var ErrClosed = errors.New("syntaxcheck: checker closed")

// Diagnostic is a syntax error in a script. Line and Column are 1-based and
// relative to the script as compiled, not to its wrapper.
type Diagnostic struct {
	Message string
	Line    int
	Column  int
}

func (d *Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("SyntaxError: %s (line %d, column %d)", d.Message, d.Line, d.Column)
	}
	return "SyntaxError: " + d.Message
}

// Checker checks a generated script. It returns a nil Diagnostic when the
// script compiles.
type Checker interface {
	Check(ctx context.Context, script string) (*Diagnostic, error)
}

type checkRequest struct {
	script string
	done   chan checkResult
}

type checkResult struct {
	diag *Diagnostic
	err  error
}

// QueueChecker compiles scripts one at a time on its own goroutine, in the
// order they were submitted.
type QueueChecker struct {
	requests chan checkRequest
	quit     chan struct{}
}

// NewQueueChecker creates a QueueChecker and starts its goroutine.
func NewQueueChecker() *QueueChecker {
	c := &QueueChecker{
		requests: make(chan checkRequest, 64),
		quit:     make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *QueueChecker) loop() {
	for {
		select {
		case req := <-c.requests:
			req.done <- c.execute(req.script)
		case <-c.quit:
			return
		}
	}
}

// execute compiles one script, recovering from panics in the parser.
func (c *QueueChecker) execute(script string) (result checkResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("syntaxcheck: %v", r)
		}
	}()
	prg, err := parser.ParseFile(nil, "script.js", vm.WrapScript(script), 0)
	if err != nil {
		var list parser.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			first := list[0]
			return checkResult{diag: diagnostic(first.Message, first.Position)}
		}
		return checkResult{diag: &Diagnostic{Message: err.Error()}}
	}
	// Early errors such as strict mode violations are found by the compiler.
	if _, err := goja.CompileAST(prg, true); err != nil {
		var syn *goja.CompilerSyntaxError
		if errors.As(err, &syn) && syn.File != nil {
			return checkResult{diag: diagnostic(syn.Message, syn.File.Position(syn.Offset))}
		}
		return checkResult{diag: &Diagnostic{Message: err.Error()}}
	}
	return checkResult{}
}

func diagnostic(msg string, pos file.Position) *Diagnostic {
	d := &Diagnostic{Message: msg, Line: pos.Line - vm.WrapperLines, Column: pos.Column}
	if d.Line < 1 {
		d.Line, d.Column = 1, 1
	}
	log.Debugf("syntax error: %s", d)
	return d
}

// Check submits script and waits for its result.
func (c *QueueChecker) Check(ctx context.Context, script string) (*Diagnostic, error) {
	req := checkRequest{script: script, done: make(chan checkResult, 1)}
	select {
	case c.requests <- req:
	case <-c.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.done:
		return res.diag, res.err
	case <-c.quit:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the goroutine. Pending checks return ErrClosed.
func (c *QueueChecker) Close() {
	close(c.quit)
}

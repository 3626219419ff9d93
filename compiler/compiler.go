// Package compiler translates line-numbered BASIC into a JavaScript program
// body for the runtime in package vm.
//
// A Compiler is incremental: it keeps the previous source and re-parses only
// the lines touched by an edit. Code generation always runs over the whole
// program with a fresh CodeGenState.
package compiler

import (
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("locobasic.compiler")

// Options configures a Compiler.
type Options struct {
	// Strict accepts only upper-case keywords.
	Strict bool
}

// Compiler turns BASIC source into script text.
type Compiler struct {
	opts   Options
	engine *Engine[*Line]
	state  *CodeGenState
}

// New creates a compiler. The grammar is built on first use.
func New(opts Options) *Compiler {
	c := &Compiler{opts: opts}
	c.reset()
	return c
}

func (c *Compiler) reset() {
	opts := c.opts
	parse := func(text string) (*Line, error) {
		return GrammarFor(opts.Strict).ParseLine(text)
	}
	c.engine = NewEngine[*Line](parse, c.generate)
}

// SetStrict switches the grammar variant. The parse cache is dropped.
func (c *Compiler) SetStrict(strict bool) {
	if c.opts.Strict == strict {
		return
	}
	c.opts.Strict = strict
	c.reset()
}

// Strict reports the grammar variant in use.
func (c *Compiler) Strict() bool { return c.opts.Strict }

func (c *Compiler) generate(lines []MatchedLine[*Line]) (string, error) {
	script, st, err := generateProgram(lines)
	if err != nil {
		return "", err
	}
	c.state = st
	return script, nil
}

// CompileScript compiles src and returns the script or a *ParseError or
// *EvalError.
func (c *Compiler) CompileScript(src string) (string, error) {
	start := time.Now()
	script, err := c.engine.Eval(src)
	stats := c.engine.Matcher().Stats()
	if err != nil {
		log.Debugf("compile failed after %s: %v", time.Since(start), err)
		return "", err
	}
	log.Debugf("compiled %d bytes in %s (reparsed %d, reused %d lines)",
		len(src), time.Since(start), stats.Reparsed, stats.Reused)
	return script, nil
}

// Compile is the text boundary: the script, or a string starting with
// "ERROR:".
func (c *Compiler) Compile(src string) string {
	script, err := c.CompileScript(src)
	if err != nil {
		return FormatError(err)
	}
	return script
}

// State returns the CodeGenState of the last successful compile.
func (c *Compiler) State() *CodeGenState { return c.state }

// Stats returns the matcher counters of the last compile.
func (c *Compiler) Stats() MatchStats { return c.engine.Matcher().Stats() }

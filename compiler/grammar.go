package compiler

import (
	"errors"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"
)

// Grammar is an immutable parser for single BASIC lines.
type Grammar struct {
	name   string
	parser *participle.Parser[Line]
}

var (
	permissiveOnce    sync.Once
	permissiveGrammar *Grammar

	strictOnce    sync.Once
	strictGrammar *Grammar
)

// PermissiveGrammar returns the grammar with case-insensitive keywords.
// It is built on first use.
func PermissiveGrammar() *Grammar {
	permissiveOnce.Do(func() {
		permissiveGrammar = buildGrammar("permissive", false)
	})
	return permissiveGrammar
}

// StrictGrammar returns the grammar that only accepts upper-case keywords.
func StrictGrammar() *Grammar {
	strictOnce.Do(func() {
		strictGrammar = buildGrammar("strict", true)
	})
	return strictGrammar
}

// GrammarFor selects a grammar variant.
func GrammarFor(strict bool) *Grammar {
	if strict {
		return StrictGrammar()
	}
	return PermissiveGrammar()
}

func buildGrammar(name string, strict bool) *Grammar {
	opts := []participle.Option{
		participle.Lexer(newLexerDefinition(strict)),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	}
	if !strict {
		opts = append(opts, participle.CaseInsensitive("Keyword", "Func"))
	}
	return &Grammar{
		name:   name,
		parser: participle.MustBuild[Line](opts...),
	}
}

// Name returns "permissive" or "strict".
func (g *Grammar) Name() string { return g.name }

// ParseLine parses one physical line. Errors are *ParseError with Line
// left at 1; the matcher rebases them.
func (g *Grammar) ParseLine(text string) (*Line, error) {
	line, err := g.parser.ParseString("", text)
	if err != nil {
		return nil, toParseError(err, text)
	}
	return line, nil
}

func toParseError(err error, text string) *ParseError {
	pe := &ParseError{Line: 1, Column: 1, Label: leadingLabel(text), Msg: err.Error()}
	var perr participle.Error
	if errors.As(err, &perr) {
		pe.Msg = perr.Message()
		pos := perr.Position()
		if pos.Column > 0 {
			pe.Column = pos.Column
		}
	}
	return pe
}

// leadingLabel returns the line number at the start of text, if any.
func leadingLabel(text string) string {
	s := strings.TrimLeft(text, " \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

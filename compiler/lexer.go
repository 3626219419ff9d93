package compiler

import (
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// ---------------------------------------------------------------------------
// Lexer: token rules for the BASIC dialect
// ---------------------------------------------------------------------------

// statementKeywords are the reserved words that introduce statements or act
// as operators and separators.
var statementKeywords = []string{
	"AFTER", "AND", "BORDER", "CLEAR", "CLS", "DATA", "DEF", "DEFINT",
	"DEFREAL", "DEFSTR", "DEG", "DIM", "DRAW", "DRAWR", "ELSE", "END",
	"ERASE", "ERROR", "EVERY", "FOR", "FRAME", "GOSUB", "GRAPHICS", "IF",
	"INK", "INPUT", "KEY", "LET", "LINE", "MOD", "MODE", "MOVE", "MOVER",
	"NEXT", "NOT", "ON", "OR", "ORIGIN", "PAPER", "PEN", "PLOT", "PLOTR",
	"PRINT", "RAD", "RANDOMIZE", "READ", "RESTORE", "RETURN", "SPC", "STEP",
	"STOP", "TAB", "TAG", "TAGOFF", "THEN", "TO", "USING", "WEND", "WHILE",
	"XOR", "ZONE",
}

// functionKeywords are the built-in functions usable inside expressions.
var functionKeywords = []string{
	"ABS", "ASC", "ATN", "BIN$", "CHR$", "CINT", "COS", "DEC$", "EXP", "FIX",
	"HEX$", "INKEY$", "INSTR", "INT", "LEFT$", "LEN", "LOG", "LOG10",
	"LOWER$", "MAX", "MID$", "MIN", "PI", "POS", "REMAIN", "RIGHT$", "RND",
	"ROUND", "SGN", "SIN", "SPACE$", "SQR", "STR$", "STRING$", "TAN", "TIME",
	"UPPER$", "VAL", "VPOS", "XPOS", "YPOS",
}

// Keywords returns the statement keywords in alphabetical order.
func Keywords() []string { return append([]string(nil), statementKeywords...) }

// Functions returns the built-in function names in alphabetical order.
func Functions() []string { return append([]string(nil), functionKeywords...) }

// keywordPattern builds an alternation that matches any of words as a whole
// word. Longer words come first so that e.g. LOG10 wins over LOG.
func keywordPattern(words []string, caseInsensitive bool) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	alts := make([]string, len(sorted))
	for i, w := range sorted {
		alt := regexp.QuoteMeta(w)
		if !strings.HasSuffix(w, "$") {
			alt += `\b`
		}
		alts[i] = alt
	}
	prefix := ""
	if caseInsensitive {
		prefix = "(?i)"
	}
	return prefix + "(?:" + strings.Join(alts, "|") + ")"
}

// newLexerDefinition returns the token rules. The strict variant only
// recognises upper-case keywords; lower-case words then lex as identifiers
// and fail in the grammar.
func newLexerDefinition(strict bool) lexer.Definition {
	ci := "(?i)"
	if strict {
		ci = ""
	}
	return lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		{Name: "Comment", Pattern: ci + `REM\b[^\n]*|'[^\n]*`},
		{Name: "String", Pattern: `"[^"\n]*"?`},
		{Name: "Number", Pattern: `&[Hh][0-9A-Fa-f]+|&[Xx][01]+|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[Ee][-+]?[0-9]+)?`},
		{Name: "Rsx", Pattern: `\|[A-Za-z][A-Za-z0-9.]*`},
		{Name: "Keyword", Pattern: keywordPattern(statementKeywords, !strict)},
		{Name: "Func", Pattern: keywordPattern(functionKeywords, !strict)},
		{Name: "FnName", Pattern: ci + `FN\s*[A-Za-z][A-Za-z0-9.]*[$%!]?`},
		{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9.]*[$%!]?`},
		{Name: "Op", Pattern: `<>|<=|>=|[-+*/\\^=<>(),;:#@?\[\]]`},
	})
}

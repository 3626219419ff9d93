package server

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/locobasic/compiler"
	"github.com/chazu/locobasic/syntaxcheck"
	"github.com/chazu/locobasic/vm"
)

var errStopped = errors.New("server: workspace worker stopped")

// checkTimeout bounds one syntax check of a generated script.
const checkTimeout = 5 * time.Second

// Document is one open editor buffer and its own incremental compiler.
type Document struct {
	URI     protocol.DocumentUri
	Text    string
	Version protocol.Integer

	compiler *compiler.Compiler
	script   string
	err      error
	syntax   *syntaxcheck.Diagnostic
	labels   []compiler.LabelDef
}

// Workspace holds the open documents.
type Workspace struct {
	opts    compiler.Options
	checker syntaxcheck.Checker
	rsx     *vm.RsxDispatcher
	docs    map[protocol.DocumentUri]*Document
}

// NewWorkspace creates an empty workspace. checker may be nil to skip
// checking generated scripts.
func NewWorkspace(opts compiler.Options, checker syntaxcheck.Checker) *Workspace {
	return &Workspace{
		opts:    opts,
		checker: checker,
		rsx:     vm.NewRsxDispatcher(),
		docs:    make(map[protocol.DocumentUri]*Document),
	}
}

// Open registers a document and compiles it.
func (ws *Workspace) Open(uri protocol.DocumentUri, version protocol.Integer, text string) *Document {
	d := &Document{URI: uri, Text: text, Version: version, compiler: compiler.New(ws.opts)}
	ws.docs[uri] = d
	ws.analyze(d)
	return d
}

// Change applies LSP content changes in order and recompiles.
func (ws *Workspace) Change(uri protocol.DocumentUri, version protocol.Integer, changes []any) (*Document, error) {
	d, ok := ws.docs[uri]
	if !ok {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			d.Text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				d.Text = c.Text
				continue
			}
			start := offsetAt(d.Text, c.Range.Start)
			end := offsetAt(d.Text, c.Range.End)
			if end < start {
				start, end = end, start
			}
			d.Text = d.Text[:start] + c.Text + d.Text[end:]
		default:
			return nil, fmt.Errorf("unsupported change event %T", change)
		}
	}
	d.Version = version
	ws.analyze(d)
	return d, nil
}

// Close forgets a document.
func (ws *Workspace) Close(uri protocol.DocumentUri) {
	delete(ws.docs, uri)
}

// Document returns an open document or nil.
func (ws *Workspace) Document(uri protocol.DocumentUri) *Document {
	return ws.docs[uri]
}

// analyze compiles the document and checks the generated script.
func (ws *Workspace) analyze(d *Document) {
	d.syntax = nil
	d.script, d.err = d.compiler.CompileScript(d.Text)
	if d.err != nil {
		return
	}
	if st := d.compiler.State(); st != nil {
		d.labels = st.DefinedLabels()
	}
	if ws.checker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	diag, err := ws.checker.Check(ctx, d.script)
	if err != nil {
		log.Warningf("checking %s: %s", d.URI, err)
		return
	}
	d.syntax = diag
}

// Script returns the last generated script, or "" after a failed compile.
func (d *Document) Script() string { return d.script }

// Err returns the compile error of the current text.
func (d *Document) Err() error { return d.err }

// Diagnostics converts the compile result to LSP diagnostics.
func (d *Document) Diagnostics() []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError

	if d.err != nil {
		source := lspName
		rng := protocol.Range{}
		var pe *compiler.ParseError
		if errors.As(d.err, &pe) {
			line := protocol.UInteger(max(pe.Line-1, 0))
			rng = protocol.Range{
				Start: protocol.Position{Line: line, Character: protocol.UInteger(max(pe.Column-1, 0))},
				End:   protocol.Position{Line: line, Character: protocol.UInteger(lineLength(d.Text, int(line)))},
			}
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    rng,
			Severity: &severity,
			Source:   &source,
			Message:  compiler.FormatError(d.err),
		})
	}

	if d.syntax != nil {
		source := lspName + "-script"
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Severity: &severity,
			Source:   &source,
			Message:  "generated script: " + d.syntax.Error(),
		})
	}
	return diagnostics
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

// Completions returns keyword, function, RSX and line number completions
// for the word before pos.
func (ws *Workspace) Completions(uri protocol.DocumentUri, pos protocol.Position) []protocol.CompletionItem {
	d := ws.docs[uri]
	if d == nil {
		return nil
	}
	prefix := extractPrefix(d.Text, pos)
	if prefix == "" {
		return nil
	}

	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	upper := strings.ToUpper(prefix)
	switch {
	case strings.HasPrefix(prefix, "|"):
		for _, name := range ws.rsx.Names() {
			sig, _ := ws.rsx.Signature(name)
			if strings.HasPrefix("|"+strings.ToUpper(name), upper) {
				add("|"+strings.ToUpper(name), sig, protocol.CompletionItemKindFunction)
			}
		}
	case isDigits(prefix):
		for _, l := range d.labels {
			if strings.HasPrefix(l.Label, prefix) {
				add(l.Label, "line number", protocol.CompletionItemKindReference)
			}
		}
	default:
		for _, kw := range compiler.Keywords() {
			if strings.HasPrefix(kw, upper) {
				add(kw, "keyword", protocol.CompletionItemKindKeyword)
			}
		}
		for _, fn := range compiler.Functions() {
			if strings.HasPrefix(fn, upper) {
				add(fn, "function", protocol.CompletionItemKindFunction)
			}
		}
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// Hover describes the RSX command, line number or keyword under pos.
func (ws *Workspace) Hover(uri protocol.DocumentUri, pos protocol.Position) *protocol.Hover {
	d := ws.docs[uri]
	if d == nil {
		return nil
	}
	word := extractWord(d.Text, pos)
	if word == "" {
		return nil
	}

	var text string
	upper := strings.ToUpper(word)
	switch {
	case strings.HasPrefix(word, "|"):
		sig, ok := ws.rsx.Signature(word[1:])
		if !ok {
			return nil
		}
		text = "```\n" + sig + "\n```\nRSX command"
	case isDigits(word):
		l, ok := d.label(word)
		if !ok {
			return nil
		}
		text = fmt.Sprintf("**%s**: physical lines %d to %d, DATA index %d", l.Label, l.FirstLine+1, l.LastLine+1, l.DataIndex)
		if n := len(ws.References(uri, pos)); n > 0 {
			text += fmt.Sprintf("\n\n%d references", n)
		}
	case contains(compiler.Functions(), upper):
		text = "**" + upper + "** built-in function"
	case contains(compiler.Keywords(), upper):
		text = "**" + upper + "** keyword"
	default:
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

// Definition finds the line carrying the line number under pos.
func (ws *Workspace) Definition(uri protocol.DocumentUri, pos protocol.Position) []protocol.Location {
	d := ws.docs[uri]
	if d == nil {
		return nil
	}
	word := extractWord(d.Text, pos)
	if !isDigits(word) {
		return nil
	}
	l, ok := d.label(word)
	if !ok {
		return nil
	}
	line := protocol.UInteger(l.FirstLine)
	return []protocol.Location{{
		URI: uri,
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: protocol.UInteger(len(l.Label))},
		},
	}}
}

// labelRefPattern matches the line number lists after GOSUB and RESTORE,
// covering ON n GOSUB and AFTER/EVERY ... GOSUB.
var labelRefPattern = regexp.MustCompile(`(?i)\b(?:GOSUB|RESTORE)[ \t]*([0-9]+(?:[ \t]*,[ \t]*[0-9]+)*)`)

// References lists the GOSUB and RESTORE targets naming the line number
// under pos.
func (ws *Workspace) References(uri protocol.DocumentUri, pos protocol.Position) []protocol.Location {
	d := ws.docs[uri]
	if d == nil {
		return nil
	}
	word := extractWord(d.Text, pos)
	if !isDigits(word) {
		return nil
	}
	target, _ := strconv.Atoi(word)

	var locations []protocol.Location
	for i, line := range strings.Split(d.Text, "\n") {
		for _, m := range labelRefPattern.FindAllStringSubmatchIndex(line, -1) {
			list := line[m[2]:m[3]]
			off := m[2]
			for _, part := range strings.Split(list, ",") {
				trimmed := strings.TrimLeft(part, " \t")
				start := off + len(part) - len(trimmed)
				num := strings.TrimRight(trimmed, " \t")
				if n, err := strconv.Atoi(num); err == nil && n == target {
					locations = append(locations, protocol.Location{
						URI: uri,
						Range: protocol.Range{
							Start: protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(start)},
							End:   protocol.Position{Line: protocol.UInteger(i), Character: protocol.UInteger(start + len(num))},
						},
					})
				}
				off += len(part) + 1
			}
		}
	}
	return locations
}

func (d *Document) label(name string) (compiler.LabelDef, bool) {
	n, err := strconv.Atoi(name)
	if err != nil {
		return compiler.LabelDef{}, false
	}
	for _, l := range d.labels {
		if v, err := strconv.Atoi(l.Label); err == nil && v == n {
			return l, true
		}
	}
	return compiler.LabelDef{}, false
}

// ---------------------------------------------------------------------------
// Text helpers
// ---------------------------------------------------------------------------

// offsetAt converts an LSP position (UTF-16 columns) to a byte offset,
// clamped to the text.
func offsetAt(text string, pos protocol.Position) int {
	off := 0
	for line := protocol.UInteger(0); line < pos.Line; line++ {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}
	units := protocol.UInteger(0)
	for off < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[off:])
		if r == '\n' {
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		off += size
	}
	return off
}

func lineLength(text string, line int) int {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return 0
	}
	return len(strings.TrimRight(lines[line], "\r"))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func isWordChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' ||
		ch == '$' || ch == '%' || ch == '!' || ch == '.'
}

// cursorLine returns the line at pos and the cursor column clamped to it.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the word fragment before the cursor for completion.
// A leading | is kept for RSX names.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	if start > 0 && line[start-1] == '|' {
		start--
	}

	if start == col {
		return ""
	}
	return line[start:col]
}

// extractWord returns the full word under the cursor. A leading | is kept
// for RSX names.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	if start > 0 && line[start-1] == '|' {
		start--
	}

	if start == end {
		return ""
	}
	return line[start:end]
}

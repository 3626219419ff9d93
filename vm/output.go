package vm

import (
	"html"
	"strings"
	"unicode/utf8"
)

// span tracks one open color span in the text buffer.
type span struct {
	open  bool
	start int // buffer offset of the opening tag
	end   int // buffer offset just after the opening tag
}

// textOutput is the text console. In HTML mode pen and paper colors are
// rendered as nested spans, paper outside pen.
type textOutput struct {
	terminal bool
	pal      *palette
	buf      strings.Builder

	pen, paper         int
	penSpan, paperSpan span

	col  int // 0-based column
	line int // 0-based line since the last CLS
}

const (
	defaultPen   = 1
	defaultPaper = 0
)

func newTextOutput(terminal bool, pal *palette) *textOutput {
	return &textOutput{terminal: terminal, pal: pal, pen: defaultPen, paper: defaultPaper}
}

func (t *textOutput) reset() {
	t.buf.Reset()
	t.pen, t.paper = defaultPen, defaultPaper
	t.penSpan, t.paperSpan = span{}, span{}
	t.col, t.line = 0, 0
}

// write appends raw text and tracks the cursor.
func (t *textOutput) write(s string) {
	for _, r := range s {
		if r == '\n' {
			t.col = 0
			t.line++
		} else {
			t.col++
		}
	}
	if t.terminal {
		t.buf.WriteString(s)
		return
	}
	t.buf.WriteString(html.EscapeString(s))
}

func (t *textOutput) spaces(n int) {
	if n > 0 {
		t.write(strings.Repeat(" ", n))
	}
}

// zone moves to the next print zone of the given width.
func (t *textOutput) zone(width int) {
	if width <= 0 {
		return
	}
	t.spaces(width - t.col%width)
}

// tab moves to 1-based column n, starting a new line if already past it.
func (t *textOutput) tab(n int) {
	target := n - 1
	if target < 0 {
		target = 0
	}
	if t.col > target {
		t.write("\n")
	}
	t.spaces(target - t.col)
}

func (t *textOutput) openTag(sp *span, tag string) {
	sp.open = true
	sp.start = t.buf.Len()
	t.buf.WriteString(tag)
	sp.end = t.buf.Len()
}

// closeTag closes a span. An empty span is removed from the buffer.
func (t *textOutput) closeTag(sp *span) {
	if !sp.open {
		return
	}
	sp.open = false
	if t.buf.Len() == sp.end {
		s := t.buf.String()[:sp.start]
		t.buf.Reset()
		t.buf.WriteString(s)
		return
	}
	t.buf.WriteString("</span>")
}

func (t *textOutput) penTag() string {
	return `<span style="color: ` + t.pal.color(t.pen) + `">`
}

func (t *textOutput) paperTag() string {
	return `<span style="background-color: ` + t.pal.color(t.paper) + `">`
}

func (t *textOutput) setPen(n int) {
	if n == t.pen {
		return
	}
	t.pen = n
	if t.terminal {
		return
	}
	t.closeTag(&t.penSpan)
	t.openTag(&t.penSpan, t.penTag())
}

// setPaper reopens the paper span. The pen span nested inside it is closed
// first and reopened afterwards.
func (t *textOutput) setPaper(n int) {
	if n == t.paper {
		return
	}
	t.paper = n
	if t.terminal {
		return
	}
	hadPen := t.penSpan.open
	t.closeTag(&t.penSpan)
	t.closeTag(&t.paperSpan)
	t.openTag(&t.paperSpan, t.paperTag())
	if hadPen {
		t.openTag(&t.penSpan, t.penTag())
	}
}

// flush returns the buffered text with all spans closed and starts a new
// buffer with the same spans open.
func (t *textOutput) flush() string {
	hadPen, hadPaper := t.penSpan.open, t.paperSpan.open
	t.closeTag(&t.penSpan)
	t.closeTag(&t.paperSpan)
	out := t.buf.String()
	t.buf.Reset()
	if hadPaper {
		t.openTag(&t.paperSpan, t.paperTag())
	}
	if hadPen {
		t.openTag(&t.penSpan, t.penTag())
	}
	return out
}

// pending reports whether the buffer holds more than reopened span tags.
func (t *textOutput) pending() bool {
	n := t.buf.Len()
	if t.penSpan.open {
		return n > t.penSpan.end
	}
	if t.paperSpan.open {
		return n > t.paperSpan.end
	}
	return n > 0
}

// cls discards the buffer and homes the cursor; colors are kept.
func (t *textOutput) cls() {
	hadPen, hadPaper := t.penSpan.open, t.paperSpan.open
	t.buf.Reset()
	t.penSpan, t.paperSpan = span{}, span{}
	t.col, t.line = 0, 0
	if hadPaper {
		t.openTag(&t.paperSpan, t.paperTag())
	}
	if hadPen {
		t.openTag(&t.penSpan, t.penTag())
	}
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

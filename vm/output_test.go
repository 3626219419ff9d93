package vm

import (
	"strings"
	"testing"
)

func TestTextOutput_PenSpan(t *testing.T) {
	out := newTextOutput(false, newPalette())
	out.setPen(2)
	out.write("A")
	if got, want := out.flush(), `<span style="color: #00FFFF">A</span>`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextOutput_EmptySpanRemoved(t *testing.T) {
	out := newTextOutput(false, newPalette())
	out.setPen(2)
	out.setPen(3)
	out.write("B")
	if got, want := out.flush(), `<span style="color: #FF0000">B</span>`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextOutput_PaperWrapsPen(t *testing.T) {
	out := newTextOutput(false, newPalette())
	out.setPen(2)
	out.write("A")
	out.setPaper(3)
	out.write("B")

	want := `<span style="color: #00FFFF">A</span>` +
		`<span style="background-color: #FF0000"><span style="color: #00FFFF">B</span></span>`
	if got := out.flush(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// Spans stay open across flushes.
	out.write("C")
	want = `<span style="background-color: #FF0000"><span style="color: #00FFFF">C</span></span>`
	if got := out.flush(); got != want {
		t.Errorf("after flush: got %q, want %q", got, want)
	}
	if out.pending() {
		t.Error("reopened spans alone should not count as pending")
	}
}

func TestTextOutput_Escaping(t *testing.T) {
	html := newTextOutput(false, newPalette())
	html.write("<b>&")
	if got := html.flush(); got != "&lt;b&gt;&amp;" {
		t.Errorf("html: got %q", got)
	}

	term := newTextOutput(true, newPalette())
	term.setPen(2)
	term.write("<b>")
	if got := term.flush(); got != "<b>" {
		t.Errorf("terminal: got %q", got)
	}
}

func TestTextOutput_Cursor(t *testing.T) {
	out := newTextOutput(true, newPalette())
	out.write("AB")
	out.zone(13)
	if out.col != 13 {
		t.Errorf("zone: col %d, want 13", out.col)
	}
	out.tab(5)
	if out.line != 1 || out.col != 4 {
		t.Errorf("tab past column: line %d col %d", out.line, out.col)
	}
	got := out.flush()
	if want := "AB" + strings.Repeat(" ", 11) + "\n    "; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextOutput_ClsKeepsColors(t *testing.T) {
	out := newTextOutput(false, newPalette())
	out.setPen(2)
	out.write("old")
	out.cls()
	out.write("new")
	if got, want := out.flush(), `<span style="color: #00FFFF">new</span>`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

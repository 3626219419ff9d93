package vm

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
)

// Logical screen size.
const (
	screenWidth  = 640
	screenHeight = 400
)

// Graphics is the vector graphics engine. Drawing commands are collected
// into one SVG path per graphics pen; shapes and tagged text become
// separate elements. Y grows upwards from the origin in logical
// coordinates and downwards in SVG.
type Graphics struct {
	pal *palette

	pen   int
	paper int

	x, y             float64 // logical cursor
	originX, originY float64

	path     []string
	pathDraw bool // the open path contains a visible command
	elements []string
}

func newGraphics(pal *palette) *Graphics {
	g := &Graphics{pal: pal}
	g.reset()
	return g
}

func (g *Graphics) reset() {
	g.pen, g.paper = 1, 0
	g.x, g.y = 0, 0
	g.originX, g.originY = 0, 0
	g.path = nil
	g.pathDraw = false
	g.elements = nil
}

func (g *Graphics) outX(x float64) float64 { return x + g.originX }

func (g *Graphics) outY(y float64) float64 { return screenHeight - 1 - y - g.originY }

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// DrawMovePlot applies one path command. kind is M, L or P (absolute) or
// m, l or p (relative).
func (g *Graphics) DrawMovePlot(kind byte, x, y float64) error {
	x, y = math.Round(x), math.Round(y)
	relative := kind >= 'a'
	if relative {
		x, y = g.x+x, g.y+y
	}
	abs := kind
	if relative {
		abs = kind - 'a' + 'A'
	}
	if abs != 'M' && abs != 'L' && abs != 'P' {
		return NewBasicError(ErrCodeImproperArgument, "drawMovePlot "+string(kind))
	}

	if len(g.path) == 0 && (relative || abs == 'L') {
		g.path = append(g.path, "M"+num(g.outX(g.x))+" "+num(g.outY(g.y)))
	}
	var cmd string
	if relative {
		dx, dy := x-g.x, y-g.y
		cmd = string(kind) + num(dx) + " " + num(-dy)
	} else {
		c := abs
		if abs == 'P' {
			c = 'M'
		}
		cmd = string(c) + num(g.outX(x)) + " " + num(g.outY(y))
	}
	switch abs {
	case 'L':
		g.pathDraw = true
	case 'P':
		if relative {
			cmd = "m" + cmd[1:]
		}
		cmd += "h1v1h-1v-1"
		g.pathDraw = true
	}
	g.path = append(g.path, cmd)
	g.x, g.y = x, y
	return nil
}

// flushPath turns the open path into an element.
func (g *Graphics) flushPath() {
	if len(g.path) == 0 {
		return
	}
	if g.pathDraw {
		g.elements = append(g.elements, fmt.Sprintf(`<path stroke="%s" d="%s" />`,
			g.pal.color(g.pen), strings.Join(g.path, "")))
	}
	g.path = nil
	g.pathDraw = false
}

// SetPen switches the stroke color. The open path keeps the old color.
func (g *Graphics) SetPen(n int) error {
	if n < 0 || n > 15 {
		return NewBasicError(ErrCodeImproperArgument, "GRAPHICS PEN")
	}
	if n == g.pen {
		return nil
	}
	g.flushPath()
	g.pen = n
	return nil
}

// SetPaper sets the canvas background pen.
func (g *Graphics) SetPaper(n int) error {
	if n < 0 || n > 15 {
		return NewBasicError(ErrCodeImproperArgument, "GRAPHICS PAPER")
	}
	g.paper = n
	return nil
}

// SetOrigin moves the logical origin.
func (g *Graphics) SetOrigin(x, y float64) {
	g.flushPath()
	g.originX, g.originY = math.Round(x), math.Round(y)
	g.x, g.y = 0, 0
}

// Pos returns the logical cursor.
func (g *Graphics) Pos() (float64, float64) { return g.x, g.y }

func (g *Graphics) fillAttr(fill *int) string {
	if fill == nil {
		return `fill="none"`
	}
	return `fill="` + g.pal.color(*fill) + `"`
}

// Rect draws a rectangle between two corners.
func (g *Graphics) Rect(x1, y1, x2, y2 float64, fill *int) {
	g.flushPath()
	left := math.Round(math.Min(x1, x2))
	top := math.Round(math.Max(y1, y2))
	w := math.Round(math.Abs(x2 - x1))
	h := math.Round(math.Abs(y2 - y1))
	g.elements = append(g.elements, fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" stroke="%s" %s />`,
		num(g.outX(left)), num(g.outY(top)), num(w), num(h), g.pal.color(g.pen), g.fillAttr(fill)))
}

// Circle draws a circle around a center.
func (g *Graphics) Circle(cx, cy, r float64, fill *int) {
	g.flushPath()
	g.elements = append(g.elements, fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" stroke="%s" %s />`,
		num(g.outX(math.Round(cx))), num(g.outY(math.Round(cy))), num(math.Round(r)), g.pal.color(g.pen), g.fillAttr(fill)))
}

// Ellipse draws an ellipse around a center.
func (g *Graphics) Ellipse(cx, cy, rx, ry float64, fill *int) {
	g.flushPath()
	g.elements = append(g.elements, fmt.Sprintf(`<ellipse cx="%s" cy="%s" rx="%s" ry="%s" stroke="%s" %s />`,
		num(g.outX(math.Round(cx))), num(g.outY(math.Round(cy))), num(math.Round(rx)), num(math.Round(ry)),
		g.pal.color(g.pen), g.fillAttr(fill)))
}

// Arc draws an elliptical arc from (x, y) to (ex, ey) using SVG arc flags.
func (g *Graphics) Arc(x, y, rx, ry, rot, largeArc, sweep, ex, ey float64, fill *int) {
	g.flushPath()
	g.elements = append(g.elements, fmt.Sprintf(`<path d="M%s %sA%s %s %s %s %s %s %s" stroke="%s" %s />`,
		num(g.outX(math.Round(x))), num(g.outY(math.Round(y))),
		num(math.Round(rx)), num(math.Round(ry)), num(rot), num(largeArc), num(sweep),
		num(g.outX(math.Round(ex))), num(g.outY(math.Round(ey))),
		g.pal.color(g.pen), g.fillAttr(fill)))
}

// Text draws tagged text at the cursor and advances it by one cell per
// character.
func (g *Graphics) Text(s string) {
	g.flushPath()
	g.elements = append(g.elements, fmt.Sprintf(`<text x="%s" y="%s" fill="%s">%s</text>`,
		num(g.outX(g.x)), num(g.outY(g.y)+15), g.pal.color(g.pen), html.EscapeString(s)))
	g.x += float64(8 * runeLen(s))
}

// HasElements reports whether a flush would produce output.
func (g *Graphics) HasElements() bool {
	return len(g.elements) > 0 || (len(g.path) > 0 && g.pathDraw)
}

// Flush returns the buffered elements wrapped in an SVG canvas and clears
// the buffer. With nothing buffered it returns "".
func (g *Graphics) Flush() string {
	g.flushPath()
	if len(g.elements) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="optimizeSpeed" stroke-width="1" style="background-color: %s">`,
		screenWidth, screenHeight, screenWidth, screenHeight, g.pal.color(g.paper))
	b.WriteByte('\n')
	for _, e := range g.elements {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("</svg>\n")
	g.elements = nil
	return b.String()
}

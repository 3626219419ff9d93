package vm

// cpcColors are the 32 hardware colors. 27 to 31 repeat earlier entries.
var cpcColors = [32]string{
	"#000000", "#000080", "#0000FF", "#800000", "#800080", "#8000FF", "#FF0000", "#FF0080",
	"#FF00FF", "#008000", "#008080", "#0080FF", "#808000", "#808080", "#8080FF", "#FF8000",
	"#FF8080", "#FF80FF", "#00FF00", "#00FF80", "#00FFFF", "#80FF00", "#80FF80", "#80FFFF",
	"#FFFF00", "#FFFF80", "#FFFFFF", "#808080", "#FF00FF", "#FFFF80", "#000080", "#00FF80",
}

// defaultInks maps pens 0-15 and the border (16) to hardware colors.
var defaultInks = [17]int{1, 24, 20, 6, 26, 0, 2, 8, 10, 12, 14, 16, 18, 22, 1, 16, 1}

const borderPen = 16

// palette is the per-program ink table.
type palette struct {
	inks [17]int
}

func newPalette() *palette {
	return &palette{inks: defaultInks}
}

func (p *palette) reset() { p.inks = defaultInks }

// setInk assigns a hardware color to a pen.
func (p *palette) setInk(pen, color int) error {
	if pen < 0 || pen > borderPen || color < 0 || color >= len(cpcColors) {
		return NewBasicError(ErrCodeImproperArgument, "INK")
	}
	p.inks[pen] = color
	return nil
}

// color returns the CSS color of a pen.
func (p *palette) color(pen int) string {
	if pen < 0 || pen > borderPen {
		pen = 1
	}
	return cpcColors[p.inks[pen]]
}

package compiler

import (
	"fmt"
	"strings"
)

// lineFacts is what the analysis pass learns about one line.
type lineFacts struct {
	label    string
	suspends bool     // contains a direct suspending call
	returns  bool     // contains a RETURN outside IF and loops
	calls    []string // GOSUB and ON GOSUB targets
	fnCalls  []string
}

// fnFacts is what the analysis pass learns about one DEF FN body.
type fnFacts struct {
	suspends bool
	fnCalls  []string
}

// lineOut is the generated code of one line.
type lineOut struct {
	index       int // 0-based physical line
	code        string
	depthBefore int
	depthAfter  int
	facts       lineFacts
}

// generator holds the semantic actions for one pass. With a nil lowering
// table it runs in analysis mode.
type generator struct {
	st    *CodeGenState
	low   *lowering
	facts *lineFacts
	fn    *fnFacts
	fns   map[string]*fnFacts
	unit  string
	ifs   int
	err   error
}

func newGenerator(low *lowering) *generator {
	return &generator{
		st:  NewCodeGenState(),
		low: low,
		fns: make(map[string]*fnFacts),
	}
}

func (g *generator) failf(format string, args ...interface{}) {
	if g.err == nil {
		g.err = fmt.Errorf(format, args...)
	}
}

func (g *generator) noteSuspend() {
	if g.fn != nil {
		g.fn.suspends = true
		return
	}
	if g.facts != nil {
		g.facts.suspends = true
	}
}

func (g *generator) noteFnCall(name string) {
	if g.fn != nil {
		g.fn.fnCalls = append(g.fn.fnCalls, name)
		return
	}
	if g.facts != nil {
		g.facts.fnCalls = append(g.facts.fnCalls, name)
	}
}

func (g *generator) noteCall(label string) {
	g.st.useLabel(useGosub, label)
	if g.facts != nil && g.fn == nil {
		g.facts.calls = append(g.facts.calls, label)
	}
}

func (g *generator) isAsync(unit string) bool {
	return g.low != nil && g.low.async[unit]
}

// ---------------------------------------------------------------------------
// Lines
// ---------------------------------------------------------------------------

func (g *generator) line(ml MatchedLine[*Line]) lineOut {
	l := ml.Node
	out := lineOut{index: ml.Index, depthBefore: g.st.indent}
	g.facts = &out.facts
	g.facts.label = l.Label

	if l.Label != "" {
		if err := g.st.defineLabel(l.Label, ml.Index); err != nil {
			g.failf("line %d: %v", ml.Index+1, err)
		}
		// Only the label of the line in effect anchors DATA. A RESTORE
		// label with no DATA before the next label stays at index 0.
		g.st.anchorLabel = ""
		if g.low != nil && g.low.restoreLabels[l.Label] && !g.st.anchored[l.Label] {
			g.st.anchorLabel = l.Label
		}
	}

	code := g.statements(l.Stmts)
	if l.Comment != "" {
		code = joinCode(code, "//"+commentText(l.Comment))
	}
	out.code = code
	out.depthAfter = g.st.indent
	g.facts = nil
	return out
}

func (g *generator) statements(list []*Statement) string {
	var parts []string
	for _, s := range list {
		if s == nil {
			continue
		}
		if code := g.statement(s); code != "" {
			parts = append(parts, code)
		}
	}
	return strings.Join(parts, " ")
}

func joinCode(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// commentText strips the REM keyword or apostrophe from a comment token.
func commentText(tok string) string {
	if strings.HasPrefix(tok, "'") {
		return tok[1:]
	}
	if len(tok) >= 3 && strings.EqualFold(tok[:3], "REM") {
		return tok[3:]
	}
	return tok
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (g *generator) statement(s *Statement) string {
	switch {
	case s.Rem != nil:
		text := commentText(s.Rem.Text)
		if g.ifs > 0 {
			return "/*" + strings.ReplaceAll(text, "*/", "* /") + " */"
		}
		return "//" + text
	case s.Print != nil:
		return g.print(s.Print)
	case s.If != nil:
		return g.ifStmt(s.If)
	case s.For != nil:
		return g.forStmt(s.For)
	case s.Next != nil:
		return g.next(s.Next)
	case s.While != nil:
		cond := g.expr(s.While.Cond)
		g.st.pushBlock("while")
		return "while (" + cond.text + ") {"
	case s.Wend:
		if err := g.st.popBlock("while"); err != nil {
			g.failf("%v", err)
		}
		return "}"
	case s.Gosub != nil:
		return g.gosub(s.Gosub.Label) + ";"
	case s.OnGosub != nil:
		return g.onGosub(s.OnGosub)
	case s.Return:
		if g.ifs == 0 && g.st.depth() == 0 && g.facts != nil {
			g.facts.returns = true
		}
		return "return;"
	case s.Timer != nil:
		return g.timer(s.Timer)
	case s.Input != nil:
		return g.input(s.Input)
	case s.Read != nil:
		return g.read(s.Read)
	case s.Data != nil:
		return g.data(s.Data)
	case s.Restore != nil:
		if s.Restore.Label == "" {
			return "o.restore();"
		}
		g.st.useLabel(useRestore, s.Restore.Label)
		return "o.restore(" + jsString(s.Restore.Label) + ");"
	case s.Dim != nil:
		return g.dim(s.Dim)
	case s.Erase != nil:
		return g.erase(s.Erase)
	case s.DefFn != nil:
		return g.defFn(s.DefFn)
	case s.DefType != nil:
		return ""
	case s.Cls:
		return "o.cls();"
	case s.Mode != nil:
		return g.prim("mode", s.Mode)
	case s.Ink != nil:
		return g.prim("ink", s.Ink.Pen, s.Ink.Color, s.Ink.Color2)
	case s.Color != nil:
		return g.prim(strings.ToLower(s.Color.Kind), s.Color.Value)
	case s.Border != nil:
		return g.prim("border", s.Border.Color, s.Border.Color2)
	case s.Graphics != nil:
		if strings.EqualFold(s.Graphics.Kind, "PEN") {
			return g.prim("graphicsPen", s.Graphics.Value)
		}
		return g.prim("graphicsPaper", s.Graphics.Value)
	case s.MovePlot != nil:
		return g.movePlot(s.MovePlot)
	case s.Origin != nil:
		return g.prim("origin", s.Origin.X, s.Origin.Y)
	case s.TagOff:
		return "o.tag(false);"
	case s.Tag:
		return "o.tag(true);"
	case s.Frame:
		g.noteSuspend()
		return "await o.frame();"
	case s.End:
		if g.unit == "" {
			return "return;"
		}
		return "o.end();"
	case s.Stop:
		return "o.stop();"
	case s.Deg:
		g.st.isDeg = true
		return ""
	case s.Rad:
		g.st.isDeg = false
		return ""
	case s.Randomize != nil:
		return g.prim("randomize", s.Randomize.Seed)
	case s.Error != nil:
		return g.prim("error", s.Error)
	case s.Zone != nil:
		return g.prim("zone", s.Zone)
	case s.KeyDef != nil:
		return "o.keyDef([" + joinArgs(g.exprs(s.KeyDef.Args)) + "]);"
	case s.ClearInput:
		return "o.clearInput();"
	case s.Rsx != nil:
		return g.rsx(s.Rsx)
	case s.MidAssign != nil:
		return g.midAssign(s.MidAssign)
	case s.Assign != nil:
		target := g.variable(s.Assign.Target)
		value := g.expr(s.Assign.Value)
		return target.text + " = " + value.text + ";"
	}
	g.failf("unsupported statement")
	return ""
}

// prim emits a call of a runtime primitive. Nil arguments are dropped.
func (g *generator) prim(name string, args ...*Expr) string {
	var list []jsExpr
	for _, a := range args {
		if a != nil {
			list = append(list, g.expr(a))
		}
	}
	return "o." + name + "(" + joinArgs(list) + ");"
}

func (g *generator) print(p *PrintStmt) string {
	if p.Stream != nil {
		g.expr(p.Stream)
	}
	var args []string
	newline := true
	if u := p.Using; u != nil {
		fmtExpr := g.expr(u.Format)
		vals := g.exprs(u.Args)
		args = append(args, "o.using("+fmtExpr.text+", ["+joinArgs(vals)+"])")
		newline = u.Trail == ""
	} else {
		for _, it := range p.Items {
			newline = true
			switch {
			case it.Sep == ";":
				newline = false
			case it.Sep == ",":
				args = append(args, "{zone: 1}")
				newline = false
			case it.Spc != nil:
				args = append(args, "{spc: "+g.expr(it.Spc).text+"}")
			case it.Tab != nil:
				args = append(args, "{tab: "+g.expr(it.Tab).text+"}")
			case it.Expr != nil:
				args = append(args, g.expr(it.Expr).text)
			}
		}
	}
	if newline {
		args = append(args, `"\n"`)
	}
	if len(args) == 0 {
		return ""
	}
	return "o.print(" + strings.Join(args, ", ") + ");"
}

func (g *generator) ifStmt(s *IfStmt) string {
	cond := g.expr(s.Cond)
	depth := g.st.depth()
	g.ifs++
	then := g.statements(s.Then)
	var els string
	if len(s.Else) > 0 {
		els = g.statements(s.Else)
	}
	g.ifs--
	if g.st.depth() != depth {
		g.failf("unbalanced FOR/WHILE inside IF")
	}

	var b strings.Builder
	b.WriteString("if (" + cond.text + ") {")
	if then != "" {
		b.WriteString(" " + then)
	}
	b.WriteString(" }")
	if len(s.Else) > 0 {
		b.WriteString(" else {")
		if els != "" {
			b.WriteString(" " + els)
		}
		b.WriteString(" }")
	}
	return b.String()
}

func (g *generator) forStmt(s *ForStmt) string {
	v := g.variable(&Variable{Name: s.Var})
	start := g.expr(s.Start)
	end := g.expr(s.End)

	var cond, incr string
	switch {
	case s.Step == nil:
		cond = v.text + " <= " + operand(end, precRel, true)
		incr = v.text + "++"
	default:
		step := g.expr(s.Step)
		incr = v.text + " += " + step.text
		if n, ok := constNumber(s.Step); ok {
			if n < 0 {
				cond = v.text + " >= " + operand(end, precRel, true)
			} else {
				cond = v.text + " <= " + operand(end, precRel, true)
			}
		} else {
			cond = operand(step, precRel, false) + " >= 0 ? " +
				v.text + " <= " + operand(end, precRel, true) + " : " +
				v.text + " >= " + operand(end, precRel, true)
		}
	}
	g.st.pushBlock("for")
	return "for (" + v.text + " = " + start.text + "; " + cond + "; " + incr + ") {"
}

func (g *generator) next(s *NextStmt) string {
	n := len(s.Vars)
	if n == 0 {
		n = 1
	}
	closers := make([]string, n)
	for i := range closers {
		if err := g.st.popBlock("for"); err != nil {
			g.failf("%v", err)
		}
		closers[i] = "}"
	}
	return strings.Join(closers, " ")
}

func (g *generator) gosub(label string) string {
	g.noteCall(label)
	name := "_" + label + "()"
	if g.isAsync(label) {
		return "await " + name
	}
	return name
}

func (g *generator) onGosub(s *OnGosubStmt) string {
	idx := g.expr(s.Index)
	var b strings.Builder
	b.WriteString("switch (" + idx.text + ") {")
	for i, l := range s.Labels {
		fmt.Fprintf(&b, " case %d: %s; break;", i+1, g.gosub(l))
	}
	b.WriteString(" }")
	return b.String()
}

func (g *generator) timer(s *TimerStmt) string {
	g.st.useLabel(useGosub, s.Label)
	t := g.expr(s.Time)
	id := atom("0")
	if s.Timer != nil {
		id = g.expr(s.Timer)
	}
	kind := strings.ToLower(s.Kind)
	return "o." + kind + "(" + t.text + ", " + id.text + ", _" + s.Label + ");"
}

func (g *generator) input(s *InputStmt) string {
	if s.Stream != nil {
		g.expr(s.Stream)
	}
	prompt := "? "
	if s.Prompt != nil {
		prompt = unquote(s.Prompt.Text)
		if s.Prompt.Sep == ";" {
			prompt += "? "
		}
	}
	var types strings.Builder
	var assigns []string
	for i, v := range s.Vars {
		target := g.variable(v)
		switch {
		case s.Line:
			types.WriteByte('l')
		case target.isStr:
			types.WriteByte('s')
		default:
			types.WriteByte('n')
		}
		assigns = append(assigns, fmt.Sprintf("%s = _i[%d];", target.text, i))
	}
	g.noteSuspend()
	return "{ const _i = await o.input(" + jsString(prompt) + ", " + jsString(types.String()) + "); " +
		strings.Join(assigns, " ") + " }"
}

func (g *generator) read(s *ReadStmt) string {
	parts := make([]string, len(s.Vars))
	for i, v := range s.Vars {
		target := g.variable(v)
		fn := "o.read()"
		if target.isStr {
			fn = "o.read$()"
		}
		parts[i] = target.text + " = " + fn + ";"
	}
	return strings.Join(parts, " ")
}

func (g *generator) data(s *DataStmt) string {
	items := make([]string, len(s.Items))
	for i, it := range s.Items {
		switch {
		case it.Str != nil:
			items[i] = jsString(unquote(*it.Str))
		case it.Num != nil:
			f, err := foldNumber(strings.TrimPrefix(*it.Num, "+"))
			if err != nil {
				if n, ok := negated(*it.Num); ok {
					f, err = n, nil
				}
			}
			if err != nil {
				items[i] = jsString(*it.Num)
			} else {
				items[i] = formatJSNumber(f)
			}
		default:
			items[i] = jsString(strings.Join(it.Raw, " "))
		}
	}
	g.st.addData(items)
	return ""
}

func negated(lit string) (float64, bool) {
	if !strings.HasPrefix(lit, "-") {
		return 0, false
	}
	f, err := foldNumber(lit[1:])
	if err != nil {
		return 0, false
	}
	return -f, true
}

func (g *generator) dim(s *DimStmt) string {
	parts := make([]string, len(s.Items))
	for i, it := range s.Items {
		a := g.st.useArray(arrayName(it.Name), len(it.Dims), isStringName(it.Name))
		a.dimmed = true
		parts[i] = a.name + " = o.dim([" + joinArgs(g.exprs(it.Dims)) + "], " + defaultValue(a.isStr) + ");"
	}
	return strings.Join(parts, " ")
}

func (g *generator) erase(s *EraseStmt) string {
	parts := make([]string, len(s.Names))
	for i, n := range s.Names {
		a := g.st.useArray(arrayName(n), 1, isStringName(n))
		parts[i] = a.name + " = " + autoDim(a) + ";"
	}
	return strings.Join(parts, " ")
}

func defaultValue(isStr bool) string {
	if isStr {
		return `""`
	}
	return "0"
}

// autoDim is the initializer of an array used without DIM: 11 elements
// (0 to 10) per dimension.
func autoDim(a *arrayInfo) string {
	dims := make([]string, a.dims)
	for i := range dims {
		dims[i] = "10"
	}
	return "o.dim([" + strings.Join(dims, ", ") + "], " + defaultValue(a.isStr) + ")"
}

func (g *generator) defFn(s *DefFnStmt) string {
	name := fnName(s.Name)
	g.st.useFn(name)

	params := make([]string, len(s.Params))
	g.st.defParams = make(map[string]bool, len(params))
	for i, p := range s.Params {
		params[i] = scalarName(p)
		g.st.defParams[params[i]] = true
	}

	facts := &fnFacts{}
	g.fns[name] = facts
	outer := g.fn
	g.fn = facts
	g.st.isDefContext = true
	body := g.expr(s.Body)
	g.st.isDefContext = false
	g.st.defParams = nil
	g.fn = outer

	prefix := ""
	if g.isAsync("fn:" + name) {
		prefix = "async "
	}
	return name + " = " + prefix + "(" + strings.Join(params, ", ") + ") => " + body.text + ";"
}

func (g *generator) movePlot(s *MovePlotStmt) string {
	kinds := map[string]string{
		"MOVE": "M", "MOVER": "m", "DRAW": "L", "DRAWR": "l", "PLOT": "P", "PLOTR": "p",
	}
	args := []jsExpr{strAtom(jsString(kinds[strings.ToUpper(s.Kind)])), g.expr(s.X), g.expr(s.Y)}
	if s.Pen != nil {
		args = append(args, g.expr(s.Pen))
	}
	return "o.drawMovePlot(" + joinArgs(args) + ");"
}

// suspendingRsx are RSX commands that wait for the host.
var suspendingRsx = map[string]bool{"say": true, "geolocation": true}

func (g *generator) rsx(s *RsxStmt) string {
	name := strings.ToLower(strings.TrimPrefix(s.Name, "|"))
	var args []jsExpr
	var out *jsExpr
	for _, a := range s.Args {
		if a.Out != nil {
			v := g.variable(a.Out)
			if out == nil {
				out = &v
			}
			args = append(args, v)
			continue
		}
		args = append(args, g.expr(a.Expr))
	}
	callText := "o.rsx(" + jsString(name) + ", [" + joinArgs(args) + "])"
	if suspendingRsx[name] {
		g.noteSuspend()
		callText = "await " + callText
	}
	if out != nil {
		return out.text + " = " + callText + ";"
	}
	return callText + ";"
}

func (g *generator) midAssign(s *MidAssignStmt) string {
	g.st.useInstr("_midAssign")
	target := g.variable(s.Target)
	n := atom("undefined")
	if s.Len != nil {
		n = g.expr(s.Len)
	}
	return target.text + " = _midAssign(" + joinArgs([]jsExpr{target, g.expr(s.Pos), n, g.expr(s.Value)}) + ");"
}

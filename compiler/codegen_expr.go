package compiler

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// JS operator precedence levels used to decide where parentheses go.
const (
	precBitOr  = 5
	precBitXor = 6
	precBitAnd = 7
	precEq     = 8
	precRel    = 9
	precAdd    = 11
	precMul    = 12
	precUnary  = 14
	precAtom   = 100
)

// jsExpr is generated expression text with its outermost precedence.
type jsExpr struct {
	text  string
	prec  int
	isStr bool
	num   *float64
}

func atom(text string) jsExpr { return jsExpr{text: text, prec: precAtom} }

func strAtom(text string) jsExpr { return jsExpr{text: text, prec: precAtom, isStr: true} }

func numExpr(f float64) jsExpr {
	e := jsExpr{text: formatJSNumber(f), prec: precAtom, num: &f}
	if f < 0 || (f == 0 && math.Signbit(f)) {
		e.prec = precUnary
	}
	return e
}

// operand renders e as an operand of an operator with precedence prec.
// Right operands also get parentheses at equal precedence.
func operand(e jsExpr, prec int, right bool) string {
	if e.prec < prec || (right && e.prec == prec) {
		return "(" + e.text + ")"
	}
	return e.text
}

func binary(l jsExpr, op string, r jsExpr, prec int) jsExpr {
	return jsExpr{
		text:  operand(l, prec, false) + " " + op + " " + operand(r, prec, true),
		prec:  prec,
		isStr: op == "+" && (l.isStr || r.isStr),
	}
}

func unary(op string, e jsExpr) jsExpr {
	text := operand(e, precUnary, false)
	if strings.HasPrefix(text, "-") || strings.HasPrefix(text, "+") || strings.HasPrefix(text, "~") {
		text = "(" + text + ")"
	}
	return jsExpr{text: op + text, prec: precUnary}
}

// member renders e.name, wrapping e unless it is already an atom.
func member(e jsExpr, name string) string {
	return operand(e, precAtom, false) + "." + name
}

func call(fn string, args ...jsExpr) jsExpr {
	return atom(fn + "(" + joinArgs(args) + ")")
}

func joinArgs(args []jsExpr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.text
	}
	return strings.Join(parts, ", ")
}

func (g *generator) expr(e *Expr) jsExpr {
	out := g.orExpr(e.Left)
	for _, r := range e.Xors {
		out = binary(out, "^", g.orExpr(r), precBitXor)
	}
	return out
}

func (g *generator) orExpr(e *OrExpr) jsExpr {
	out := g.andExpr(e.Left)
	for _, r := range e.Ors {
		out = binary(out, "|", g.andExpr(r), precBitOr)
	}
	return out
}

func (g *generator) andExpr(e *AndExpr) jsExpr {
	out := g.notExpr(e.Left)
	for _, r := range e.Ands {
		out = binary(out, "&", g.notExpr(r), precBitAnd)
	}
	return out
}

func (g *generator) notExpr(e *NotExpr) jsExpr {
	out := g.cmpExpr(e.Cmp)
	for range e.Nots {
		out = unary("~", out)
	}
	return out
}

var cmpOps = map[string]struct {
	js   string
	prec int
}{
	"=":  {"===", precEq},
	"<>": {"!==", precEq},
	"<":  {"<", precRel},
	"<=": {"<=", precRel},
	">":  {">", precRel},
	">=": {">=", precRel},
}

// cmpExpr maps comparisons to -1/0 with a conditional. Negating the
// boolean would give -0 for false.
func (g *generator) cmpExpr(e *CmpExpr) jsExpr {
	out := g.addExpr(e.Left)
	for _, op := range e.Ops {
		o := cmpOps[op.Op]
		inner := binary(out, o.js, g.addExpr(op.Right), o.prec)
		out = jsExpr{text: "(" + inner.text + " ? -1 : 0)", prec: precAtom}
	}
	return out
}

func (g *generator) addExpr(e *AddExpr) jsExpr {
	out := g.modExpr(e.Left)
	for _, op := range e.Ops {
		out = binary(out, op.Op, g.modExpr(op.Right), precAdd)
	}
	return out
}

func (g *generator) modExpr(e *ModExpr) jsExpr {
	out := g.idivExpr(e.Left)
	for _, r := range e.Mods {
		out = binary(out, "%", g.idivExpr(r), precMul)
	}
	return out
}

func (g *generator) idivExpr(e *IDivExpr) jsExpr {
	out := g.mulExpr(e.Left)
	for _, r := range e.Divs {
		out = call("Math.trunc", binary(out, "/", g.mulExpr(r), precMul))
	}
	return out
}

func (g *generator) mulExpr(e *MulExpr) jsExpr {
	out := g.unaryExpr(e.Left)
	for _, op := range e.Ops {
		out = binary(out, op.Op, g.unaryExpr(op.Right), precMul)
	}
	return out
}

func (g *generator) unaryExpr(e *Unary) jsExpr {
	return applySigns(e.Signs, g.power(e.Power))
}

// applySigns folds a run of unary signs. Negated literals stay literals.
func applySigns(signs []string, e jsExpr) jsExpr {
	neg := false
	for _, s := range signs {
		if s == "-" {
			neg = !neg
		}
	}
	if !neg {
		return e
	}
	if e.num != nil {
		return numExpr(-*e.num)
	}
	return unary("-", e)
}

func (g *generator) power(e *Power) jsExpr {
	out := g.primary(e.Base)
	for _, p := range e.Exps {
		exp := applySigns(p.Signs, g.primary(p.Base))
		out = call("Math.pow", out, exp)
	}
	return out
}

func (g *generator) primary(p *Primary) jsExpr {
	switch {
	case p.Number != nil:
		f, err := foldNumber(*p.Number)
		if err != nil {
			g.failf("invalid number %s", *p.Number)
			return atom("0")
		}
		return numExpr(f)
	case p.String != nil:
		return strAtom(jsString(unquote(*p.String)))
	case p.FnCall != nil:
		return g.fnCall(p.FnCall)
	case p.Call != nil:
		return g.builtin(p.Call)
	case p.Var != nil:
		return g.variable(p.Var)
	case p.Sub != nil:
		return g.expr(p.Sub)
	}
	g.failf("empty expression")
	return atom("0")
}

func (g *generator) exprs(list []*Expr) []jsExpr {
	out := make([]jsExpr, len(list))
	for i, e := range list {
		out[i] = g.expr(e)
	}
	return out
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

// jsReserved are names that cannot be used as plain identifiers in the
// generated script. "o" is the runtime object.
var jsReserved = map[string]bool{
	"arguments": true, "await": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true,
	"default": true, "delete": true, "do": true, "else": true, "enum": true,
	"eval": true, "export": true, "extends": true, "false": true,
	"finally": true, "for": true, "function": true, "if": true,
	"implements": true, "import": true, "in": true, "instanceof": true,
	"interface": true, "let": true, "new": true, "null": true, "o": true,
	"package": true, "private": true, "protected": true, "public": true,
	"return": true, "static": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "try": true, "typeof": true,
	"undefined": true, "var": true, "void": true, "while": true, "with": true,
	"yield": true, "Infinity": true, "NaN": true, "Math": true, "String": true,
}

// scalarName converts a BASIC identifier to a JS identifier.
func scalarName(raw string) string {
	n := strings.ToLower(raw)
	switch {
	case strings.HasSuffix(n, "%"):
		n = n[:len(n)-1] + "I"
	case strings.HasSuffix(n, "!"):
		n = n[:len(n)-1] + "R"
	}
	n = strings.ReplaceAll(n, ".", "_")
	if jsReserved[n] {
		n = "_" + n
	}
	return n
}

func arrayName(raw string) string {
	return strings.TrimPrefix(scalarName(raw), "_") + "A"
}

func isStringName(raw string) bool { return strings.HasSuffix(raw, "$") }

// fnName converts "FNname" or "FN name" to the JS function name.
func fnName(raw string) string {
	n := strings.TrimSpace(raw[2:])
	return "fn" + strings.TrimPrefix(scalarName(n), "_")
}

func (g *generator) variable(v *Variable) jsExpr {
	str := isStringName(v.Name)
	if len(v.Index) == 0 {
		name := scalarName(v.Name)
		if g.st.isDefContext && g.st.defParams[name] {
			return jsExpr{text: name, prec: precAtom, isStr: str}
		}
		g.st.useVariable(name)
		return jsExpr{text: name, prec: precAtom, isStr: str}
	}
	a := g.st.useArray(arrayName(v.Name), len(v.Index), str)
	var b strings.Builder
	b.WriteString(a.name)
	for _, ix := range g.exprs(v.Index) {
		b.WriteString("[" + ix.text + "]")
	}
	return jsExpr{text: b.String(), prec: precAtom, isStr: str}
}

func (g *generator) fnCall(c *FnCall) jsExpr {
	name := fnName(c.Name)
	g.st.useFn(name)
	g.noteFnCall(name)
	e := call(name, g.exprs(c.Args)...)
	e.isStr = isStringName(c.Name)
	if g.isAsync("fn:" + name) {
		return jsExpr{text: "await " + e.text, prec: precUnary, isStr: e.isStr}
	}
	return e
}

// ---------------------------------------------------------------------------
// Built-in functions
// ---------------------------------------------------------------------------

type arity struct{ min, max int }

var builtinArity = map[string]arity{
	"ABS": {1, 1}, "ASC": {1, 1}, "ATN": {1, 1}, "BIN$": {1, 2}, "CHR$": {1, 1},
	"CINT": {1, 1}, "COS": {1, 1}, "DEC$": {2, 2}, "EXP": {1, 1}, "FIX": {1, 1},
	"HEX$": {1, 2}, "INKEY$": {0, 0}, "INSTR": {2, 3}, "INT": {1, 1},
	"LEFT$": {2, 2}, "LEN": {1, 1}, "LOG": {1, 1}, "LOG10": {1, 1},
	"LOWER$": {1, 1}, "MAX": {1, 32}, "MID$": {2, 3}, "MIN": {1, 32},
	"PI": {0, 0}, "POS": {0, 1}, "REMAIN": {1, 1}, "RIGHT$": {2, 2},
	"RND": {0, 1}, "ROUND": {1, 2}, "SGN": {1, 1}, "SIN": {1, 1},
	"SPACE$": {1, 1}, "SQR": {1, 1}, "STR$": {1, 1}, "STRING$": {2, 2},
	"TAN": {1, 1}, "TIME": {0, 0}, "UPPER$": {1, 1}, "VAL": {1, 1},
	"VPOS": {0, 1}, "XPOS": {0, 0}, "YPOS": {0, 0},
}

var mathFuncs = map[string]string{
	"ABS": "Math.abs", "EXP": "Math.exp", "FIX": "Math.trunc", "INT": "Math.floor",
	"LOG": "Math.log", "LOG10": "Math.log10", "MAX": "Math.max", "MIN": "Math.min",
	"SGN": "Math.sign", "SQR": "Math.sqrt",
}

// snippetFuncs are built-ins implemented by a library snippet of the same
// name in the generated script.
var snippetFuncs = map[string]string{
	"ASC": "_asc", "BIN$": "_bin", "CINT": "_cint", "HEX$": "_hex",
	"LEFT$": "_left", "MID$": "_mid", "RIGHT$": "_right", "ROUND": "_round",
	"SPACE$": "_space", "STRING$": "_string", "VAL": "_val",
}

func (g *generator) builtin(c *FuncCall) jsExpr {
	name := strings.ToUpper(c.Name)
	ar, ok := builtinArity[name]
	if !ok {
		g.failf("unknown function %s", c.Name)
		return atom("0")
	}
	if n := len(c.Args); n < ar.min || n > ar.max {
		g.failf("%s: wrong number of arguments: got %d, want %d to %d", name, n, ar.min, ar.max)
		return atom("0")
	}
	args := g.exprs(c.Args)
	str := strings.HasSuffix(name, "$")

	if fn, ok := mathFuncs[name]; ok {
		return call(fn, args...)
	}
	if fn, ok := snippetFuncs[name]; ok {
		g.st.useInstr(fn)
		e := call(fn, args...)
		e.isStr = str
		return e
	}

	switch name {
	case "SIN", "COS", "TAN":
		x := args[0]
		if g.st.isDeg {
			x = binary(binary(x, "*", atom("Math.PI"), precMul), "/", numExpr(180), precMul)
		}
		return call("Math."+strings.ToLower(name), x)
	case "ATN":
		r := call("Math.atan", args[0])
		if g.st.isDeg {
			return binary(binary(r, "*", numExpr(180), precMul), "/", atom("Math.PI"), precMul)
		}
		return r
	case "CHR$":
		return strAtom("String.fromCharCode(" + args[0].text + ")")
	case "LEN":
		return atom(member(args[0], "length"))
	case "LOWER$":
		return strAtom(member(args[0], "toLowerCase()"))
	case "UPPER$":
		return strAtom(member(args[0], "toUpperCase()"))
	case "PI":
		return atom("Math.PI")
	case "INSTR":
		g.st.useInstr("_instr")
		if len(args) == 3 {
			return call("_instr", args[1], args[2], args[0])
		}
		return call("_instr", args...)
	case "INKEY$":
		g.noteSuspend()
		return jsExpr{text: "await o.inkey$()", prec: precUnary, isStr: true}
	case "DEC$":
		return strAtom("o.dec$(" + joinArgs(args) + ")")
	case "STR$":
		return strAtom("o.str$(" + joinArgs(args) + ")")
	case "POS", "VPOS":
		return atom("o." + strings.ToLower(name) + "()")
	case "XPOS", "YPOS", "TIME":
		return atom("o." + strings.ToLower(name) + "()")
	case "REMAIN", "RND":
		return call("o."+strings.ToLower(name), args...)
	}
	g.failf("function %s is not supported", name)
	return atom("0")
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// foldNumber converts a numeric literal, including &H hex and &X binary,
// to its value.
func foldNumber(lit string) (float64, error) {
	upper := strings.ToUpper(lit)
	switch {
	case strings.HasPrefix(upper, "&H"):
		n, err := strconv.ParseUint(lit[2:], 16, 64)
		return float64(n), err
	case strings.HasPrefix(upper, "&X"):
		n, err := strconv.ParseUint(lit[2:], 2, 64)
		return float64(n), err
	}
	return strconv.ParseFloat(lit, 64)
}

// formatJSNumber prints f as a canonical JS number literal.
func formatJSNumber(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// unquote strips the quotes of a string token. The closing quote may be
// missing at the end of a line.
func unquote(tok string) string {
	s := strings.TrimPrefix(tok, `"`)
	return strings.TrimSuffix(s, `"`)
}

// jsString renders s as a double-quoted JS string literal.
func jsString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x2028 || r == 0x2029 {
				b.WriteString(`\u`)
				h := strconv.FormatInt(int64(r), 16)
				b.WriteString(strings.Repeat("0", 4-len(h)) + h)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// constNumber returns the value of e if it is a (signed) numeric literal.
func constNumber(e *Expr) (float64, bool) {
	if e == nil || len(e.Xors) > 0 || len(e.Left.Ors) > 0 {
		return 0, false
	}
	a := e.Left.Left
	if len(a.Ands) > 0 || len(a.Left.Nots) > 0 {
		return 0, false
	}
	c := a.Left.Cmp
	if len(c.Ops) > 0 || len(c.Left.Ops) > 0 {
		return 0, false
	}
	m := c.Left.Left
	if len(m.Mods) > 0 || len(m.Left.Divs) > 0 || len(m.Left.Left.Ops) > 0 {
		return 0, false
	}
	u := m.Left.Left.Left
	if len(u.Power.Exps) > 0 || u.Power.Base.Number == nil {
		return 0, false
	}
	f, err := foldNumber(*u.Power.Base.Number)
	if err != nil {
		return 0, false
	}
	e2 := applySigns(u.Signs, numExpr(f))
	return *e2.num, true
}

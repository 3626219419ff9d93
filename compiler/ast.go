package compiler

import "github.com/alecthomas/participle/v2/lexer"

// ---------------------------------------------------------------------------
// AST: grammar rules for one BASIC line. The struct tags are the grammar.
// ---------------------------------------------------------------------------

// Line is a single source line: an optional line number (the label)
// followed by colon-separated statements and an optional trailing comment.
type Line struct {
	Pos     lexer.Position
	Label   string       `@Number?`
	Stmts   []*Statement `@@? ( ":" @@? )*`
	Comment string       `@Comment?`
}

// Statement is the union of all statement forms. Exactly one field is set.
type Statement struct {
	Pos lexer.Position

	Rem        *RemStmt       `  @@`
	Print      *PrintStmt     `| @@`
	If         *IfStmt        `| @@`
	For        *ForStmt       `| @@`
	Next       *NextStmt      `| @@`
	While      *WhileStmt     `| @@`
	Wend       bool           `| @"WEND"`
	Gosub      *GosubStmt     `| @@`
	OnGosub    *OnGosubStmt   `| @@`
	Return     bool           `| @"RETURN"`
	Timer      *TimerStmt     `| @@`
	Input      *InputStmt     `| @@`
	Read       *ReadStmt      `| @@`
	Data       *DataStmt      `| @@`
	Restore    *RestoreStmt   `| @@`
	Dim        *DimStmt       `| @@`
	Erase      *EraseStmt     `| @@`
	DefFn      *DefFnStmt     `| @@`
	DefType    *DefTypeStmt   `| @@`
	Cls        bool           `| @"CLS"`
	Mode       *Expr          `| "MODE" @@`
	Ink        *InkStmt       `| @@`
	Color      *ColorStmt     `| @@`
	Border     *BorderStmt    `| @@`
	Graphics   *GraphicsStmt  `| @@`
	MovePlot   *MovePlotStmt  `| @@`
	Origin     *OriginStmt    `| @@`
	TagOff     bool           `| @"TAGOFF"`
	Tag        bool           `| @"TAG"`
	Frame      bool           `| @"FRAME"`
	End        bool           `| @"END"`
	Stop       bool           `| @"STOP"`
	Deg        bool           `| @"DEG"`
	Rad        bool           `| @"RAD"`
	Randomize  *RandomizeStmt `| @@`
	Error      *Expr          `| "ERROR" @@`
	Zone       *Expr          `| "ZONE" @@`
	KeyDef     *KeyDefStmt    `| @@`
	ClearInput bool           `| @( "CLEAR" "INPUT" )`
	Rsx        *RsxStmt       `| @@`
	MidAssign  *MidAssignStmt `| @@`
	Assign     *AssignStmt    `| @@`
}

// RemStmt is a REM or apostrophe comment.
type RemStmt struct {
	Text string `@Comment`
}

// PrintStmt is PRINT (or ?) with an optional stream and either a USING
// clause or a list of items.
type PrintStmt struct {
	Pos    lexer.Position
	Kw     string       `@( "PRINT" | "?" )`
	Stream *Expr        `( "#" @@ "," )?`
	Using  *UsingClause `@@?`
	Items  []*PrintItem `@@*`
}

// UsingClause is PRINT USING format; values.
type UsingClause struct {
	Format *Expr   `"USING" @@ ( ";" | "," )`
	Args   []*Expr `@@ ( ( ";" | "," ) @@ )*`
	Trail  string  `@( ";" | "," )?`
}

// PrintItem is one element of a PRINT list.
type PrintItem struct {
	Sep  string `  @( ";" | "," )`
	Spc  *Expr  `| "SPC" "(" @@ ")"`
	Tab  *Expr  `| "TAB" "(" @@ ")"`
	Expr *Expr  `| @@`
}

// IfStmt covers IF cond THEN stmts [ELSE stmts]; the branches run to the
// end of the line.
type IfStmt struct {
	Cond *Expr        `"IF" @@ "THEN"`
	Then []*Statement `@@? ( ":" @@? )*`
	Else []*Statement `( "ELSE" @@? ( ":" @@? )* )?`
}

// ForStmt is FOR var = start TO end [STEP step].
type ForStmt struct {
	Var   string `"FOR" @Ident "="`
	Start *Expr  `@@ "TO"`
	End   *Expr  `@@`
	Step  *Expr  `( "STEP" @@ )?`
}

// NextStmt is NEXT [var {, var}].
type NextStmt struct {
	Kw   string   `@"NEXT"`
	Vars []string `( @Ident ( "," @Ident )* )?`
}

// WhileStmt is WHILE cond.
type WhileStmt struct {
	Cond *Expr `"WHILE" @@`
}

// GosubStmt is GOSUB label.
type GosubStmt struct {
	Label string `"GOSUB" @Number`
}

// OnGosubStmt is ON expr GOSUB label {, label}.
type OnGosubStmt struct {
	Index  *Expr    `"ON" @@ "GOSUB"`
	Labels []string `@Number ( "," @Number )*`
}

// TimerStmt is AFTER|EVERY time [, timer] GOSUB label.
type TimerStmt struct {
	Kind  string `@( "AFTER" | "EVERY" )`
	Time  *Expr  `@@`
	Timer *Expr  `( "," @@ )?`
	Label string `"GOSUB" @Number`
}

// InputStmt is [LINE] INPUT [#stream,] ["prompt";|,] var {, var}.
type InputStmt struct {
	Line   bool         `@"LINE"? "INPUT"`
	Stream *Expr        `( "#" @@ "," )?`
	Prompt *InputPrompt `@@?`
	Vars   []*Variable  `@@ ( "," @@ )*`
}

// InputPrompt is the literal prompt of an INPUT statement and its separator.
// A semicolon appends "? " to the prompt.
type InputPrompt struct {
	Text string `@String`
	Sep  string `@( ";" | "," )`
}

// ReadStmt is READ var {, var}.
type ReadStmt struct {
	Vars []*Variable `"READ" @@ ( "," @@ )*`
}

// DataStmt is DATA item {, item}.
type DataStmt struct {
	Items []*DataItem `"DATA" @@ ( "," @@ )*`
}

// DataItem is a quoted string, a signed number or an unquoted word list.
type DataItem struct {
	Str *string  `  @String`
	Num *string  `| @( ( "-" | "+" )? Number )`
	Raw []string `| @( Ident | Keyword | Func | FnName | Number | "-" | "+" | "*" | "/" )+`
}

// RestoreStmt is RESTORE [label].
type RestoreStmt struct {
	Kw    string `@"RESTORE"`
	Label string `@Number?`
}

// DimStmt is DIM item {, item}.
type DimStmt struct {
	Items []*DimItem `"DIM" @@ ( "," @@ )*`
}

// DimItem is name(dim {, dim}).
type DimItem struct {
	Name string  `@Ident ( "(" | "[" )`
	Dims []*Expr `@@ ( "," @@ )* ( ")" | "]" )`
}

// EraseStmt is ERASE name {, name}.
type EraseStmt struct {
	Names []string `"ERASE" @Ident ( "," @Ident )*`
}

// DefFnStmt is DEF FNname[(params)] = expr.
type DefFnStmt struct {
	Name   string   `"DEF" @FnName`
	Params []string `( "(" ( @Ident ( "," @Ident )* )? ")" )?`
	Body   *Expr    `"=" @@`
}

// DefTypeStmt is DEFINT/DEFREAL/DEFSTR letter ranges. It has no effect on
// the generated code.
type DefTypeStmt struct {
	Kind    string   `@( "DEFINT" | "DEFREAL" | "DEFSTR" )`
	Letters []string `@Ident ( "-" @Ident )? ( "," @Ident ( "-" @Ident )? )*`
}

// InkStmt is INK pen, color [, color].
type InkStmt struct {
	Pen    *Expr `"INK" @@ ","`
	Color  *Expr `@@`
	Color2 *Expr `( "," @@ )?`
}

// ColorStmt is PEN or PAPER with an optional stream.
type ColorStmt struct {
	Kind   string `@( "PEN" | "PAPER" )`
	Stream *Expr  `( "#" @@ "," )?`
	Value  *Expr  `@@`
}

// BorderStmt is BORDER color [, color].
type BorderStmt struct {
	Color  *Expr `"BORDER" @@`
	Color2 *Expr `( "," @@ )?`
}

// GraphicsStmt is GRAPHICS PEN n or GRAPHICS PAPER n.
type GraphicsStmt struct {
	Kind  string `"GRAPHICS" @( "PEN" | "PAPER" )`
	Value *Expr  `@@`
}

// MovePlotStmt is MOVE, MOVER, DRAW, DRAWR, PLOT or PLOTR x, y [, pen].
type MovePlotStmt struct {
	Kind string `@( "MOVE" | "MOVER" | "DRAW" | "DRAWR" | "PLOT" | "PLOTR" )`
	X    *Expr  `@@ ","`
	Y    *Expr  `@@`
	Pen  *Expr  `( "," @@ )?`
}

// OriginStmt is ORIGIN x, y.
type OriginStmt struct {
	X *Expr `"ORIGIN" @@ ","`
	Y *Expr `@@`
}

// RandomizeStmt is RANDOMIZE [seed].
type RandomizeStmt struct {
	Kw   string `@"RANDOMIZE"`
	Seed *Expr  `@@?`
}

// KeyDefStmt is KEY DEF n, repeat [, codes].
type KeyDefStmt struct {
	Args []*Expr `"KEY" "DEF" @@ ( "," @@ )*`
}

// RsxStmt is |NAME [, arg {, arg}].
type RsxStmt struct {
	Name string    `@Rsx`
	Args []*RsxArg `( "," @@ )*`
}

// RsxArg is an expression or an @variable output argument.
type RsxArg struct {
	Out  *Variable `  "@" @@`
	Expr *Expr     `| @@`
}

// MidAssignStmt is MID$(var, pos [, len]) = expr.
type MidAssignStmt struct {
	Target *Variable `"MID$" "(" @@ ","`
	Pos    *Expr     `@@`
	Len    *Expr     `( "," @@ )? ")" "="`
	Value  *Expr     `@@`
}

// AssignStmt is [LET] var = expr.
type AssignStmt struct {
	Let    bool      `@"LET"?`
	Target *Variable `@@ "="`
	Value  *Expr     `@@`
}

// Variable is a scalar or an indexed array element.
type Variable struct {
	Pos   lexer.Position
	Name  string  `@Ident`
	Index []*Expr `( ( "(" | "[" ) @@ ( "," @@ )* ( ")" | "]" ) )?`
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

// Expr is the top of the expression grammar (XOR level).
type Expr struct {
	Pos  lexer.Position
	Left *OrExpr   `@@`
	Xors []*OrExpr `( "XOR" @@ )*`
}

type OrExpr struct {
	Left *AndExpr   `@@`
	Ors  []*AndExpr `( "OR" @@ )*`
}

type AndExpr struct {
	Left *NotExpr   `@@`
	Ands []*NotExpr `( "AND" @@ )*`
}

type NotExpr struct {
	Nots []string `@"NOT"*`
	Cmp  *CmpExpr `@@`
}

type CmpExpr struct {
	Left *AddExpr `@@`
	Ops  []*CmpOp `@@*`
}

type CmpOp struct {
	Op    string   `@( "<>" | "<=" | ">=" | "=" | "<" | ">" )`
	Right *AddExpr `@@`
}

type AddExpr struct {
	Left *ModExpr `@@`
	Ops  []*AddOp `@@*`
}

type AddOp struct {
	Op    string   `@( "+" | "-" )`
	Right *ModExpr `@@`
}

type ModExpr struct {
	Left *IDivExpr   `@@`
	Mods []*IDivExpr `( "MOD" @@ )*`
}

type IDivExpr struct {
	Left *MulExpr   `@@`
	Divs []*MulExpr `( "\\" @@ )*`
}

type MulExpr struct {
	Left *Unary   `@@`
	Ops  []*MulOp `@@*`
}

type MulOp struct {
	Op    string `@( "*" | "/" )`
	Right *Unary `@@`
}

// Unary is an optionally signed power expression. Power binds tighter than
// the sign, so -2^2 is -4.
type Unary struct {
	Signs []string `@( "-" | "+" )*`
	Power *Power   `@@`
}

type Power struct {
	Base *Primary      `@@`
	Exps []*PowOperand `( "^" @@ )*`
}

type PowOperand struct {
	Signs []string `@( "-" | "+" )*`
	Base  *Primary `@@`
}

// Primary is a literal, call, variable or parenthesised expression.
type Primary struct {
	Pos    lexer.Position
	Number *string   `  @Number`
	String *string   `| @String`
	FnCall *FnCall   `| @@`
	Call   *FuncCall `| @@`
	Var    *Variable `| @@`
	Sub    *Expr     `| "(" @@ ")"`
}

// FnCall calls a DEF FN function.
type FnCall struct {
	Name string  `@FnName`
	Args []*Expr `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

// FuncCall calls a built-in function. A leading # on the first argument
// (POS(#0)) is accepted and ignored.
type FuncCall struct {
	Pos   lexer.Position
	Name  string  `@Func`
	Paren bool    `( @"("`
	Args  []*Expr `  ( "#"? @@ ( "," @@ )* )? ")" )?`
}

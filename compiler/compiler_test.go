package compiler

import (
	"sort"
	"strings"
	"testing"
)

func compileOK(t *testing.T, src string) string {
	t.Helper()
	script, err := New(Options{}).CompileScript(src)
	if err != nil {
		t.Fatalf("CompileScript(%q): %v", src, err)
	}
	return script
}

func TestCompile_Codegen(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    []string
		notWant []string
	}{
		{
			name: "print string",
			src:  `10 PRINT "HELLO"`,
			want: []string{"\"use strict\";\n", `o.print("HELLO", "\n");`},
		},
		{
			name: "print separators",
			src:  `10 PRINT 1;2,3;`,
			want: []string{`o.print(1, 2, {zone: 1}, 3);`},
		},
		{
			name: "arithmetic precedence",
			src:  "10 A=1+2*3\n20 B=(1+2)*3",
			want: []string{"let a = 0, b = 0;", "a = 1 + 2 * 3;", "b = (1 + 2) * 3;"},
		},
		{
			name: "string variable",
			src:  `10 A$="X"`,
			want: []string{`let a$ = "";`, `a$ = "X";`},
		},
		{
			name: "comparison yields -1 or 0",
			src:  `10 IF A<2 THEN PRINT "Y" ELSE PRINT "N"`,
			want: []string{`if ((a < 2 ? -1 : 0)) { o.print("Y", "\n"); } else { o.print("N", "\n"); }`},
		},
		{
			name:    "false comparison is zero",
			src:     `10 PRINT 1=2`,
			want:    []string{`o.print((1 === 2 ? -1 : 0), "\n");`},
			notWant: []string{"-(1 === 2)"},
		},
		{
			name: "for loop",
			src:  "10 FOR I=1 TO 3\n20 PRINT I\n30 NEXT",
			want: []string{"for (i = 1; i <= 3; i++) {", "  o.print(i, \"\\n\");", "}"},
		},
		{
			name: "for loop negative step",
			src:  "10 FOR I=3 TO 1 STEP -1:NEXT",
			want: []string{"for (i = 3; i >= 1; i += -1) { }"},
		},
		{
			name: "while loop",
			src:  "10 WHILE A<3:A=A+1:WEND",
			want: []string{"while ((a < 3 ? -1 : 0)) { a = a + 1; }"},
		},
		{
			name:    "sync subroutine",
			src:     "10 GOSUB 100\n20 END\n100 PRINT 1\n110 RETURN",
			want:    []string{"_100();", "return;", "function _100() {"},
			notWant: []string{"async function _100", "await _100"},
		},
		{
			name: "async subroutine",
			src:  "10 GOSUB 100\n20 END\n100 FRAME\n110 RETURN",
			want: []string{"await _100();", "async function _100() {", "await o.frame();"},
		},
		{
			name: "subroutine fall through",
			src:  "10 GOSUB 100\n20 GOSUB 110\n30 END\n100 PRINT 1\n110 PRINT 2\n120 RETURN",
			want: []string{"function _100() {", "return _110();", "function _110() {"},
		},
		{
			name: "on gosub",
			src:  "10 ON 2 GOSUB 100,200\n20 END\n100 RETURN\n200 RETURN",
			want: []string{"switch (2) { case 1: _100(); break; case 2: _200(); break; }"},
		},
		{
			name: "data and restore",
			src:  "10 RESTORE 30\n20 READ A,B$\n30 DATA 5,\"six\"",
			want: []string{`o.dataInit([5, "six"], {"30": 0});`, `o.restore("30");`, "a = o.read(); b$ = o.read$();"},
		},
		{
			name:    "restore label without its own data",
			src:     "10 RESTORE 100:READ A:PRINT A\n20 DATA 1\n100 REM\n110 DATA 2",
			want:    []string{`o.dataInit([1, 2], {"100": 0});`},
			notWant: []string{`"100": 1`},
		},
		{
			name: "def fn",
			src:  "10 DEF FNsq(x)=x*x\n20 PRINT FNsq(3)",
			want: []string{"let fnsq;", "fnsq = (x) => x * x;", "o.print(fnsq(3), \"\\n\");"},
		},
		{
			name:    "library snippet only when used",
			src:     `10 PRINT LEFT$("ABC",2)`,
			want:    []string{`_left("ABC", 2)`, "function _left(s, n)"},
			notWant: []string{"function _right("},
		},
		{
			name: "integer division and mod",
			src:  "10 A=7\\2\n20 B=7 MOD 2",
			want: []string{"a = Math.trunc(7 / 2);", "b = 7 % 2;"},
		},
		{
			name: "hex literal",
			src:  "10 A=&HFF",
			want: []string{"a = 255;"},
		},
		{
			name: "comment",
			src:  "10 CLS ' clear",
			want: []string{"o.cls(); // clear"},
		},
		{
			name: "rsx",
			src:  "10 |CIRCLE,1,2,3",
			want: []string{`o.rsx("circle", [1, 2, 3]);`},
		},
		{
			name: "input",
			src:  `10 INPUT "NAME";N$`,
			want: []string{`{ const _i = await o.input("NAME? ", "s"); n$ = _i[0]; }`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := compileOK(t, tt.src)
			for _, w := range tt.want {
				if !strings.Contains(script, w) {
					t.Errorf("script does not contain %q:\n%s", w, script)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(script, w) {
					t.Errorf("script unexpectedly contains %q:\n%s", w, script)
				}
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"parse error", "10 CLS\n20 PRINT (", "ERROR: Parsing failed: line 2 (label 20), column"},
		{"next without for", "10 NEXT", "ERROR: Parsing evaluator failed: unexpected NEXT"},
		{"wend without while", "10 WEND", "ERROR: Parsing evaluator failed: unexpected WEND"},
		{"for without next", "10 FOR I=1 TO 2", "ERROR: Parsing evaluator failed: FOR without NEXT"},
		{"duplicate label", "10 CLS\n10 CLS", "duplicate line number 10"},
		{"unknown arity", `10 A$=LEFT$("X")`, "LEFT$: wrong number of arguments"},
		{"block across subroutine", "10 FOR I=1 TO 2\n20 GOSUB 100\n100 PRINT I\n110 NEXT\n120 RETURN", "starts inside a FOR or WHILE block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(Options{}).Compile(tt.src)
			if !IsErrorResult(got) {
				t.Fatalf("Compile(%q) succeeded:\n%s", tt.src, got)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("Compile(%q) = %q, want it to contain %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestCompile_StrictKeywords(t *testing.T) {
	tests := []struct {
		src        string
		strict     bool
		wantErrors bool
	}{
		{"10 PRINT 1", false, false},
		{"10 print 1", false, false},
		{"10 PRINT 1", true, false},
		{"10 print 1", true, true},
	}
	for _, tt := range tests {
		c := New(Options{Strict: tt.strict})
		got := c.Compile(tt.src)
		if IsErrorResult(got) != tt.wantErrors {
			t.Errorf("strict=%t Compile(%q) = %q", tt.strict, tt.src, got)
		}
	}
}

func TestCompiler_SetStrict(t *testing.T) {
	c := New(Options{})
	if IsErrorResult(c.Compile("10 cls")) {
		t.Fatal("permissive compile failed")
	}
	c.SetStrict(true)
	if !c.Strict() {
		t.Fatal("Strict() = false after SetStrict(true)")
	}
	if !IsErrorResult(c.Compile("10 cls")) {
		t.Error("strict compile of lower-case keyword succeeded")
	}
}

func TestCompiler_IncrementalStats(t *testing.T) {
	c := New(Options{})
	src := "10 CLS\n20 PRINT 1\n30 PRINT 2"
	compileAndCheck := func(src string) {
		t.Helper()
		if _, err := c.CompileScript(src); err != nil {
			t.Fatalf("CompileScript(%q): %v", src, err)
		}
	}
	compileAndCheck(src)
	compileAndCheck(strings.Replace(src, "PRINT 1", "PRINT 5", 1))
	if s := c.Stats(); s.Reparsed != 1 || s.Reused != 2 {
		t.Errorf("Stats() = %+v, want 1 reparsed and 2 reused", s)
	}

	// A failing edit followed by the fix still compiles.
	if !IsErrorResult(c.Compile("10 CLS\n20 PRINT (\n30 PRINT 2")) {
		t.Fatal("expected a parse error")
	}
	compileAndCheck(src)
}

func TestCompiler_State(t *testing.T) {
	c := New(Options{})
	src := "10 A=1:B=A\n20 DEF FNf(x)=x+A\n30 GOSUB 100:RESTORE 110\n40 END\n100 RETURN\n110 DATA 1,2"
	if _, err := c.CompileScript(src); err != nil {
		t.Fatal(err)
	}
	st := c.State()

	if n := st.VariableCount("a"); n != 3 {
		t.Errorf("VariableCount(a) = %d, want 3", n)
	}
	if n := st.VariableCount("b"); n != 1 {
		t.Errorf("VariableCount(b) = %d, want 1", n)
	}
	if n := st.VariableCount("x"); n != 0 {
		t.Errorf("VariableCount(x) = %d, want 0 for a DEF FN parameter", n)
	}

	var labels []string
	for _, l := range st.DefinedLabels() {
		labels = append(labels, l.Label)
	}
	if got := strings.Join(labels, ","); got != "10,20,30,40,100,110" {
		t.Errorf("DefinedLabels = %s", got)
	}
	last := st.DefinedLabels()[5]
	if last.FirstLine != 5 || last.LastLine != 5 || last.DataIndex != 0 {
		t.Errorf("label 110 = %+v", last)
	}

	if got := st.UsedLabels(LabelUseGosub); len(got) != 1 || got[0] != "100" {
		t.Errorf("UsedLabels(gosub) = %v", got)
	}
	if got := st.UsedLabels(LabelUseRestore); len(got) != 1 || got[0] != "110" {
		t.Errorf("UsedLabels(restore) = %v", got)
	}
}

func TestCompiler_InstrCount(t *testing.T) {
	c := New(Options{})
	if _, err := c.CompileScript(`10 A$=MID$("ABC",2):B$=MID$(A$,1,1)`); err != nil {
		t.Fatal(err)
	}
	if n := c.State().InstrCount("_mid"); n != 2 {
		t.Errorf("InstrCount(_mid) = %d, want 2", n)
	}
}

func TestKeywordLists(t *testing.T) {
	for name, list := range map[string][]string{"Keywords": Keywords(), "Functions": Functions()} {
		if len(list) == 0 {
			t.Errorf("%s() is empty", name)
		}
		if !sort.StringsAreSorted(list) {
			t.Errorf("%s() is not sorted: %v", name, list)
		}
	}

	k := Keywords()
	k[0] = "CHANGED"
	if Keywords()[0] == "CHANGED" {
		t.Error("Keywords() returns the internal slice")
	}
}

func TestLibraryNames(t *testing.T) {
	names := LibraryNames()
	if len(names) == 0 {
		t.Fatal("no library snippets")
	}
	for _, n := range names {
		if !strings.HasPrefix(n, "_") {
			t.Errorf("snippet name %q lacks the underscore prefix", n)
		}
	}
}

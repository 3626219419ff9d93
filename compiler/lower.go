package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Lowering: subroutine spans and async inference
// ---------------------------------------------------------------------------

// lowering is the table built from the analysis pass and consulted by the
// emitting pass.
type lowering struct {
	restoreLabels map[string]bool
	unitOf        []string        // per line: "" for main, else the sub label
	tail          map[int]string  // last line of a span -> label it falls into
	subs          []string        // sub labels in source order
	async         map[string]bool // sub label, "fn:<name>" or "" (main)
}

type edge struct{ from, to string }

// buildLowering derives subroutine spans and async-ness. Every label that is
// the target of GOSUB, ON GOSUB, AFTER or EVERY opens a span which runs to
// the first line with an unconditional RETURN. A span that reaches the next
// target label falls through into it with a tail call.
func buildLowering(lines []lineOut, st *CodeGenState, fns map[string]*fnFacts) *lowering {
	low := &lowering{
		restoreLabels: make(map[string]bool),
		unitOf:        make([]string, len(lines)),
		tail:          make(map[int]string),
		async:         map[string]bool{"": true},
	}
	for l := range st.usedLabels[useRestore] {
		low.restoreLabels[l] = true
	}
	targets := st.usedLabels[useGosub]

	var edges []edge
	cur := ""
	for i, l := range lines {
		if lbl := l.facts.label; lbl != "" && targets[lbl] > 0 {
			if cur != "" {
				low.tail[i-1] = lbl
				edges = append(edges, edge{cur, lbl})
			}
			cur = lbl
			low.subs = append(low.subs, lbl)
		}
		low.unitOf[i] = cur
		if l.facts.suspends {
			low.async[cur] = true
		}
		for _, c := range l.facts.calls {
			edges = append(edges, edge{cur, c})
		}
		for _, f := range l.facts.fnCalls {
			edges = append(edges, edge{cur, "fn:" + f})
		}
		if cur != "" && l.facts.returns {
			cur = ""
		}
	}
	for name, f := range fns {
		if f.suspends {
			low.async["fn:"+name] = true
		}
		for _, c := range f.fnCalls {
			edges = append(edges, edge{"fn:" + name, "fn:" + c})
		}
	}

	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			if low.async[e.to] && !low.async[e.from] {
				low.async[e.from] = true
				changed = true
			}
		}
	}
	return low
}

// ---------------------------------------------------------------------------
// Program generation
// ---------------------------------------------------------------------------

// generateProgram runs the analysis and emitting passes over the matched
// lines and assembles the script.
func generateProgram(lines []MatchedLine[*Line]) (string, *CodeGenState, error) {
	analysis := newGenerator(nil)
	outs, err := analysis.run(lines, nil)
	if err != nil {
		return "", nil, err
	}
	low := buildLowering(outs, analysis.st, analysis.fns)

	emit := newGenerator(low)
	outs, err = emit.run(lines, low)
	if err != nil {
		return "", nil, err
	}
	if err := checkSpans(outs, low); err != nil {
		return "", nil, err
	}
	return emit.assemble(outs), emit.st, nil
}

func (g *generator) run(lines []MatchedLine[*Line], low *lowering) ([]lineOut, error) {
	outs := make([]lineOut, 0, len(lines))
	for i, ml := range lines {
		if low != nil {
			g.unit = low.unitOf[i]
		}
		outs = append(outs, g.line(ml))
		if g.err != nil {
			return nil, g.err
		}
	}
	if len(lines) > 0 {
		g.st.finishLabels(lines[len(lines)-1].Index)
	}
	if n := len(g.st.blocks); n > 0 {
		kind := g.st.blocks[n-1]
		return nil, fmt.Errorf("%s without %s", strings.ToUpper(kind), closerFor(kind))
	}
	return outs, nil
}

// checkSpans rejects FOR/WHILE blocks that cross a subroutine boundary.
func checkSpans(outs []lineOut, low *lowering) error {
	for i, o := range outs {
		starts := i == 0 || low.unitOf[i] != low.unitOf[i-1]
		ends := i == len(outs)-1 || low.unitOf[i] != low.unitOf[i+1]
		if low.unitOf[i] == "" {
			continue
		}
		if starts && o.depthBefore != 0 {
			return fmt.Errorf("line %d: subroutine %s starts inside a FOR or WHILE block", o.index+1, low.unitOf[i])
		}
		if ends && o.depthAfter != 0 {
			return fmt.Errorf("line %d: subroutine %s ends inside a FOR or WHILE block", o.index+1, low.unitOf[i])
		}
	}
	return nil
}

func (g *generator) assemble(outs []lineOut) string {
	var b strings.Builder
	b.WriteString("\"use strict\";\n")
	g.writeDeclarations(&b)
	g.writeData(&b)

	for i, o := range outs {
		if g.low.unitOf[i] == "" {
			writeLine(&b, o, 0)
		}
	}

	for _, sub := range g.low.subs {
		prefix := ""
		if g.low.async[sub] {
			prefix = "async "
		}
		b.WriteString(prefix + "function _" + sub + "() {\n")
		for i, o := range outs {
			if g.low.unitOf[i] != sub {
				continue
			}
			writeLine(&b, o, indentStep)
			if next, ok := g.low.tail[i]; ok {
				call := "_" + next + "()"
				if g.low.async[next] {
					call = "await " + call
				}
				b.WriteString(indentString(indentStep) + "return " + call + ";\n")
			}
		}
		b.WriteString("}\n")
	}

	for _, s := range library {
		if g.st.instrMap[s.name] > 0 {
			b.WriteString(s.code + "\n")
		}
	}
	return b.String()
}

func writeLine(b *strings.Builder, o lineOut, extra int) {
	if o.code == "" {
		return
	}
	b.WriteString(indentString(min(o.depthBefore, o.depthAfter) + extra))
	b.WriteString(o.code)
	b.WriteByte('\n')
}

func (g *generator) writeDeclarations(b *strings.Builder) {
	st := g.st
	if len(st.varOrder) > 0 {
		decls := make([]string, len(st.varOrder))
		for i, v := range st.varOrder {
			decls[i] = v + " = " + defaultValue(strings.HasSuffix(v, "$"))
		}
		b.WriteString("let " + strings.Join(decls, ", ") + ";\n")
	}
	if len(st.arrayOrder) > 0 {
		decls := make([]string, len(st.arrayOrder))
		for i, name := range st.arrayOrder {
			a := st.arrays[name]
			if a.dimmed {
				decls[i] = name
			} else {
				decls[i] = name + " = " + autoDim(a)
			}
		}
		b.WriteString("let " + strings.Join(decls, ", ") + ";\n")
	}
	if len(st.fnNames) > 0 {
		b.WriteString("let " + strings.Join(st.fnNames, ", ") + ";\n")
	}
}

func (g *generator) writeData(b *strings.Builder) {
	st := g.st
	if len(st.dataList) == 0 && len(st.usedLabels[useRestore]) == 0 {
		return
	}
	labels := make([]string, 0, len(st.usedLabels[useRestore]))
	for l := range st.usedLabels[useRestore] {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labelLess(labels[i], labels[j]) })
	entries := make([]string, len(labels))
	for i, l := range labels {
		entries[i] = jsString(l) + ": " + strconv.Itoa(st.restoreMap[l])
	}
	b.WriteString("o.dataInit([" + strings.Join(st.dataList, ", ") + "], {" + strings.Join(entries, ", ") + "});\n")
}

// labelLess orders line numbers numerically.
func labelLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

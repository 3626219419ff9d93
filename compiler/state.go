package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// Label usage kinds tracked in CodeGenState.usedLabels.
const (
	useGosub   = "gosub"
	useRestore = "restore"
)

// Label usage kinds accepted by UsedLabels.
const (
	LabelUseGosub   = useGosub
	LabelUseRestore = useRestore
)

// indentStep is the number of spaces per block level in generated code.
const indentStep = 2

// LabelDef records one defined BASIC line number.
type LabelDef struct {
	Label     string
	FirstLine int // 0-based physical line of the label
	LastLine  int // last physical line before the next label
	DataIndex int // DATA index when the label was reached
}

type arrayInfo struct {
	name   string // converted name with the array suffix
	dims   int
	isStr  bool
	dimmed bool
}

// CodeGenState is the mutable record of one code generation pass. A new
// state is created for every pass; nothing carries over between compiles.
type CodeGenState struct {
	variables  map[string]int
	varOrder   []string
	arrays     map[string]*arrayInfo
	arrayOrder []string
	fnNames    []string
	fnSeen     map[string]bool

	definedLabels []LabelDef
	labelIndex    map[string]int
	usedLabels    map[string]map[string]int

	dataList    []string
	dataIndex   int
	restoreMap  map[string]int
	anchorLabel string
	anchored    map[string]bool

	instrMap map[string]int

	indent       int
	blocks       []string
	isDeg        bool
	isDefContext bool
	defParams    map[string]bool
}

// NewCodeGenState returns an empty state.
func NewCodeGenState() *CodeGenState {
	return &CodeGenState{
		variables:  make(map[string]int),
		arrays:     make(map[string]*arrayInfo),
		fnSeen:     make(map[string]bool),
		labelIndex: make(map[string]int),
		usedLabels: map[string]map[string]int{
			useGosub:   {},
			useRestore: {},
		},
		restoreMap: make(map[string]int),
		anchored:   make(map[string]bool),
		instrMap:   make(map[string]int),
	}
}

// DefinedLabels returns the labels in definition order.
func (s *CodeGenState) DefinedLabels() []LabelDef { return s.definedLabels }

// UsedLabels returns the labels referenced with the given kind, sorted.
func (s *CodeGenState) UsedLabels(kind string) []string {
	m := s.usedLabels[kind]
	out := make([]string, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// VariableCount returns how often a converted variable name was resolved.
func (s *CodeGenState) VariableCount(name string) int { return s.variables[name] }

// InstrCount returns how often a library primitive is referenced.
func (s *CodeGenState) InstrCount(name string) int { return s.instrMap[name] }

func (s *CodeGenState) useVariable(name string) {
	if _, ok := s.variables[name]; !ok {
		s.varOrder = append(s.varOrder, name)
	}
	s.variables[name]++
}

func (s *CodeGenState) useArray(name string, dims int, isStr bool) *arrayInfo {
	a, ok := s.arrays[name]
	if !ok {
		a = &arrayInfo{name: name, dims: dims, isStr: isStr}
		s.arrays[name] = a
		s.arrayOrder = append(s.arrayOrder, name)
	}
	if dims > a.dims {
		a.dims = dims
	}
	return a
}

func (s *CodeGenState) useFn(name string) {
	if !s.fnSeen[name] {
		s.fnSeen[name] = true
		s.fnNames = append(s.fnNames, name)
	}
}

func (s *CodeGenState) useLabel(kind, label string) {
	s.usedLabels[kind][label]++
}

func (s *CodeGenState) useInstr(name string) {
	s.instrMap[name]++
}

func (s *CodeGenState) defineLabel(label string, line int) error {
	if _, dup := s.labelIndex[label]; dup {
		return fmt.Errorf("duplicate line number %s", label)
	}
	if n := len(s.definedLabels); n > 0 {
		s.definedLabels[n-1].LastLine = line - 1
	}
	s.labelIndex[label] = len(s.definedLabels)
	s.definedLabels = append(s.definedLabels, LabelDef{
		Label:     label,
		FirstLine: line,
		LastLine:  line,
		DataIndex: s.dataIndex,
	})
	return nil
}

func (s *CodeGenState) finishLabels(lastLine int) {
	if n := len(s.definedLabels); n > 0 && lastLine > s.definedLabels[n-1].LastLine {
		s.definedLabels[n-1].LastLine = lastLine
	}
}

// addData appends literal items. The anchor of the current label, if any,
// is bound to the index of the first item.
func (s *CodeGenState) addData(items []string) {
	if s.anchorLabel != "" {
		s.restoreMap[s.anchorLabel] = s.dataIndex
		s.anchored[s.anchorLabel] = true
		s.anchorLabel = ""
	}
	s.dataList = append(s.dataList, items...)
	s.dataIndex += len(items)
}

func (s *CodeGenState) pushBlock(kind string) {
	s.blocks = append(s.blocks, kind)
	s.indent += indentStep
}

func (s *CodeGenState) popBlock(kind string) error {
	if len(s.blocks) == 0 || s.blocks[len(s.blocks)-1] != kind {
		return fmt.Errorf("unexpected %s", closerFor(kind))
	}
	s.blocks = s.blocks[:len(s.blocks)-1]
	s.indent -= indentStep
	return nil
}

func closerFor(kind string) string {
	if kind == "for" {
		return "NEXT"
	}
	return "WEND"
}

func (s *CodeGenState) depth() int { return len(s.blocks) }

func indentString(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

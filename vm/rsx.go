package vm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ---------------------------------------------------------------------------
// RSX dispatcher
// ---------------------------------------------------------------------------

type argKind int

const (
	argNumber argKind = iota
	argString
)

func (k argKind) String() string {
	if k == argString {
		return "string"
	}
	return "number"
}

// rsxArg is one positional parameter of an RSX command.
type rsxArg struct {
	kind     argKind
	optional bool
}

// rsxFunc implements a command. The result is the value for an @variable
// output argument, or nil.
type rsxFunc func(ctx context.Context, v *VM, args []interface{}) (interface{}, error)

type rsxCommand struct {
	args []rsxArg
	fn   rsxFunc
}

// bounds returns the required and total argument counts.
func (c rsxCommand) bounds() (required, total int) {
	for _, a := range c.args {
		if !a.optional {
			required++
		}
	}
	return required, len(c.args)
}

// RsxDispatcher validates and routes |COMMAND calls.
type RsxDispatcher struct {
	commands map[string]rsxCommand
}

func nums(n int) []rsxArg {
	out := make([]rsxArg, n)
	for i := range out {
		out[i] = rsxArg{kind: argNumber}
	}
	return out
}

func withFill(args []rsxArg) []rsxArg {
	return append(args, rsxArg{kind: argNumber, optional: true})
}

// NewRsxDispatcher creates the dispatcher with the built-in commands.
func NewRsxDispatcher() *RsxDispatcher {
	return &RsxDispatcher{commands: map[string]rsxCommand{
		"arc":         {args: withFill(nums(9)), fn: rsxArc},
		"circle":      {args: withFill(nums(3)), fn: rsxCircle},
		"date":        {args: []rsxArg{{kind: argString}}, fn: rsxDate},
		"ellipse":     {args: withFill(nums(4)), fn: rsxEllipse},
		"geolocation": {args: []rsxArg{{kind: argString}}, fn: rsxGeolocation},
		"pitch":       {args: nums(1), fn: rsxPitch},
		"rect":        {args: withFill(nums(4)), fn: rsxRect},
		"say":         {args: []rsxArg{{kind: argString}}, fn: rsxSay},
		"time":        {args: []rsxArg{{kind: argString}}, fn: rsxTime},
	}}
}

// Names returns the command names, sorted.
func (d *RsxDispatcher) Names() []string {
	out := make([]string, 0, len(d.commands))
	for n := range d.commands {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Signature renders the argument schema of a command, e.g.
// "|PITCH,number".
func (d *RsxDispatcher) Signature(name string) (string, bool) {
	name = strings.ToLower(name)
	cmd, ok := d.commands[name]
	if !ok {
		return "", false
	}
	var b strings.Builder
	b.WriteString("|" + strings.ToUpper(name))
	for _, a := range cmd.args {
		if a.optional {
			b.WriteString("[," + a.kind.String() + "]")
		} else {
			b.WriteString("," + a.kind.String())
		}
	}
	return b.String(), true
}

// Call validates args against the command schema and runs it.
func (d *RsxDispatcher) Call(ctx context.Context, v *VM, name string, args []interface{}) (interface{}, error) {
	name = strings.ToLower(name)
	cmd, ok := d.commands[name]
	if !ok {
		return nil, d.unknown(name)
	}
	required, total := cmd.bounds()
	if len(args) < required || len(args) > total {
		return nil, fmt.Errorf("|%s: wrong number of arguments: got %d, want %d to %d",
			strings.ToUpper(name), len(args), required, total)
	}
	for i, a := range args {
		if got := kindOf(a); got != cmd.args[i].kind {
			return nil, fmt.Errorf("|%s: argument %d must be a %s, got %s",
				strings.ToUpper(name), i, cmd.args[i].kind, describe(a))
		}
	}
	return cmd.fn(ctx, v, args)
}

func kindOf(a interface{}) argKind {
	if _, ok := a.(string); ok {
		return argString
	}
	if _, ok := toFloat(a); ok {
		return argNumber
	}
	return -1
}

func describe(a interface{}) string {
	switch a.(type) {
	case string:
		return "string"
	case nil:
		return "undefined"
	}
	if _, ok := toFloat(a); ok {
		return "number"
	}
	return fmt.Sprintf("%T", a)
}

// unknown builds the error for an unknown command with a suggestion.
func (d *RsxDispatcher) unknown(name string) error {
	msg := "|" + strings.ToUpper(name)
	if s := d.suggest(name); s != "" {
		msg += fmt.Sprintf(" (did you mean |%s?)", strings.ToUpper(s))
	}
	return NewBasicError(ErrCodeUnknownCommand, msg)
}

func (d *RsxDispatcher) suggest(name string) string {
	names := d.Names()
	ranks := fuzzy.RankFindFold(name, names)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", 3
	for _, n := range names {
		if dist := fuzzy.LevenshteinDistance(name, n); dist < bestDist {
			best, bestDist = n, dist
		}
	}
	return best
}

func numArg(args []interface{}, i int) float64 {
	f, _ := toFloat(args[i])
	return f
}

func fillArg(args []interface{}, i int) *int {
	if i >= len(args) {
		return nil
	}
	n := int(numArg(args, i))
	return &n
}

func rsxRect(_ context.Context, v *VM, a []interface{}) (interface{}, error) {
	v.gfx.Rect(numArg(a, 0), numArg(a, 1), numArg(a, 2), numArg(a, 3), fillArg(a, 4))
	return nil, nil
}

func rsxCircle(_ context.Context, v *VM, a []interface{}) (interface{}, error) {
	v.gfx.Circle(numArg(a, 0), numArg(a, 1), numArg(a, 2), fillArg(a, 3))
	return nil, nil
}

func rsxEllipse(_ context.Context, v *VM, a []interface{}) (interface{}, error) {
	v.gfx.Ellipse(numArg(a, 0), numArg(a, 1), numArg(a, 2), numArg(a, 3), fillArg(a, 4))
	return nil, nil
}

func rsxArc(_ context.Context, v *VM, a []interface{}) (interface{}, error) {
	v.gfx.Arc(numArg(a, 0), numArg(a, 1), numArg(a, 2), numArg(a, 3), numArg(a, 4),
		numArg(a, 5), numArg(a, 6), numArg(a, 7), numArg(a, 8), fillArg(a, 9))
	return nil, nil
}

// rsxDate returns "w dd mm yy" (weekday, day, month, two-digit year).
func rsxDate(_ context.Context, v *VM, _ []interface{}) (interface{}, error) {
	t := v.now()
	return fmt.Sprintf("%d %02d %02d %02d", int(t.Weekday()), t.Day(), int(t.Month()), t.Year()%100), nil
}

// rsxTime returns "hh mm ss".
func rsxTime(_ context.Context, v *VM, _ []interface{}) (interface{}, error) {
	t := v.now()
	return fmt.Sprintf("%02d %02d %02d", t.Hour(), t.Minute(), t.Second()), nil
}

func rsxPitch(_ context.Context, v *VM, a []interface{}) (interface{}, error) {
	p := numArg(a, 0)
	if p < 0 || p > 2 {
		return nil, NewBasicError(ErrCodeImproperArgument, "|PITCH")
	}
	v.pitch = p
	return nil, nil
}

func rsxSay(ctx context.Context, v *VM, a []interface{}) (interface{}, error) {
	v.Flush()
	text, _ := a[0].(string)
	if err := v.host.Speak(ctx, text, v.pitch); err != nil {
		return nil, err
	}
	return nil, nil
}

func rsxGeolocation(ctx context.Context, v *VM, _ []interface{}) (interface{}, error) {
	v.Flush()
	return v.host.Geolocation(ctx)
}

package vm

import (
	"context"
	"errors"
	"math"

	"github.com/dop251/goja"
)

// Binding is the o object of one run: goja natives bound to a VM.
type Binding struct {
	rt  *goja.Runtime
	v   *VM
	ctx context.Context
	obj *goja.Object

	// promises returned by timer callbacks that had not settled when the
	// callback returned
	pending []*goja.Promise
}

type native = func(goja.FunctionCall) goja.Value

// WrapperLines is the number of lines WrapScript puts before the script.
const WrapperLines = 1

// WrapScript turns a compiled script into the source of an async function
// taking the o object.
func WrapScript(code string) string {
	return "(async function (o) {\n" + code + "\n})"
}

// Bind creates the o object for rt. Blocking primitives use ctx.
func Bind(rt *goja.Runtime, v *VM, ctx context.Context) *Binding {
	b := &Binding{rt: rt, v: v, ctx: ctx, obj: rt.NewObject()}
	for name, fn := range b.natives() {
		if err := b.obj.Set(name, fn); err != nil {
			log.Errorf("bind %s: %s", name, err)
		}
	}
	return b
}

// Object returns the o object.
func (b *Binding) Object() *goja.Object { return b.obj }

// PendingError returns the rejection of a timer callback, if any settled
// that way.
func (b *Binding) PendingError() error {
	kept := b.pending[:0]
	for _, p := range b.pending {
		switch p.State() {
		case goja.PromiseStateRejected:
			return ValueError(p.Result())
		case goja.PromiseStatePending:
			kept = append(kept, p)
		}
	}
	b.pending = kept
	return nil
}

// ValueError converts a thrown JS value back to a Go error. Errors raised by
// natives keep their Go identity.
func ValueError(val goja.Value) error {
	if obj, ok := val.(*goja.Object); ok {
		if inner := obj.Get("value"); inner != nil {
			if err, ok := inner.Export().(error); ok {
				return err
			}
		}
	}
	if val == nil || goja.IsUndefined(val) {
		return errors.New("undefined")
	}
	return errors.New(val.String())
}

// throw raises err inside the script.
func (b *Binding) throw(err error) {
	var exc *goja.Exception
	var intr *goja.InterruptedError
	switch {
	case errors.As(err, &intr):
		panic(intr)
	case errors.As(err, &exc):
		panic(exc)
	}
	panic(b.rt.NewGoError(err))
}

func (b *Binding) check(err error) {
	if err != nil {
		b.throw(err)
	}
}

func (b *Binding) undefined() goja.Value { return goja.Undefined() }

func present(c goja.FunctionCall, i int) bool {
	if i >= len(c.Arguments) {
		return false
	}
	a := c.Arguments[i]
	return a != nil && !goja.IsUndefined(a) && !goja.IsNull(a)
}

func intArg(c goja.FunctionCall, i int) int {
	return int(math.Round(c.Argument(i).ToFloat()))
}

func floatArg(c goja.FunctionCall, i int) float64 { return c.Argument(i).ToFloat() }

func optFloat(c goja.FunctionCall, i int) *float64 {
	if !present(c, i) {
		return nil
	}
	f := floatArg(c, i)
	return &f
}

func optInt(c goja.FunctionCall, i int) *int {
	if !present(c, i) {
		return nil
	}
	n := intArg(c, i)
	return &n
}

func exportSlice(val goja.Value) []interface{} {
	if val == nil || goja.IsUndefined(val) {
		return nil
	}
	s, _ := val.Export().([]interface{})
	return s
}

func (b *Binding) natives() map[string]native {
	v := b.v
	return map[string]native{
		"print": func(c goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(c.Arguments))
			for i, a := range c.Arguments {
				args[i] = a.Export()
			}
			b.check(v.Print(args))
			return b.undefined()
		},
		"using": func(c goja.FunctionCall) goja.Value {
			s, err := v.Using(c.Argument(0).String(), exportSlice(c.Argument(1)))
			b.check(err)
			return b.rt.ToValue(s)
		},
		"dec$": func(c goja.FunctionCall) goja.Value {
			s, err := v.Dec(floatArg(c, 0), c.Argument(1).String())
			b.check(err)
			return b.rt.ToValue(s)
		},
		"str$": func(c goja.FunctionCall) goja.Value {
			return b.rt.ToValue(v.Str(floatArg(c, 0)))
		},
		"cls": func(goja.FunctionCall) goja.Value {
			v.Cls()
			return b.undefined()
		},
		"mode": func(c goja.FunctionCall) goja.Value {
			b.check(v.Mode(intArg(c, 0)))
			return b.undefined()
		},
		"ink": func(c goja.FunctionCall) goja.Value {
			b.check(v.Ink(intArg(c, 0), intArg(c, 1)))
			return b.undefined()
		},
		"pen": func(c goja.FunctionCall) goja.Value {
			b.check(v.Pen(intArg(c, 0)))
			return b.undefined()
		},
		"paper": func(c goja.FunctionCall) goja.Value {
			b.check(v.Paper(intArg(c, 0)))
			return b.undefined()
		},
		"border": func(c goja.FunctionCall) goja.Value {
			b.check(v.Border(intArg(c, 0)))
			return b.undefined()
		},
		"graphicsPen": func(c goja.FunctionCall) goja.Value {
			b.check(v.GraphicsPen(intArg(c, 0)))
			return b.undefined()
		},
		"graphicsPaper": func(c goja.FunctionCall) goja.Value {
			b.check(v.GraphicsPaper(intArg(c, 0)))
			return b.undefined()
		},
		"origin": func(c goja.FunctionCall) goja.Value {
			v.Origin(floatArg(c, 0), floatArg(c, 1))
			return b.undefined()
		},
		"drawMovePlot": func(c goja.FunctionCall) goja.Value {
			b.check(v.DrawMovePlot(c.Argument(0).String(), floatArg(c, 1), floatArg(c, 2), optInt(c, 3)))
			return b.undefined()
		},
		"tag": func(c goja.FunctionCall) goja.Value {
			v.Tag(c.Argument(0).ToBoolean())
			return b.undefined()
		},
		"xpos": func(goja.FunctionCall) goja.Value { return b.rt.ToValue(v.Xpos()) },
		"ypos": func(goja.FunctionCall) goja.Value { return b.rt.ToValue(v.Ypos()) },
		"pos":  func(goja.FunctionCall) goja.Value { return b.rt.ToValue(v.Pos()) },
		"vpos": func(goja.FunctionCall) goja.Value { return b.rt.ToValue(v.Vpos()) },
		"zone": func(c goja.FunctionCall) goja.Value {
			b.check(v.Zone(intArg(c, 0)))
			return b.undefined()
		},
		"frame": func(goja.FunctionCall) goja.Value {
			b.check(b.PendingError())
			b.check(v.Frame(b.ctx))
			return b.undefined()
		},
		"end": func(goja.FunctionCall) goja.Value {
			b.throw(v.End())
			return nil
		},
		"stop": func(goja.FunctionCall) goja.Value {
			b.throw(v.Stop())
			return nil
		},
		"error": func(c goja.FunctionCall) goja.Value {
			b.throw(v.Error(intArg(c, 0)))
			return nil
		},
		"randomize": func(c goja.FunctionCall) goja.Value {
			v.Randomize(optFloat(c, 0))
			return b.undefined()
		},
		"rnd": func(c goja.FunctionCall) goja.Value {
			return b.rt.ToValue(v.Rnd(optFloat(c, 0)))
		},
		"time": func(goja.FunctionCall) goja.Value { return b.rt.ToValue(v.Time()) },
		"keyDef": func(c goja.FunctionCall) goja.Value {
			items := exportSlice(c.Argument(0))
			codes := make([]int, len(items))
			for i, it := range items {
				f, _ := toFloat(it)
				codes[i] = int(f)
			}
			v.KeyDef(codes)
			return b.undefined()
		},
		"clearInput": func(goja.FunctionCall) goja.Value {
			v.ClearKeys()
			return b.undefined()
		},
		"input": func(c goja.FunctionCall) goja.Value {
			values, err := v.Input(b.ctx, c.Argument(0).String(), c.Argument(1).String())
			b.check(err)
			return b.rt.NewArray(values...)
		},
		"inkey$": func(goja.FunctionCall) goja.Value {
			b.check(b.PendingError())
			key, err := v.Inkey(b.ctx)
			b.check(err)
			return b.rt.ToValue(key)
		},
		"rsx": func(c goja.FunctionCall) goja.Value {
			res, err := v.Rsx(b.ctx, c.Argument(0).String(), exportSlice(c.Argument(1)))
			b.check(err)
			if res == nil {
				return b.undefined()
			}
			return b.rt.ToValue(res)
		},
		"after": func(c goja.FunctionCall) goja.Value {
			b.check(v.After(floatArg(c, 0), intArg(c, 1), b.callback(c.Argument(2))))
			return b.undefined()
		},
		"every": func(c goja.FunctionCall) goja.Value {
			b.check(v.Every(floatArg(c, 0), intArg(c, 1), b.callback(c.Argument(2))))
			return b.undefined()
		},
		"remain": func(c goja.FunctionCall) goja.Value {
			n, err := v.Remain(intArg(c, 0))
			b.check(err)
			return b.rt.ToValue(n)
		},
		"dataInit": func(c goja.FunctionCall) goja.Value {
			restore := make(map[string]int)
			if m, ok := c.Argument(1).Export().(map[string]interface{}); ok {
				for k, val := range m {
					f, _ := toFloat(val)
					restore[k] = int(f)
				}
			}
			v.DataInit(exportSlice(c.Argument(0)), restore)
			return b.undefined()
		},
		"read": func(goja.FunctionCall) goja.Value {
			f, err := v.Read()
			b.check(err)
			return b.rt.ToValue(f)
		},
		"read$": func(goja.FunctionCall) goja.Value {
			s, err := v.ReadString()
			b.check(err)
			return b.rt.ToValue(s)
		},
		"restore": func(c goja.FunctionCall) goja.Value {
			label := ""
			if present(c, 0) {
				label = c.Argument(0).String()
			}
			v.Restore(label)
			return b.undefined()
		},
		"dim": func(c goja.FunctionCall) goja.Value {
			items := exportSlice(c.Argument(0))
			dims := make([]int, len(items))
			for i, it := range items {
				f, _ := toFloat(it)
				dims[i] = int(math.Round(f))
				if dims[i] < 0 {
					b.throw(NewBasicError(ErrCodeImproperArgument, "DIM"))
				}
			}
			return b.dim(dims, c.Argument(1))
		},
	}
}

// dim builds a nested array with bounds 0..dims[i] in every dimension.
func (b *Binding) dim(dims []int, init goja.Value) goja.Value {
	if len(dims) == 0 {
		return init
	}
	elems := make([]interface{}, dims[0]+1)
	for i := range elems {
		elems[i] = b.dim(dims[1:], init)
	}
	return b.rt.NewArray(elems...)
}

// callback wraps a subroutine for the timer table.
func (b *Binding) callback(fn goja.Value) func() error {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		b.throw(NewBasicError(ErrCodeImproperArgument, "timer target"))
	}
	return func() error {
		res, err := call(goja.Undefined())
		if err != nil {
			return err
		}
		if p, ok := res.Export().(*goja.Promise); ok && p.State() == goja.PromiseStatePending {
			b.pending = append(b.pending, p)
		} else if ok && p.State() == goja.PromiseStateRejected {
			return ValueError(p.Result())
		}
		return nil
	}
}

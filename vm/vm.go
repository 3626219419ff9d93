package vm

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("locobasic.vm")

// FlushEvent is one chunk of rendered output.
type FlushEvent struct {
	Message     string
	NeedCls     bool
	HasGraphics bool
}

// Host is the outbound side of a running program. The sandbox worker
// implements it by exchanging messages; tests use a fake.
type Host interface {
	Flush(ev FlushEvent)
	// Input asks for one line. ok is false when the user canceled.
	Input(ctx context.Context, prompt string) (answer string, ok bool, err error)
	Speak(ctx context.Context, text string, pitch float64) error
	Geolocation(ctx context.Context) (string, error)
	KeyDef(codes []int)
}

// Options configure a VM.
type Options struct {
	Terminal      bool
	FrameDuration time.Duration
	Zone          int
	Now           func() time.Time
	Seed          int64
}

// DefaultOptions returns HTML output, 20ms frames and zone width 13.
func DefaultOptions() Options {
	return Options{FrameDuration: 20 * time.Millisecond, Zone: 13}
}

// VM is the runtime behind the generated script's o object. All methods
// except PutKeys, ClearKeys and RequestStop must be called from the
// interpreter goroutine.
type VM struct {
	opts Options
	host Host

	pal  *palette
	out  *textOutput
	gfx  *Graphics
	rsx  *RsxDispatcher
	tmr  *timerTable
	keys keyBuffer
	data dataCursor

	rng     *rand.Rand
	lastRnd float64

	zone    int
	tag     bool
	needCls bool
	pitch   float64

	start     time.Time
	nextFrame time.Time

	stopMu   sync.Mutex
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce *sync.Once
}

// New creates a VM writing to host.
func New(host Host, opts Options) *VM {
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = 20 * time.Millisecond
	}
	if opts.Zone <= 0 {
		opts.Zone = 13
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	pal := newPalette()
	v := &VM{
		opts: opts,
		host: host,
		pal:  pal,
		out:  newTextOutput(opts.Terminal, pal),
		gfx:  newGraphics(pal),
		rsx:  NewRsxDispatcher(),
		tmr:  newTimerTable(),
	}
	v.ResetAll()
	return v
}

// SetTerminal switches between plain text and HTML output.
func (v *VM) SetTerminal(terminal bool) {
	v.opts.Terminal = terminal
	v.out.terminal = terminal
}

// Terminal reports the output mode.
func (v *VM) Terminal() bool { return v.opts.Terminal }

func (v *VM) now() time.Time { return v.opts.Now() }

// ResetAll restores the power-on state before a run.
func (v *VM) ResetAll() {
	v.pal.reset()
	v.out.reset()
	v.gfx.reset()
	v.tmr.clear()
	v.keys.Clear()
	v.data.reset()
	seed := v.opts.Seed
	if seed == 0 {
		seed = v.now().UnixNano()
	}
	v.rng = rand.New(rand.NewSource(seed))
	v.lastRnd = 0
	v.zone = v.opts.Zone
	v.tag = false
	v.needCls = false
	v.pitch = 1
	v.start = v.now()
	v.nextFrame = v.start

	v.stopMu.Lock()
	v.stopped.Store(false)
	v.stopCh = make(chan struct{})
	v.stopOnce = &sync.Once{}
	v.stopMu.Unlock()
}

// ---------------------------------------------------------------------------
// Control
// ---------------------------------------------------------------------------

// RequestStop asks the program to stop at its next frame. Safe to call from
// any goroutine.
func (v *VM) RequestStop() {
	v.stopMu.Lock()
	defer v.stopMu.Unlock()
	v.stopped.Store(true)
	v.stopOnce.Do(func() { close(v.stopCh) })
}

// StopRequested reports whether a stop is pending.
func (v *VM) StopRequested() bool { return v.stopped.Load() }

// StopChannel is closed when a stop is requested.
func (v *VM) StopChannel() <-chan struct{} {
	v.stopMu.Lock()
	defer v.stopMu.Unlock()
	return v.stopCh
}

// PutKeys adds keys to the keyboard buffer. Safe to call from any goroutine.
func (v *VM) PutKeys(keys string) { v.keys.Put(keys) }

// ClearKeys empties the keyboard buffer.
func (v *VM) ClearKeys() { v.keys.Clear() }

// Flush sends pending text and graphics to the host.
func (v *VM) Flush() {
	hasText := v.out.pending()
	if !hasText && !v.gfx.HasElements() && !v.needCls {
		return
	}
	svg := v.gfx.Flush()
	text := ""
	if hasText {
		text = v.out.flush()
	}
	ev := FlushEvent{Message: svg + text, NeedCls: v.needCls, HasGraphics: svg != ""}
	v.needCls = false
	v.host.Flush(ev)
}

// Frame flushes output and waits for the next frame boundary. It is the
// only place a stop request is observed. Due timers run afterwards.
func (v *VM) Frame(ctx context.Context) error {
	v.Flush()
	if v.StopRequested() {
		return ErrStopped
	}
	now := v.now()
	if wait := v.nextFrame.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-v.StopChannel():
			t.Stop()
			return ErrStopped
		case <-t.C:
		}
		now = v.now()
	}
	v.nextFrame = now.Add(v.opts.FrameDuration)
	return v.tmr.fire(now)
}

// After and Every schedule fn in 1/50 s ticks on timer id.
func (v *VM) After(ticks float64, id int, fn func() error) error {
	return v.tmr.set(v.now(), ticks, id, false, fn)
}

func (v *VM) Every(ticks float64, id int, fn func() error) error {
	return v.tmr.set(v.now(), ticks, id, true, fn)
}

// Remain disables timer id and returns its remaining ticks.
func (v *VM) Remain(id int) (int, error) { return v.tmr.remain(v.now(), id) }

// ClearTimers cancels every timer.
func (v *VM) ClearTimers() { v.tmr.clear() }

// ActiveTimers returns the number of scheduled timers.
func (v *VM) ActiveTimers() int { return v.tmr.len() }

// End raises the end-of-program signal from inside a subroutine.
func (v *VM) End() error { return ErrEnded }

// Stop raises the stop signal.
func (v *VM) Stop() error { return ErrStopped }

// Error raises BASIC error n.
func (v *VM) Error(n int) error { return NewBasicError(n, "") }

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

// Print writes PRINT items: numbers, strings and the {zone}, {spc} and
// {tab} directives.
func (v *VM) Print(args []interface{}) error {
	for _, a := range args {
		switch x := a.(type) {
		case string:
			v.printText(x)
		case map[string]interface{}:
			if err := v.printDirective(x); err != nil {
				return err
			}
		case nil:
			v.printText("undefined")
		default:
			f, ok := toFloat(a)
			if !ok {
				return NewBasicError(ErrCodeTypeMismatch, "PRINT")
			}
			v.printText(printNumber(f))
		}
	}
	return nil
}

func (v *VM) printText(s string) {
	if v.tag {
		if s = strings.TrimRight(s, "\n"); s != "" {
			v.gfx.Text(s)
		}
		return
	}
	v.out.write(s)
}

func (v *VM) printDirective(d map[string]interface{}) error {
	for key, val := range d {
		n, ok := toFloat(val)
		if !ok {
			return NewBasicError(ErrCodeTypeMismatch, "PRINT "+key)
		}
		switch key {
		case "zone":
			v.out.zone(v.zone)
		case "spc":
			v.out.spaces(int(n))
		case "tab":
			v.out.tab(int(n))
		default:
			return NewBasicError(ErrCodeImproperArgument, "PRINT "+key)
		}
	}
	return nil
}

// Using formats values with a PRINT USING format.
func (v *VM) Using(format string, values []interface{}) (string, error) {
	return formatUsing(format, values)
}

// Dec is DEC$.
func (v *VM) Dec(n float64, format string) (string, error) {
	return formatUsing(format, []interface{}{n})
}

// Str is STR$.
func (v *VM) Str(n float64) string { return strNumber(n) }

// Pos and Vpos return the 1-based text cursor.
func (v *VM) Pos() int { return v.out.col + 1 }

func (v *VM) Vpos() int { return v.out.line + 1 }

// Zone sets the PRINT comma width.
func (v *VM) Zone(n int) error {
	if n < 1 || n > 255 {
		return NewBasicError(ErrCodeImproperArgument, "ZONE")
	}
	v.zone = n
	return nil
}

// Cls clears text and graphics.
func (v *VM) Cls() {
	v.out.cls()
	v.gfx.path, v.gfx.pathDraw, v.gfx.elements = nil, false, nil
	v.needCls = true
}

// Mode clears the screen; the resolution itself is not emulated.
func (v *VM) Mode(n int) error {
	if n < 0 || n > 3 {
		return NewBasicError(ErrCodeImproperArgument, "MODE")
	}
	v.Cls()
	return nil
}

func checkPen(n int, what string) error {
	if n < 0 || n > 15 {
		return NewBasicError(ErrCodeImproperArgument, what)
	}
	return nil
}

func (v *VM) Pen(n int) error {
	if err := checkPen(n, "PEN"); err != nil {
		return err
	}
	v.out.setPen(n)
	return nil
}

func (v *VM) Paper(n int) error {
	if err := checkPen(n, "PAPER"); err != nil {
		return err
	}
	v.out.setPaper(n)
	return nil
}

// Ink assigns a hardware color to a pen. A second color is accepted and
// ignored (no flashing).
func (v *VM) Ink(pen, color int) error { return v.pal.setInk(pen, color) }

func (v *VM) Border(color int) error { return v.pal.setInk(borderPen, color) }

// Tag routes PRINT to the graphics cursor.
func (v *VM) Tag(on bool) { v.tag = on }

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// Input asks the host for a line and converts it to one value per type
// letter: n number, s string, l whole line.
func (v *VM) Input(ctx context.Context, prompt, types string) ([]interface{}, error) {
	for {
		v.Flush()
		answer, ok, err := v.host.Input(ctx, prompt)
		if err != nil {
			return nil, err
		}
		if v.StopRequested() {
			return nil, ErrStopped
		}
		if !ok {
			return nil, ErrInputCanceled
		}
		v.printText(prompt + answer + "\n")
		values, valid := parseInput(answer, types)
		if valid {
			return values, nil
		}
		v.printText("?Redo from start\n")
	}
}

func parseInput(answer, types string) ([]interface{}, bool) {
	if types == "l" {
		return []interface{}{answer}, true
	}
	parts := strings.Split(answer, ",")
	if len(parts) != len(types) {
		return nil, false
	}
	values := make([]interface{}, len(parts))
	for i, p := range parts {
		if types[i] == 'n' {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, false
			}
			values[i] = f
			continue
		}
		values[i] = p
	}
	return values, true
}

// Inkey waits one frame and returns a buffered key or "".
func (v *VM) Inkey(ctx context.Context) (string, error) {
	if err := v.Frame(ctx); err != nil {
		return "", err
	}
	return v.keys.Get(), nil
}

// KeyDef forwards a key definition to the host.
func (v *VM) KeyDef(codes []int) { v.host.KeyDef(codes) }

// ---------------------------------------------------------------------------
// DATA
// ---------------------------------------------------------------------------

// DataInit installs the program's DATA table and RESTORE anchors.
func (v *VM) DataInit(items []interface{}, restore map[string]int) {
	v.data.init(items, restore)
}

func (v *VM) Read() (float64, error) { return v.data.read() }

func (v *VM) ReadString() (string, error) { return v.data.readString() }

func (v *VM) Restore(label string) { v.data.restoreTo(label) }

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// Rnd is RND: a negative argument reseeds, zero repeats the last value.
func (v *VM) Rnd(arg *float64) float64 {
	if arg != nil {
		switch {
		case *arg < 0:
			v.rng.Seed(int64(math.Float64bits(*arg)))
		case *arg == 0:
			return v.lastRnd
		}
	}
	v.lastRnd = v.rng.Float64()
	return v.lastRnd
}

// Randomize reseeds the generator; without a seed the clock is used.
func (v *VM) Randomize(seed *float64) {
	if seed == nil {
		v.rng.Seed(v.now().UnixNano())
		return
	}
	v.rng.Seed(int64(math.Float64bits(*seed)))
}

// Time is TIME: 1/300 s since the run started.
func (v *VM) Time() int {
	return int(v.now().Sub(v.start) / (time.Second / 300))
}

// ---------------------------------------------------------------------------
// Graphics
// ---------------------------------------------------------------------------

// DrawMovePlot runs MOVE/DRAW/PLOT and their relative forms, switching the
// graphics pen first when one is given.
func (v *VM) DrawMovePlot(kind string, x, y float64, pen *int) error {
	if len(kind) != 1 {
		return NewBasicError(ErrCodeImproperArgument, "drawMovePlot "+kind)
	}
	if pen != nil {
		if err := v.gfx.SetPen(*pen); err != nil {
			return err
		}
	}
	return v.gfx.DrawMovePlot(kind[0], x, y)
}

func (v *VM) GraphicsPen(n int) error { return v.gfx.SetPen(n) }

func (v *VM) GraphicsPaper(n int) error { return v.gfx.SetPaper(n) }

func (v *VM) Origin(x, y float64) { v.gfx.SetOrigin(x, y) }

// Xpos and Ypos return the graphics cursor.
func (v *VM) Xpos() float64 {
	x, _ := v.gfx.Pos()
	return x
}

func (v *VM) Ypos() float64 {
	_, y := v.gfx.Pos()
	return y
}

// Graphics exposes the graphics engine.
func (v *VM) Graphics() *Graphics { return v.gfx }

// Rsx runs an RSX command.
func (v *VM) Rsx(ctx context.Context, name string, args []interface{}) (interface{}, error) {
	log.Debugf("rsx %s %v", name, args)
	return v.rsx.Call(ctx, v, name, args)
}

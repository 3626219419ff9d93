package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeHost struct {
	out     strings.Builder
	flushes []FlushEvent
	answers []string
	prompts []string
	spoken  []string
	pitches []float64
	keyDefs [][]int
	geo     string
}

func (h *fakeHost) Flush(ev FlushEvent) {
	h.flushes = append(h.flushes, ev)
	h.out.WriteString(ev.Message)
}

func (h *fakeHost) Input(_ context.Context, prompt string) (string, bool, error) {
	h.prompts = append(h.prompts, prompt)
	if len(h.answers) == 0 {
		return "", false, nil
	}
	a := h.answers[0]
	h.answers = h.answers[1:]
	return a, true, nil
}

func (h *fakeHost) Speak(_ context.Context, text string, pitch float64) error {
	h.spoken = append(h.spoken, text)
	h.pitches = append(h.pitches, pitch)
	return nil
}

func (h *fakeHost) Geolocation(context.Context) (string, error) { return h.geo, nil }

func (h *fakeHost) KeyDef(codes []int) { h.keyDefs = append(h.keyDefs, codes) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestVM(t *testing.T) (*VM, *fakeHost, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)}
	host := &fakeHost{}
	v := New(host, Options{Terminal: true, FrameDuration: time.Nanosecond, Now: clock.now, Seed: 1})
	return v, host, clock
}

func TestVM_PrintAndFlush(t *testing.T) {
	v, host, _ := newTestVM(t)

	if err := v.Print([]interface{}{"HI", "\n"}); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if err := v.Print([]interface{}{int64(1), float64(-2.5), "\n"}); err != nil {
		t.Fatalf("Print: %v", err)
	}
	v.Flush()

	want := "HI\n 1 -2.5 \n"
	if got := host.out.String(); got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
	if len(host.flushes) != 1 {
		t.Errorf("flushes: got %d, want 1", len(host.flushes))
	}

	// Nothing pending: no message.
	v.Flush()
	if len(host.flushes) != 1 {
		t.Errorf("empty flush should not reach the host")
	}
}

func TestVM_FlushSkipsIdleSpans(t *testing.T) {
	v, host, _ := newTestVM(t)
	v.SetTerminal(false)
	if err := v.Pen(2); err != nil {
		t.Fatalf("Pen: %v", err)
	}
	v.Print([]interface{}{"A"})
	v.Flush()
	// Only the reopened pen span is buffered now.
	v.Flush()
	if len(host.flushes) != 1 {
		t.Fatalf("flushes: got %d, want 1: %+v", len(host.flushes), host.flushes)
	}
	if !strings.Contains(host.flushes[0].Message, "A</span>") {
		t.Errorf("message: got %q", host.flushes[0].Message)
	}

	v.Graphics().Circle(10, 10, 5, nil)
	if !v.Graphics().HasElements() {
		t.Fatal("HasElements() = false after Circle")
	}
	v.Flush()
	if len(host.flushes) != 2 || !host.flushes[1].HasGraphics {
		t.Fatalf("expected a graphics flush, got %+v", host.flushes)
	}
	if strings.Contains(host.flushes[1].Message, "</span>") {
		t.Errorf("graphics flush carried an empty span: %q", host.flushes[1].Message)
	}
}

func TestVM_PrintDirectives(t *testing.T) {
	v, host, _ := newTestVM(t)

	v.Print([]interface{}{"AB", map[string]interface{}{"zone": int64(1)}, "C"})
	v.Print([]interface{}{map[string]interface{}{"spc": int64(2)}, "D"})
	v.Print([]interface{}{map[string]interface{}{"tab": int64(20)}, "E", "\n"})
	v.Flush()

	want := "AB" + strings.Repeat(" ", 11) + "C  D  E\n"
	if got := host.out.String(); got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func TestVM_ZoneWidth(t *testing.T) {
	v, host, _ := newTestVM(t)
	if err := v.Zone(5); err != nil {
		t.Fatalf("Zone: %v", err)
	}
	v.Print([]interface{}{"A", map[string]interface{}{"zone": int64(1)}, "B"})
	v.Flush()
	if got := host.out.String(); got != "A    B" {
		t.Errorf("output: got %q", got)
	}
	if err := v.Zone(0); err == nil {
		t.Error("Zone(0) should fail")
	}
}

func TestVM_ClsRequestsClear(t *testing.T) {
	v, host, _ := newTestVM(t)
	v.Print([]interface{}{"gone"})
	v.Cls()
	v.Print([]interface{}{"kept"})
	v.Flush()

	if len(host.flushes) != 1 {
		t.Fatalf("flushes: got %d, want 1", len(host.flushes))
	}
	ev := host.flushes[0]
	if !ev.NeedCls || ev.Message != "kept" {
		t.Errorf("got %+v", ev)
	}
}

func TestVM_FrameObservesStop(t *testing.T) {
	v, _, _ := newTestVM(t)
	ctx := context.Background()

	if err := v.Frame(ctx); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	v.RequestStop()
	if err := v.Frame(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Frame after stop: got %v, want ErrStopped", err)
	}
	if !IsSignal(ErrStopped) {
		t.Error("ErrStopped should be a signal")
	}

	v.ResetAll()
	if err := v.Frame(ctx); err != nil {
		t.Errorf("Frame after reset: %v", err)
	}
}

func TestVM_FrameWaitsForStop(t *testing.T) {
	host := &fakeHost{}
	v := New(host, Options{FrameDuration: time.Hour})
	ctx := context.Background()
	if err := v.Frame(ctx); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- v.Frame(ctx) }()
	v.RequestStop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("got %v, want ErrStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Frame did not return after stop")
	}
}

func TestVM_Timers(t *testing.T) {
	v, _, clock := newTestVM(t)
	ctx := context.Background()

	var after, every int
	if err := v.After(5, 0, func() error { after++; return nil }); err != nil {
		t.Fatalf("After: %v", err)
	}
	if err := v.Every(2, 1, func() error { every++; return nil }); err != nil {
		t.Fatalf("Every: %v", err)
	}

	v.Frame(ctx)
	if after != 0 || every != 0 {
		t.Errorf("timers fired early: after=%d every=%d", after, every)
	}

	clock.advance(200 * time.Millisecond)
	v.Frame(ctx)
	clock.advance(200 * time.Millisecond)
	v.Frame(ctx)

	if after != 1 {
		t.Errorf("AFTER fired %d times, want 1", after)
	}
	if every != 2 {
		t.Errorf("EVERY fired %d times, want 2", every)
	}
	if v.ActiveTimers() != 1 {
		t.Errorf("active timers: got %d, want 1", v.ActiveTimers())
	}

	v.ClearTimers()
	if v.ActiveTimers() != 0 {
		t.Error("ClearTimers left timers behind")
	}
}

func TestVM_TimerErrorStopsFrame(t *testing.T) {
	v, _, _ := newTestVM(t)
	boom := errors.New("boom")
	v.After(0, 3, func() error { return boom })
	if err := v.Frame(context.Background()); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}

func TestVM_Remain(t *testing.T) {
	v, _, clock := newTestVM(t)
	v.After(50, 1, func() error { return nil })
	clock.advance(200 * time.Millisecond)

	n, err := v.Remain(1)
	if err != nil {
		t.Fatalf("Remain: %v", err)
	}
	if n != 40 {
		t.Errorf("Remain: got %d, want 40", n)
	}
	if v.ActiveTimers() != 0 {
		t.Error("REMAIN should disable the timer")
	}
	if _, err := v.Remain(4); err == nil {
		t.Error("Remain(4) should fail")
	}
}

func TestVM_InputRedo(t *testing.T) {
	v, host, _ := newTestVM(t)
	host.answers = []string{"abc", "1, 2"}

	values, err := v.Input(context.Background(), "? ", "nn")
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if len(values) != 2 || values[0] != 1.0 || values[1] != 2.0 {
		t.Errorf("values: got %v", values)
	}
	if len(host.prompts) != 2 {
		t.Errorf("prompts: got %d, want 2", len(host.prompts))
	}
	v.Flush()
	want := "? abc\n?Redo from start\n? 1, 2\n"
	if got := host.out.String(); got != want {
		t.Errorf("echo: got %q, want %q", got, want)
	}
}

func TestVM_InputCanceled(t *testing.T) {
	v, _, _ := newTestVM(t)
	_, err := v.Input(context.Background(), "? ", "s")
	if !errors.Is(err, ErrInputCanceled) {
		t.Errorf("got %v, want ErrInputCanceled", err)
	}
}

func TestVM_LineInput(t *testing.T) {
	v, host, _ := newTestVM(t)
	host.answers = []string{"a, b"}
	values, err := v.Input(context.Background(), "name? ", "l")
	if err != nil {
		t.Fatalf("Input: %v", err)
	}
	if values[0] != "a, b" {
		t.Errorf("got %v", values)
	}
}

func TestVM_Inkey(t *testing.T) {
	v, _, _ := newTestVM(t)
	ctx := context.Background()
	v.PutKeys("ab")

	for _, want := range []string{"a", "b", ""} {
		got, err := v.Inkey(ctx)
		if err != nil {
			t.Fatalf("Inkey: %v", err)
		}
		if got != want {
			t.Errorf("Inkey: got %q, want %q", got, want)
		}
	}
	v.PutKeys("x")
	v.ClearKeys()
	if got, _ := v.Inkey(ctx); got != "" {
		t.Errorf("Inkey after clear: got %q", got)
	}
}

func TestVM_DrawMovePlotWithPen(t *testing.T) {
	v, host, _ := newTestVM(t)
	pen := 2
	if err := v.DrawMovePlot("L", 10, 10, &pen); err != nil {
		t.Fatalf("DrawMovePlot: %v", err)
	}
	v.Flush()
	if len(host.flushes) != 1 || !host.flushes[0].HasGraphics {
		t.Fatalf("expected a graphics flush, got %+v", host.flushes)
	}
	if !strings.Contains(host.out.String(), `stroke="#00FFFF"`) {
		t.Errorf("pen 2 not used: %s", host.out.String())
	}
}

func TestVM_TagPrintsToGraphics(t *testing.T) {
	v, host, _ := newTestVM(t)
	v.Tag(true)
	v.Print([]interface{}{"HI", "\n"})
	v.Tag(false)
	v.Flush()
	if !strings.Contains(host.out.String(), ">HI</text>") {
		t.Errorf("tagged text missing: %s", host.out.String())
	}
}

func TestVM_RndRepeatsOnZero(t *testing.T) {
	v, _, _ := newTestVM(t)
	first := v.Rnd(nil)
	zero := 0.0
	if again := v.Rnd(&zero); again != first {
		t.Errorf("RND(0): got %v, want %v", again, first)
	}
	if first < 0 || first >= 1 {
		t.Errorf("RND out of range: %v", first)
	}

	seed := -1.0
	a := v.Rnd(&seed)
	b := v.Rnd(&seed)
	if a != b {
		t.Errorf("negative argument should reseed: %v != %v", a, b)
	}
}

func TestVM_Time(t *testing.T) {
	v, _, clock := newTestVM(t)
	clock.advance(2 * time.Second)
	if got := v.Time(); got != 600 {
		t.Errorf("Time: got %d, want 600", got)
	}
}

func TestVM_ControlSignals(t *testing.T) {
	v, _, _ := newTestVM(t)
	if !errors.Is(v.End(), ErrEnded) || !IsSignal(v.End()) {
		t.Error("End should raise the end signal")
	}
	if !errors.Is(v.Stop(), ErrStopped) {
		t.Error("Stop should raise ErrStopped")
	}
	var be *BasicError
	if err := v.Error(11); !errors.As(err, &be) || be.Code != 11 {
		t.Errorf("Error(11): got %v", err)
	}
	if got := v.Error(11).Error(); got != "Error 11: Division by zero" {
		t.Errorf("message: got %q", got)
	}
	if IsSignal(v.Error(11)) {
		t.Error("runtime errors are not signals")
	}
}

func TestVM_InkChangesColors(t *testing.T) {
	v, host, _ := newTestVM(t)
	v.SetTerminal(false)
	if err := v.Ink(1, 6); err != nil {
		t.Fatalf("Ink: %v", err)
	}
	if err := v.Ink(1, 32); err == nil {
		t.Error("Ink with color 32 should fail")
	}
	v.Graphics().Circle(0, 0, 1, nil)
	v.Flush()
	if !strings.Contains(host.out.String(), `stroke="#FF0000"`) {
		t.Errorf("ink not applied: %s", host.out.String())
	}
}

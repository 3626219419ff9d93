package sandbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/locobasic/compiler"
	"github.com/chazu/locobasic/vm"
)

type fakeHandler struct {
	mu      sync.Mutex
	out     strings.Builder
	answers []string
	spoken  []string
	keyDefs [][]int
}

func (h *fakeHandler) Flush(f *Flush) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.out.WriteString(f.Message)
}

func (h *fakeHandler) Input(_ context.Context, _ string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.answers) == 0 {
		return "", false
	}
	a := h.answers[0]
	h.answers = h.answers[1:]
	return a, true
}

func (h *fakeHandler) Speak(_ context.Context, text string, _ float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spoken = append(h.spoken, text)
	return nil
}

func (h *fakeHandler) Geolocation(context.Context) (string, error) { return "1, 2", nil }

func (h *fakeHandler) KeyDef(codes []int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keyDefs = append(h.keyDefs, codes)
}

func (h *fakeHandler) output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.String()
}

func testOptions() vm.Options {
	opts := vm.DefaultOptions()
	opts.Terminal = true
	opts.FrameDuration = time.Millisecond
	return opts
}

func compile(t *testing.T, src string) string {
	t.Helper()
	script, err := compiler.New(compiler.Options{}).CompileScript(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return script
}

func TestController_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"print", `10 PRINT "HI"`, "HI\n"},
		{"for loop", "10 FOR I=1 TO 3:PRINT I:NEXT", " 1 \n 2 \n 3 \n"},
		{"read data", "10 DATA 1,2,3\n20 READ A,B,C\n30 PRINT A+B+C", " 6 \n"},
		{"gosub", "10 GOSUB 100:END\n100 PRINT \"SUB\":RETURN", "SUB\n"},
		{"restore", "10 READ A:RESTORE 30:READ B:PRINT A;B\n20 DATA 1\n30 DATA 2", " 1  2 \n"},
		{"while", "10 I=3:WHILE I>0:PRINT I;:I=I-1:WEND:PRINT", " 3  2  1 \n"},
		{"string functions", `10 A$="HELLO":PRINT LEFT$(A$,2);MID$(A$,2,3);LEN(A$)`, "HEELL 5 \n"},
		{"def fn", "10 DEF FNSQ(X)=X*X\n20 PRINT FNSQ(4)", " 16 \n"},
		{"frame in sub", "10 GOSUB 100:PRINT \"B\"\n20 END\n100 FRAME:PRINT \"A\":RETURN", "A\nB\n"},
		{"comparisons", `10 PRINT "a"<"b"; "a"="a"; 1=2`, "-1 -1  0 \n"},
		{"not of comparison", "10 PRINT NOT 1=2", "-1 \n"},
		{"restore label without data", "10 RESTORE 100:READ A:PRINT A\n20 DATA 1\n100 REM\n110 DATA 2", " 1 \n"},
		{"cint rounds half away from zero", "10 PRINT CINT(-2.5);CINT(2.5);CINT(-1.4)", "-3  3 -1 \n"},
		{"end in sub", "10 GOSUB 100:PRINT \"NO\"\n100 PRINT \"E\":END", "E\n"},
	}

	c := NewController(testOptions())
	defer c.Close()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &fakeHandler{}
			res, err := c.Run(context.Background(), compile(t, tt.src), h)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res != "" {
				t.Fatalf("result: got %q, want success", res)
			}
			if got := h.output(); got != tt.want {
				t.Errorf("output: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestController_EndInSubroutineFinishes(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	h := &fakeHandler{}
	res, err := c.Run(context.Background(), compile(t, "10 GOSUB 100:PRINT \"NO\"\n20 END\n100 GOSUB 200:RETURN\n200 FRAME:END"), h)
	if err != nil || res != "" {
		t.Fatalf("Run: %q, %v", res, err)
	}
	if c.State() != StateFinished {
		t.Errorf("state: got %s, want %s", c.State(), StateFinished)
	}
	if h.output() != "" {
		t.Errorf("output: got %q", h.output())
	}
}

func TestController_GraphicsOutput(t *testing.T) {
	opts := testOptions()
	opts.Terminal = false
	c := NewController(opts)
	defer c.Close()

	h := &fakeHandler{}
	res, err := c.Run(context.Background(), compile(t, "10 |CIRCLE,10,10,5"), h)
	if err != nil || res != "" {
		t.Fatalf("Run: %q, %v", res, err)
	}
	out := h.output()
	for _, want := range []string{"<svg ", `<circle cx="10" cy="389" r="5" stroke=`, `fill="none" />`, "</svg>"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}

func TestFormatResult(t *testing.T) {
	if got := formatResult(""); got != "ok" {
		t.Errorf("formatResult(\"\") = %q", got)
	}
	if got := formatResult("Error 5"); got != `"Error 5"` {
		t.Errorf("formatResult(Error 5) = %q", got)
	}
}

func TestController_RuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"error statement", "o.error(5);", "Error 5: Improper argument"},
		{"data exhausted", "o.read();", "Error 4: DATA exhausted"},
		{"reference error", "undefinedThing();", "ReferenceError"},
		{"syntax error", "this is not a script", "SyntaxError"},
		{"rsx count", `o.rsx("circle", [1]);`, "|CIRCLE: wrong number of arguments: got 1, want 3 to 4"},
	}

	c := NewController(testOptions())
	defer c.Close()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Run(context.Background(), tt.code, &fakeHandler{})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !strings.Contains(res, tt.want) {
				t.Errorf("result: got %q, want it to contain %q", res, tt.want)
			}
			if Visible(res) != res {
				t.Errorf("errors must stay visible: %q", res)
			}
		})
	}

	// The sandbox stays usable after errors.
	h := &fakeHandler{}
	if res, _ := c.Run(context.Background(), compile(t, `10 PRINT "OK"`), h); res != "" || h.output() != "OK\n" {
		t.Errorf("run after errors: result %q output %q", res, h.output())
	}
}

func TestController_Input(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	h := &fakeHandler{answers: []string{"BOB"}}
	res, err := c.Run(context.Background(), compile(t, `10 INPUT "NAME";N$:PRINT "HELLO ";N$`), h)
	if err != nil || res != "" {
		t.Fatalf("Run: %q, %v", res, err)
	}
	if got, want := h.output(), "NAME? BOB\nHELLO BOB\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}

	res, _ = c.Run(context.Background(), compile(t, `10 INPUT A`), &fakeHandler{})
	if res != vm.ErrInputCanceled.Error() {
		t.Errorf("canceled input: got %q", res)
	}
	if Visible(res) != "" {
		t.Error("input cancel should not be visible")
	}
}

func TestController_SpeechAndKeys(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	h := &fakeHandler{}
	res, err := c.Run(context.Background(), compile(t, "10 |SAY,\"HI\"\n20 KEY DEF 1,2,3"), h)
	if err != nil || res != "" {
		t.Fatalf("Run: %q, %v", res, err)
	}
	if len(h.spoken) != 1 || h.spoken[0] != "HI" {
		t.Errorf("spoken: %v", h.spoken)
	}
	if len(h.keyDefs) != 1 || len(h.keyDefs[0]) != 3 {
		t.Errorf("key defs: %v", h.keyDefs)
	}
}

func TestController_StopOnCancel(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	h := &fakeHandler{}
	res, err := c.Run(ctx, compile(t, "10 PRINT \"X\"\n20 WHILE 1:FRAME:WEND"), h)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res != vm.ErrStopped.Error() {
		t.Errorf("result: got %q, want %q", res, vm.ErrStopped.Error())
	}
	if Visible(res) != "" {
		t.Error("stop should not be visible")
	}
	if h.output() != "X\n" {
		t.Errorf("output before stop: %q", h.output())
	}
	if c.State() != StateStopped {
		t.Errorf("state: got %s", c.State())
	}
}

func TestController_Reset(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	type outcome struct {
		res string
		err error
	}
	script := compile(t, "10 WHILE 1:FRAME:WEND")
	done := make(chan outcome, 1)
	go func() {
		res, err := c.Run(context.Background(), script, &fakeHandler{})
		done <- outcome{res, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for c.State() != StateRunning {
		if time.Now().After(deadline) {
			t.Fatal("program did not start")
		}
		time.Sleep(time.Millisecond)
	}
	c.Reset()

	select {
	case o := <-done:
		if o.res != TerminatedResult || !errors.Is(o.err, vm.ErrTerminated) {
			t.Errorf("got %q, %v", o.res, o.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Reset")
	}

	h := &fakeHandler{}
	if res, err := c.Run(context.Background(), compile(t, `10 PRINT "AGAIN"`), h); err != nil || res != "" {
		t.Fatalf("run after reset: %q, %v", res, err)
	}
	if h.output() != "AGAIN\n" {
		t.Errorf("output after reset: %q", h.output())
	}
}

func TestController_TimersClearedAfterRun(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()

	h := &fakeHandler{}
	src := "10 EVERY 1 GOSUB 100\n20 FOR I=1 TO 100:FRAME:NEXT\n30 END\n100 PRINT \"T\";:RETURN"
	res, err := c.Run(context.Background(), compile(t, src), h)
	if err != nil || res != "" {
		t.Fatalf("Run: %q, %v", res, err)
	}
	if !strings.Contains(h.output(), "T") {
		t.Errorf("timer never ran: %q", h.output())
	}
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if n := w.vm.ActiveTimers(); n != 0 {
		t.Errorf("timers outlived the run: %d", n)
	}
}

func TestController_Busy(t *testing.T) {
	c := NewController(testOptions())
	defer c.Close()
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	if _, err := c.Run(context.Background(), "", &fakeHandler{}); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}
}

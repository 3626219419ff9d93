package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/chazu/locobasic/sandbox"
	"github.com/chazu/locobasic/syntaxcheck"
	"github.com/chazu/locobasic/vm"
)

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func cmdRun(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs, true)
	html := fs.Bool("html", false, "Emit HTML spans and SVG instead of plain text")
	keys := fs.String("keys", "", "Feed the keyboard buffer from this file or FIFO")
	timeout := fs.Duration("timeout", 0, "Stop the program after this long (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(stderr, "usage: %s run [options] <file.bas>\n", appName)
		return 2
	}
	file := fs.Arg(0)

	cfg, err := common.setup(fs, sourceDir(file))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	script, err := compileFile(cfg, file)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s: %v\n", appName, file, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	h := newTerminalHandler(stdin, stdout, stderr)
	defer h.Close()

	opts := cfg.RuntimeOptions(true)
	if *html {
		opts.Terminal = false
	}
	ctrl := sandbox.NewController(opts)
	defer ctrl.Close()

	result, err := runProgram(ctx, ctrl, script, h, *keys)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	if result == vm.ErrStopped.Error() {
		fmt.Fprintln(stderr, "Break")
		return 0
	}
	if msg := sandbox.Visible(result); msg != "" {
		fmt.Fprintln(stderr, msg)
		return 1
	}
	return 0
}

// runProgram runs script and, when keysPath is set, pumps that file into
// the keyboard buffer until the program finishes.
func runProgram(ctx context.Context, ctrl *sandbox.Controller, script string, h sandbox.Handler, keysPath string) (string, error) {
	var keys *os.File
	if keysPath != "" {
		f, err := os.Open(keysPath)
		if err != nil {
			return "", err
		}
		keys = f
		defer keys.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	var result string
	g.Go(func() error {
		defer finish()
		res, err := ctrl.Run(gctx, script, h)
		result = res
		return err
	})
	if keys != nil {
		g.Go(func() error {
			// Closing the file unblocks a pending read on a FIFO.
			go func() {
				<-runCtx.Done()
				keys.Close()
			}()
			return pumpKeys(runCtx, ctrl, keys)
		})
	}
	err := g.Wait()
	return result, err
}

func pumpKeys(ctx context.Context, ctrl *sandbox.Controller, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if perr := ctrl.PutKeys(string(buf[:n])); perr != nil {
				log.Debugf("keys dropped: %s", perr)
			}
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// Terminal host
// ---------------------------------------------------------------------------

// terminalHandler renders a run on a terminal or on plain streams. INPUT is
// read with line editing when stdin is a terminal.
type terminalHandler struct {
	out    io.Writer
	errOut io.Writer
	ansi   bool

	ln *liner.State
	in *bufio.Reader

	// pendingEcho is the prompt and answer the VM will echo; the terminal
	// already shows them.
	pendingEcho string
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newTerminalHandler(stdin io.Reader, stdout, stderr io.Writer) *terminalHandler {
	h := &terminalHandler{out: stdout, errOut: stderr, ansi: isTerminal(stdout)}
	if isTerminal(stdin) && h.ansi {
		h.ln = liner.NewLiner()
		h.ln.SetCtrlCAborts(true)
	} else {
		h.in = bufio.NewReader(stdin)
	}
	return h
}

// Close restores the terminal mode.
func (h *terminalHandler) Close() {
	if h.ln != nil {
		h.ln.Close()
	}
}

func (h *terminalHandler) Flush(f *sandbox.Flush) {
	msg := f.Message
	if h.pendingEcho != "" {
		msg = strings.TrimPrefix(msg, h.pendingEcho)
		h.pendingEcho = ""
	}
	if f.NeedCls && h.ansi {
		io.WriteString(h.out, "\x1b[2J\x1b[H")
	}
	io.WriteString(h.out, msg)
}

func (h *terminalHandler) Input(ctx context.Context, prompt string) (string, bool) {
	if h.ln != nil {
		answer, err := h.ln.Prompt(prompt)
		if err != nil {
			return "", false
		}
		h.ln.AppendHistory(answer)
		h.pendingEcho = prompt + answer + "\n"
		return answer, true
	}
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func (h *terminalHandler) Speak(ctx context.Context, text string, pitch float64) error {
	fmt.Fprintf(h.errOut, "[speak pitch=%g] %s\n", pitch, text)
	return nil
}

func (h *terminalHandler) Geolocation(ctx context.Context) (string, error) {
	return "", errors.New("geolocation is not available in the terminal")
}

func (h *terminalHandler) KeyDef(codes []int) {
	log.Debugf("KEY DEF %v ignored", codes)
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func cmdCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "usage: %s check [options] <file.bas>...\n", appName)
		return 2
	}
	cfg, err := common.setup(fs, sourceDir(fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}

	checker := syntaxcheck.NewQueueChecker()
	defer checker.Close()

	failed := 0
	for _, file := range fs.Args() {
		script, err := compileFile(cfg, file)
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", file, err)
			failed++
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		diag, err := checker.Check(ctx, script)
		cancel()
		switch {
		case err != nil:
			fmt.Fprintf(stderr, "%s: %s: %v\n", appName, file, err)
			failed++
		case diag != nil:
			fmt.Fprintf(stdout, "%s: generated script: %s\n", file, diag)
			failed++
		default:
			fmt.Fprintf(stdout, "%s: ok\n", file)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chazu/locobasic/vm"
)

// TerminatedResult is the result of a run cut short by Reset. It cannot be
// produced by a program.
var TerminatedResult = vm.ErrTerminated.Error()

// Handler is the host side of a run: it renders output and answers the
// worker's requests.
type Handler interface {
	Flush(f *Flush)
	// Input returns the answer, or ok false when the user canceled.
	Input(ctx context.Context, prompt string) (answer string, ok bool)
	Speak(ctx context.Context, text string, pitch float64) error
	Geolocation(ctx context.Context) (string, error)
	KeyDef(codes []int)
}

// Controller drives a worker from the host side. One run at a time.
type Controller struct {
	opts vm.Options

	mu      sync.Mutex
	worker  *Worker
	running bool
}

// NewController creates a controller. The worker is started lazily.
func NewController(opts vm.Options) *Controller {
	return &Controller{opts: opts}
}

func (c *Controller) current() *Worker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		c.worker = NewWorker(c.opts)
	}
	return c.worker
}

func (c *Controller) send(m HostMessage) error {
	data, err := EncodeHostMessage(m)
	if err != nil {
		return err
	}
	return c.current().Send(data)
}

// Run executes a compiled script and returns its result text. A run torn
// down by Reset returns TerminatedResult and vm.ErrTerminated; cancelling
// ctx stops the program.
func (c *Controller) Run(ctx context.Context, code string, h Handler) (string, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	w := c.current()
	if err := c.send(&Run{Code: code}); err != nil {
		return TerminatedResult, err
	}
	cancel := ctx.Done()
	for {
		select {
		case data := <-w.Messages():
			msg, err := DecodeWorkerMessage(data)
			if err != nil {
				return "", err
			}
			if res, done := c.handle(ctx, w, msg, h); done {
				return res, nil
			}
		case <-w.Terminated():
			return TerminatedResult, vm.ErrTerminated
		case <-cancel:
			cancel = nil
			c.reply(w, &Stop{})
		}
	}
}

// handle dispatches one worker message. done is true for the final result.
func (c *Controller) handle(ctx context.Context, w *Worker, msg WorkerMessage, h Handler) (string, bool) {
	switch m := msg.(type) {
	case *Flush:
		h.Flush(m)
	case *InputRequest:
		answer, ok := h.Input(ctx, m.Prompt)
		c.reply(w, &InputReply{Input: answer, Canceled: !ok})
	case *Speak:
		err := h.Speak(ctx, m.Message, m.Pitch)
		c.reply(w, continuation("", err))
	case *Geolocation:
		pos, err := h.Geolocation(ctx)
		c.reply(w, continuation(pos, err))
	case *KeyDef:
		h.KeyDef(m.Codes)
	case *Result:
		return m.Result, true
	default:
		log.Errorf("unhandled worker message %T", msg)
	}
	return "", false
}

func continuation(result string, err error) *Continue {
	if err != nil {
		return &Continue{Error: err.Error()}
	}
	return &Continue{Result: result}
}

func (c *Controller) reply(w *Worker, m HostMessage) {
	data, err := EncodeHostMessage(m)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	if err := w.Send(data); err != nil {
		log.Debugf("reply dropped: %s", err)
	}
}

// Stop asks the running program to stop.
func (c *Controller) Stop() error { return c.send(&Stop{}) }

// PutKeys feeds the keyboard buffer of the running program.
func (c *Controller) PutKeys(keys string) error { return c.send(&PutKeys{Keys: keys}) }

// Configure sets the output mode for subsequent runs.
func (c *Controller) Configure(terminal bool) error {
	c.mu.Lock()
	c.opts.Terminal = terminal
	c.mu.Unlock()
	return c.send(&Config{IsTerminal: terminal})
}

// Reset terminates the worker. A pending Run returns TerminatedResult; the
// next Run starts a fresh worker.
func (c *Controller) Reset() {
	c.mu.Lock()
	w := c.worker
	c.worker = nil
	c.mu.Unlock()
	if w != nil {
		w.Terminate()
	}
}

// Close releases the worker.
func (c *Controller) Close() { c.Reset() }

// State returns the worker state, or StateIdle without a worker.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.worker == nil {
		return StateIdle
	}
	return c.worker.State()
}

// Visible returns the part of a result to show to the user: control
// signals such as a stop are hidden.
func Visible(result string) string {
	if strings.HasPrefix(result, vm.InfoPrefix) || result == TerminatedResult {
		return ""
	}
	return result
}

// formatResult renders a result for logs.
func formatResult(result string) string {
	if result == "" {
		return "ok"
	}
	return fmt.Sprintf("%q", result)
}

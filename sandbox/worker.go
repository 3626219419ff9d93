package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/locobasic/vm"
)

var log = commonlog.GetLogger("locobasic.sandbox")

// State is the lifecycle state of a worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateAwaitingInput
	StateAwaitingSpeech
	StateAwaitingGeolocation
	StateFinished
	StateStopped
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAwaitingInput:
		return "awaiting input"
	case StateAwaitingSpeech:
		return "awaiting speech"
	case StateAwaitingGeolocation:
		return "awaiting geolocation"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrBusy is returned when a run is started while another is in flight.
var ErrBusy = errors.New("sandbox: a program is already running")

// Worker owns one VM and one goja runtime per run. All interpretation
// happens on the run goroutine; the host talks to it only through encoded
// messages.
type Worker struct {
	vm *vm.VM

	inbox  chan []byte
	outbox chan []byte

	runs   chan *Run
	inputs chan *InputReply
	conts  chan *Continue

	terminal atomic.Bool
	state    atomic.Int32

	mu sync.Mutex
	rt *goja.Runtime

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a worker and starts its goroutines.
func NewWorker(opts vm.Options) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		inbox:  make(chan []byte, 64),
		outbox: make(chan []byte, 64),
		runs:   make(chan *Run, 1),
		inputs: make(chan *InputReply, 1),
		conts:  make(chan *Continue, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.terminal.Store(opts.Terminal)
	w.vm = vm.New(workerHost{w}, opts)
	go w.pump()
	go w.loop()
	return w
}

// Send delivers an encoded host message.
func (w *Worker) Send(data []byte) error {
	select {
	case w.inbox <- data:
		return nil
	case <-w.ctx.Done():
		return vm.ErrTerminated
	}
}

// Messages returns the encoded worker messages.
func (w *Worker) Messages() <-chan []byte { return w.outbox }

// Terminated is closed when the worker has been torn down.
func (w *Worker) Terminated() <-chan struct{} { return w.ctx.Done() }

// Done is closed when the run goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// Terminate tears the worker down. A running script is interrupted.
func (w *Worker) Terminate() {
	w.setState(StateTerminated)
	w.cancel()
	w.vm.RequestStop()
	w.mu.Lock()
	if w.rt != nil {
		w.rt.Interrupt(vm.ErrTerminated)
	}
	w.mu.Unlock()
}

// pump decodes host messages. Everything that touches interpreter state is
// handed to the run goroutine.
func (w *Worker) pump() {
	for {
		select {
		case data := <-w.inbox:
			msg, err := DecodeHostMessage(data)
			if err != nil {
				log.Errorf("%s", err)
				continue
			}
			w.dispatch(msg)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) dispatch(msg HostMessage) {
	switch m := msg.(type) {
	case *Run:
		select {
		case w.runs <- m:
		default:
			log.Warningf("run dropped: %s", ErrBusy)
		}
	case *Stop:
		w.vm.RequestStop()
	case *PutKeys:
		w.vm.PutKeys(m.Keys)
	case *InputReply:
		offer(w.inputs, m)
	case *Continue:
		offer(w.conts, m)
	case *Config:
		w.terminal.Store(m.IsTerminal)
	default:
		log.Errorf("unhandled host message %T", msg)
	}
}

// offer replaces any unconsumed value in a one-slot channel.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case r := <-w.runs:
			w.execute(r)
		case <-w.ctx.Done():
			return
		}
	}
}

// execute runs one program to completion and reports its result.
func (w *Worker) execute(r *Run) {
	id := uuid.NewString()
	log.Debugf("run %s: start (%d bytes)", id, len(r.Code))
	drain(w.inputs)
	drain(w.conts)

	w.vm.SetTerminal(w.terminal.Load())
	w.vm.ResetAll()
	w.setState(StateRunning)

	err := w.runScript(r.Code)

	w.vm.Flush()
	w.vm.ClearTimers()
	w.mu.Lock()
	w.rt = nil
	w.mu.Unlock()

	result := ""
	switch {
	case w.ctx.Err() != nil:
		return
	case err == nil, errors.Is(err, vm.ErrEnded):
		// END inside a subroutine unwinds as a signal but is a normal finish.
		w.setState(StateFinished)
	case vm.IsSignal(err):
		w.setState(StateStopped)
		result = err.Error()
	default:
		w.setState(StateFinished)
		result = err.Error()
	}
	log.Debugf("run %s: %s %s", id, w.State(), formatResult(result))
	w.post(&Result{Result: result, RunID: id})
}

// runScript wraps the script as an async function of o and drives it. The
// goja job queue is drained before the call returns, so the promise is
// settled unless the script awaited something that never resolves.
func (w *Worker) runScript(code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	rt := goja.New()
	w.mu.Lock()
	w.rt = rt
	w.mu.Unlock()
	if w.ctx.Err() != nil {
		return vm.ErrTerminated
	}

	b := vm.Bind(rt, w.vm, w.ctx)
	val, err := rt.RunString(vm.WrapScript(code))
	if err != nil {
		return scriptError(err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return errors.New("script did not evaluate to a function")
	}
	res, err := fn(goja.Undefined(), b.Object())
	if err != nil {
		return scriptError(err)
	}
	if p, ok := res.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateRejected:
			return vm.ValueError(p.Result())
		case goja.PromiseStatePending:
			return errors.New("program did not complete")
		}
	}
	return b.PendingError()
}

// scriptError reduces a goja error to the error a native raised, or to the
// thrown value without a stack trace.
func scriptError(err error) error {
	var intr *goja.InterruptedError
	if errors.As(err, &intr) {
		return vm.ErrTerminated
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if inner := exc.Unwrap(); inner != nil {
			return inner
		}
		return vm.ValueError(exc.Value())
	}
	return err
}

func (w *Worker) post(m WorkerMessage) {
	data, err := EncodeWorkerMessage(m)
	if err != nil {
		log.Errorf("%s", err)
		return
	}
	select {
	case w.outbox <- data:
	case <-w.ctx.Done():
	}
}

// workerHost implements vm.Host over the message protocol.
type workerHost struct{ w *Worker }

func (h workerHost) Flush(ev vm.FlushEvent) {
	h.w.post(&Flush{Message: ev.Message, NeedCls: ev.NeedCls, HasGraphics: ev.HasGraphics})
}

func (h workerHost) Input(ctx context.Context, prompt string) (string, bool, error) {
	h.w.setState(StateAwaitingInput)
	defer h.w.setState(StateRunning)
	h.w.post(&InputRequest{Prompt: prompt})
	select {
	case r := <-h.w.inputs:
		return r.Input, !r.Canceled, nil
	case <-h.w.vm.StopChannel():
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (h workerHost) await(ctx context.Context, state State, m WorkerMessage) (string, error) {
	h.w.setState(state)
	defer h.w.setState(StateRunning)
	h.w.post(m)
	select {
	case c := <-h.w.conts:
		if c.Error != "" {
			return "", errors.New(c.Error)
		}
		return c.Result, nil
	case <-h.w.vm.StopChannel():
		return "", vm.ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h workerHost) Speak(ctx context.Context, text string, pitch float64) error {
	_, err := h.await(ctx, StateAwaitingSpeech, &Speak{Message: text, Pitch: pitch})
	return err
}

func (h workerHost) Geolocation(ctx context.Context) (string, error) {
	return h.await(ctx, StateAwaitingGeolocation, &Geolocation{})
}

func (h workerHost) KeyDef(codes []int) {
	h.w.post(&KeyDef{Codes: codes})
}

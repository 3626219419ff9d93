package server

import (
	"fmt"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// WorkspaceWorker owns the workspace and runs every document operation on
// one goroutine. Compilers keep per-document incremental state and are not
// safe for concurrent use.
type WorkspaceWorker struct {
	ws       *Workspace
	requests chan workRequest
	quit     chan struct{}
}

type workRequest struct {
	fn   func(*Workspace)
	done chan error
}

// NewWorkspaceWorker creates a worker and starts the processing goroutine.
func NewWorkspaceWorker(ws *Workspace) *WorkspaceWorker {
	w := &WorkspaceWorker{
		ws:       ws,
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *WorkspaceWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the workspace. A panic in the compiler or an analysis
// pass becomes an error for that request only.
func (w *WorkspaceWorker) execute(fn func(*Workspace)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	fn(w.ws)
	return nil
}

// run submits fn and blocks until it completes. Results travel through
// variables captured by fn.
func (w *WorkspaceWorker) run(fn func(*Workspace)) error {
	req := workRequest{fn: fn, done: make(chan error, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return errStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-w.quit:
		return errStopped
	}
}

// Open compiles a newly opened document and returns its diagnostics.
func (w *WorkspaceWorker) Open(uri protocol.DocumentUri, version protocol.Integer, text string) ([]protocol.Diagnostic, error) {
	var diagnostics []protocol.Diagnostic
	err := w.run(func(ws *Workspace) {
		diagnostics = ws.Open(uri, version, text).Diagnostics()
	})
	return diagnostics, err
}

// Change applies edits to an open document and returns its diagnostics.
func (w *WorkspaceWorker) Change(uri protocol.DocumentUri, version protocol.Integer, changes []any) ([]protocol.Diagnostic, error) {
	var diagnostics []protocol.Diagnostic
	var changeErr error
	err := w.run(func(ws *Workspace) {
		var d *Document
		if d, changeErr = ws.Change(uri, version, changes); changeErr == nil {
			diagnostics = d.Diagnostics()
		}
	})
	if err != nil {
		return nil, err
	}
	return diagnostics, changeErr
}

// Close forgets a document.
func (w *WorkspaceWorker) Close(uri protocol.DocumentUri) error {
	return w.run(func(ws *Workspace) { ws.Close(uri) })
}

// Opened reports whether uri is an open document.
func (w *WorkspaceWorker) Opened(uri protocol.DocumentUri) (bool, error) {
	var ok bool
	err := w.run(func(ws *Workspace) { ok = ws.Document(uri) != nil })
	return ok, err
}

func (w *WorkspaceWorker) Completions(uri protocol.DocumentUri, pos protocol.Position) ([]protocol.CompletionItem, error) {
	var items []protocol.CompletionItem
	err := w.run(func(ws *Workspace) { items = ws.Completions(uri, pos) })
	return items, err
}

func (w *WorkspaceWorker) Hover(uri protocol.DocumentUri, pos protocol.Position) (*protocol.Hover, error) {
	var h *protocol.Hover
	err := w.run(func(ws *Workspace) { h = ws.Hover(uri, pos) })
	return h, err
}

func (w *WorkspaceWorker) Definition(uri protocol.DocumentUri, pos protocol.Position) ([]protocol.Location, error) {
	var locs []protocol.Location
	err := w.run(func(ws *Workspace) { locs = ws.Definition(uri, pos) })
	return locs, err
}

func (w *WorkspaceWorker) References(uri protocol.DocumentUri, pos protocol.Position) ([]protocol.Location, error) {
	var locs []protocol.Location
	err := w.run(func(ws *Workspace) { locs = ws.References(uri, pos) })
	return locs, err
}

// Stop shuts down the worker goroutine.
func (w *WorkspaceWorker) Stop() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
}

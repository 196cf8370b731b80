package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine"
)

var errQueueFull = errors.New("script queue full")

// ErrContextReleased completes evaluations whose context was released by a
// navigation. It wraps engine.ErrNotReady.
var ErrContextReleased = fmt.Errorf("%w: script context released", engine.ErrNotReady)

// pageHost receives the native calls a page makes
type pageHost interface {
	pageMessage(frameID string, payload []byte)
	pagePrint(frameID string)
	pageAlert(frameID, message string)
	pageUncaught(frameID, message, source string)
}

type job struct {
	code     string
	cb       engine.ScriptCallback
	uncaught bool
}

// Page is one frame's script context: a goja VM owned by a single worker
// goroutine. Evaluations are queued and run in order.
type Page struct {
	id     string
	url    string
	config Config
	host   pageHost
	vm     *goja.Runtime

	mu      sync.Mutex
	queue   []job
	running bool
	closed  bool
	discard bool
	notify  chan struct{}
	done    chan struct{}

	consoleMu sync.Mutex
	console   []LogEntry
}

func newPage(id, url string, doc Document, config Config, host pageHost) (*Page, error) {
	p := &Page{
		id:     id,
		url:    url,
		config: config,
		host:   host,
		vm:     goja.New(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	p.vm.SetMaxCallStackSize(1024)
	if err := p.setupGlobals(doc); err != nil {
		return nil, fmt.Errorf("failed to set up page globals: %w", err)
	}

	go p.loop()
	return p, nil
}

// ID returns the frame id
func (p *Page) ID() string { return p.id }

// URL returns the URL the context was created for
func (p *Page) URL() string { return p.url }

// setupGlobals configures the page's global object
func (p *Page) setupGlobals(doc Document) error {
	vm := p.vm

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	// Native window members live on the prototype, so a page-level
	// assignment shadows them and a delete restores them.
	proto := vm.NewObject()
	if err := proto.Set("print", func(goja.FunctionCall) goja.Value {
		p.host.pagePrint(p.id)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := proto.Set("alert", func(call goja.FunctionCall) goja.Value {
		p.host.pageAlert(p.id, call.Argument(0).String())
		return goja.Undefined()
	}); err != nil {
		return err
	}
	global := vm.GlobalObject()
	if err := global.SetPrototype(proto); err != nil {
		return err
	}
	if err := vm.Set("window", global); err != nil {
		return err
	}

	document := vm.NewObject()
	_ = document.Set("title", doc.Title)
	_ = vm.Set("document", document)

	location := vm.NewObject()
	_ = location.Set("href", p.url)
	_ = vm.Set("location", location)

	channel := vm.NewObject()
	_ = channel.Set("postMessage", p.postMessage)
	_ = vm.Set(engine.MessageChannel, channel)

	if p.config.EnableConsole {
		console := vm.NewObject()
		_ = console.Set("log", p.makeConsoleFunc("log"))
		_ = console.Set("warn", p.makeConsoleFunc("warn"))
		_ = console.Set("error", p.makeConsoleFunc("error"))
		_ = console.Set("info", p.makeConsoleFunc("info"))
		_ = vm.Set("console", console)
	}

	// Timers are no-ops
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = vm.Set("setTimeout", noop)
	_ = vm.Set("setInterval", noop)

	return nil
}

// postMessage forwards a page message to the host. Objects are serialized
// with the page's own JSON.stringify.
func (p *Page) postMessage(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) {
		return goja.Undefined()
	}

	var payload string
	if s, ok := arg.Export().(string); ok {
		payload = s
	} else {
		stringify, ok := goja.AssertFunction(p.vm.Get("JSON").ToObject(p.vm).Get("stringify"))
		if !ok {
			return goja.Undefined()
		}
		v, err := stringify(goja.Undefined(), arg)
		if err != nil {
			return goja.Undefined()
		}
		payload = v.String()
	}

	p.host.pageMessage(p.id, []byte(payload))
	return goja.Undefined()
}

// makeConsoleFunc creates a console function
func (p *Page) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}

		p.consoleMu.Lock()
		p.console = append(p.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		p.consoleMu.Unlock()

		return goja.Undefined()
	}
}

// Console returns a copy of the console output so far
func (p *Page) Console() []LogEntry {
	p.consoleMu.Lock()
	defer p.consoleMu.Unlock()
	return append([]LogEntry(nil), p.console...)
}

// enqueue schedules code. It never blocks; cb is always called unless the
// page is closed first.
func (p *Page) enqueue(j job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if j.cb != nil {
			j.cb(engine.Failed(engine.ErrNotReady))
		}
		return
	}
	if p.config.QueueLimit > 0 && len(p.queue) >= p.config.QueueLimit {
		p.mu.Unlock()
		if j.cb != nil {
			j.cb(engine.Failed(errQueueFull))
		}
		return
	}
	p.queue = append(p.queue, j)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Page) pop() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.queue) == 0 {
		p.running = false
		return job{}, false
	}
	j := p.queue[0]
	p.queue = p.queue[1:]
	p.running = true
	return j, true
}

// idle reports whether nothing is queued or running
func (p *Page) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || (len(p.queue) == 0 && !p.running)
}

func (p *Page) loop() {
	for {
		select {
		case <-p.done:
			p.drain()
			return
		case <-p.notify:
		}
		for {
			j, ok := p.pop()
			if !ok {
				break
			}
			res := p.execute(j.code)
			if p.isClosed() {
				p.release(j)
				continue
			}
			if !res.Success && j.uncaught {
				p.host.pageUncaught(p.id, res.Message, p.url)
			}
			if j.cb != nil {
				j.cb(res)
			}
		}
	}
}

// drain completes every job still queued when the context went away
func (p *Page) drain() {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.running = false
	p.mu.Unlock()
	for _, j := range queue {
		p.release(j)
	}
}

// release fails j with ErrContextReleased unless the page was discarded
func (p *Page) release(j job) {
	p.mu.Lock()
	discard := p.discard
	p.mu.Unlock()
	if j.cb != nil && !discard {
		j.cb(engine.Failed(ErrContextReleased))
	}
}

// execute runs code with the configured timeout
func (p *Page) execute(code string) engine.ScriptResult {
	stop := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		if p.config.ScriptTimeout <= 0 {
			select {
			case <-p.done:
				p.vm.Interrupt("context released")
			case <-stop:
			}
			return
		}
		timer := time.NewTimer(p.config.ScriptTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			p.vm.Interrupt("execution timeout exceeded")
		case <-p.done:
			p.vm.Interrupt("context released")
		case <-stop:
		}
	}()

	val, err := p.vm.RunString(code)
	close(stop)
	<-exited
	p.vm.ClearInterrupt()

	if err != nil {
		return engine.ScriptResult{Success: false, Message: scriptErrorMessage(err), Err: err}
	}
	return engine.ScriptResult{Success: true, Value: exportValue(val)}
}

func scriptErrorMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Value().String()
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	return err.Error()
}

// exportValue converts goja value to Go value
func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Release destroys the context after a navigation. Queued and running
// evaluations complete with ErrContextReleased.
func (p *Page) Release() {
	p.shutdown(false)
}

// Close destroys the context when the engine shuts down. Pending
// evaluations are dropped without calling their callbacks.
func (p *Page) Close() {
	p.shutdown(true)
}

func (p *Page) shutdown(discard bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.discard = discard
	if discard {
		p.queue = nil
	}
	p.mu.Unlock()
	close(p.done)
}

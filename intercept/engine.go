// Package intercept owns the loader dispatch slot while a session is
// attached. Loader calls made by the target reach a substitute table that
// observes them; calls made while a thread is inside a passthrough scope
// reach the original table, so the substitutes (and the real loader, when it
// calls back into itself) never recurse into interception.
//
// Passthrough depth is tracked per OS thread. One thread's real-loader call
// does not suspend interception for any other thread.
package intercept

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sliverarmory/chronohook/dlfcn"
	"github.com/sliverarmory/chronohook/logging"
	"github.com/sliverarmory/chronohook/registry"
	"github.com/sliverarmory/chronohook/thread"
)

type threadState struct {
	depth atomic.Int32
}

type Engine struct {
	slot     *dlfcn.Slot
	registry *registry.Registry
	log      *logging.Logger
	threadID func() int

	mu        sync.Mutex
	armed     bool
	installed bool
	original  dlfcn.Table

	// thread id -> *threadState, present only while depth > 0
	states sync.Map

	substitute *substitute
	router     *router
}

type Option func(*Engine)

// WithThreadID replaces the OS thread id used to key passthrough state.
func WithThreadID(id func() int) Option {
	return func(e *Engine) {
		e.threadID = id
	}
}

func New(slot *dlfcn.Slot, reg *registry.Registry, logger *logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	if reg == nil {
		reg = registry.New(registry.WithLogger(logger))
	}
	e := &Engine{
		slot:     slot,
		registry: reg,
		log:      logger,
		threadID: thread.ID,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.substitute = &substitute{engine: e}
	e.router = &router{engine: e}
	return e
}

// Install saves the slot's current table and routes the slot through the
// engine. Only the first call has any effect, even after Uninstall.
func (e *Engine) Install() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed {
		e.log.Debug(logging.Hook, "interception already installed, ignoring")
		return
	}
	e.armed = true
	e.installed = true
	e.original = e.slot.Swap(e.router)
	e.log.Debug(logging.Hook, "installed loader interception")
}

// Uninstall puts the saved table back in the slot, whatever the passthrough
// depth of any thread. Open passthrough scopes still unwind normally.
func (e *Engine) Uninstall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.installed {
		return
	}
	e.installed = false
	e.slot.Store(e.original)
	e.log.Debug(logging.Hook, "restored original loader table")
}

func (e *Engine) Installed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installed
}

// Real returns the table the engine forwards to in passthrough. Before
// Install that is whatever the slot holds.
func (e *Engine) Real() dlfcn.Table {
	e.mu.Lock()
	original := e.original
	e.mu.Unlock()
	if original != nil {
		return original
	}
	return e.slot.Load()
}

func (e *Engine) state(create bool) *threadState {
	tid := e.threadID()
	if v, ok := e.states.Load(tid); ok {
		return v.(*threadState)
	}
	if !create {
		return nil
	}
	v, _ := e.states.LoadOrStore(tid, new(threadState))
	return v.(*threadState)
}

// Enter starts a passthrough scope on the calling thread. The goroutine is
// pinned to its OS thread until the matching Leave.
func (e *Engine) Enter() {
	runtime.LockOSThread()
	st := e.state(true)
	if st.depth.Add(1) == 1 {
		e.log.Debug(logging.Hook|logging.Frequent, "passthrough on")
	}
}

// Leave ends the innermost passthrough scope. A Leave without a matching
// Enter is logged and otherwise ignored.
func (e *Engine) Leave() {
	tid := e.threadID()
	v, ok := e.states.Load(tid)
	if !ok || v.(*threadState).depth.Load() == 0 {
		e.log.Debug(logging.Error|logging.Hook, "passthrough leave without matching enter")
		return
	}
	if v.(*threadState).depth.Add(-1) == 0 {
		e.states.Delete(tid)
		e.log.Debug(logging.Hook|logging.Frequent, "passthrough off")
	}
	runtime.UnlockOSThread()
}

// Passthrough enters a passthrough scope and returns the function that
// leaves it:
//
//	defer engine.Passthrough()()
func (e *Engine) Passthrough() func() {
	e.Enter()
	return e.Leave
}

// Depth is the calling thread's passthrough nesting count.
func (e *Engine) Depth() int {
	if st := e.state(false); st != nil {
		return int(st.depth.Load())
	}
	return 0
}

// Intercepting reports whether loader calls from the calling thread reach
// the substitute table.
func (e *Engine) Intercepting() bool {
	return e.Depth() == 0
}

func (e *Engine) active() dlfcn.Table {
	if e.Intercepting() {
		return e.substitute
	}
	return e.Real()
}

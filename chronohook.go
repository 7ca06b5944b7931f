// Package chronohook attaches deterministic timing to a process: it takes
// over the loader dispatch slot, records every library the target loads,
// and folds the main thread's sleeps into a logical clock the driver
// advances once per frame.
package chronohook

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/sliverarmory/chronohook/config"
	"github.com/sliverarmory/chronohook/dettime"
	"github.com/sliverarmory/chronohook/dlfcn"
	"github.com/sliverarmory/chronohook/frame"
	"github.com/sliverarmory/chronohook/intercept"
	"github.com/sliverarmory/chronohook/logging"
	"github.com/sliverarmory/chronohook/registry"
	"github.com/sliverarmory/chronohook/resolver"
	"github.com/sliverarmory/chronohook/sleep"
	"github.com/sliverarmory/chronohook/thread"
)

var (
	ErrSessionClosed  = errors.New("chronohook: session is closed")
	ErrSymbolNotFound = errors.New("chronohook: symbol not found")
)

type options struct {
	slot     *dlfcn.Slot
	fs       afero.Fs
	sleeper  sleep.Sleeper
	out      io.Writer
	threadID func() int
}

type Option func(*options)

// WithSlot attaches to slot instead of dlfcn.Process.
func WithSlot(slot *dlfcn.Slot) Option {
	return func(o *options) {
		o.slot = slot
	}
}

// WithFs reads the memory map from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithSleeper overrides the real sleep implementation chosen by the config.
func WithSleeper(s sleep.Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

func WithThreadID(id func() int) Option {
	return func(o *options) {
		o.threadID = id
	}
}

type Session struct {
	id uuid.UUID

	mu     sync.RWMutex
	closed bool
	// OS thread the attaching goroutine is locked to until Close.
	pinned int

	log      *logging.Logger
	registry *registry.Registry
	engine   *intercept.Engine
	resolver *resolver.Resolver
	timer    *dettime.Timer
	threads  *thread.Tracker
	sleep    *sleep.Wrappers
	shadows  *frame.Shadows
}

// Attach builds a session and installs interception. The calling goroutine
// is locked to its OS thread, which becomes the main thread; Close must run
// on the same goroutine to release it. A nil cfg uses config.Default.
func Attach(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	runtime.LockOSThread()
	o := options{
		slot:     dlfcn.Process,
		fs:       afero.NewOsFs(),
		out:      os.Stderr,
		threadID: thread.ID,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	logger := logging.New(o.out, cfg.Level(), cfg.Categories()).With("session", id.String())

	reg := registry.New(registry.WithMemo(cfg.RegistryMemo), registry.WithLogger(logger))
	if cfg.SeedLibraries {
		n, err := reg.SeedFromMaps(o.fs, cfg.MapsPath)
		if err != nil {
			logger.Debug(logging.Error|logging.Registry, "could not seed loaded libraries: ", err)
		} else {
			logger.Debugf(logging.Registry, "seeded %d libraries from %s", n, cfg.MapsPath)
		}
	}

	threads := thread.NewTrackerWithID(o.threadID)
	engine := intercept.New(o.slot, reg, logger, intercept.WithThreadID(o.threadID))
	engine.Install()

	res := resolver.New(engine.Real(), reg, logger)
	timer := dettime.New(
		dettime.WithFrameRate(cfg.FrameRate),
		dettime.WithFoldPolicy(cfg.Policy()),
		dettime.WithLogger(logger),
	)

	sleeper := o.sleeper
	if sleeper == nil {
		switch cfg.RealSleep {
		case config.RealSleepSyscall:
			sleeper = sleep.Syscall()
		default:
			sleeper = sleep.Resolved(res)
		}
	}

	s := &Session{
		id:       id,
		pinned:   thread.ID(),
		log:      logger,
		registry: reg,
		engine:   engine,
		resolver: res,
		timer:    timer,
		threads:  threads,
		sleep:    sleep.New(timer, threads, threads, sleeper, logger),
		shadows:  frame.NewShadows(),
	}
	logger.Infof("attached: main thread %d, %d fps, %s fold", threads.MainThreadID(), cfg.FrameRate, cfg.Policy())
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Logger() *logging.Logger { return s.log }

func (s *Session) Registry() *registry.Registry { return s.registry }

func (s *Session) Engine() *intercept.Engine { return s.engine }

func (s *Session) Resolver() *resolver.Resolver { return s.resolver }

func (s *Session) Timer() *dettime.Timer { return s.timer }

func (s *Session) Threads() *thread.Tracker { return s.threads }

// Sleep returns the delay wrappers the hooks forward to.
func (s *Session) Sleep() *sleep.Wrappers { return s.sleep }

func (s *Session) Shadows() *frame.Shadows { return s.shadows }

// Native switches the calling thread to real timing until the returned
// function runs:
//
//	defer session.Native()()
func (s *Session) Native() func() {
	return s.threads.Native()
}

// Resolve looks up the real implementation of name through the session's
// resolver.
func (s *Session) Resolve(name, hint string) (uintptr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrSessionClosed
	}
	addr := s.resolver.Resolve(name, hint)
	if addr == 0 {
		return 0, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return addr, nil
}

// EnterFrameBoundary ends the current logical frame.
func (s *Session) EnterFrameBoundary() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	ticks := s.timer.Advance()
	s.log.Debugf(logging.Frame, "frame boundary %d at %s", s.timer.Frames(), ticks)
}

// SwapBuffers runs a real buffer swap and ends the frame.
func (s *Session) SwapBuffers(swap func()) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return ErrSessionClosed
	}
	frame.Swap(swap, s)
	return nil
}

// Close restores the loader table and unlocks the attaching goroutine from
// its thread. Called from any other goroutine the lock is left in place.
// Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.engine.Uninstall()
	if thread.ID() == s.pinned {
		runtime.UnlockOSThread()
	} else {
		s.log.Debugf(logging.Error, "session closed off the attaching thread %d, it stays locked", s.pinned)
	}
	s.log.Infof("detached after %d frames, %s folded", s.timer.Frames(), s.timer.Delayed())
	return nil
}

var _ frame.Boundary = (*Session)(nil)

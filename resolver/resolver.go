// Package resolver finds the real implementation of a hooked symbol. The
// default scope is searched first; when that misses and a hint is given, the
// first loaded library whose path contains the hint is opened and searched.
//
// Successful lookups are cached for the life of the Resolver. Failures are
// not: a library loaded later may still satisfy the symbol.
package resolver

import (
	"runtime"
	"sync"

	"github.com/sliverarmory/chronohook/dlfcn"
	"github.com/sliverarmory/chronohook/logging"
	"github.com/sliverarmory/chronohook/registry"
)

type Resolver struct {
	loader   dlfcn.Table
	registry *registry.Registry
	log      *logging.Logger

	mu    sync.Mutex
	cache map[string]uintptr
	// Libraries opened for hinted lookups stay open so cached addresses
	// remain valid.
	pinned map[string]dlfcn.Handle
}

// New resolves against loader. Pass the engine's Real table so lookups are
// never routed back through interception.
func New(loader dlfcn.Table, reg *registry.Registry, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Discard()
	}
	if reg == nil {
		reg = registry.New()
	}
	return &Resolver{
		loader:   loader,
		registry: reg,
		log:      logger,
		cache:    make(map[string]uintptr),
		pinned:   make(map[string]dlfcn.Handle),
	}
}

// Resolve returns the address of name, or 0 when it cannot be found. hint
// may be empty.
func (r *Resolver) Resolve(name, hint string) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if addr, ok := r.cache[name]; ok {
		return addr
	}

	// The loader's error state is per thread; drain it on the thread that set it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.log.Debugf(logging.Hook|logging.Resolve, "resolving %s", name)
	addr := r.loader.Sym(dlfcn.Default, name)
	if addr == 0 {
		_ = r.loader.Error()
		if hint != "" {
			addr = r.fromHint(name, hint)
		}
	}
	if addr == 0 {
		r.log.Debugf(logging.Error|logging.Resolve, "could not resolve %s", name)
		return 0
	}

	r.log.Debugf(logging.Resolve, "resolved %s at %#x", name, addr)
	r.cache[name] = addr
	return addr
}

func (r *Resolver) fromHint(name, hint string) uintptr {
	lib, ok := r.registry.Find(hint)
	if !ok {
		r.log.Debugf(logging.Resolve, "no loaded library matches %q", hint)
		return 0
	}
	handle, ok := r.pinned[lib]
	if !ok {
		handle = r.loader.Open(lib, dlfcn.Lazy)
		if handle == 0 {
			r.log.Debugf(logging.Error|logging.Resolve, "could not open %s: %s", lib, r.loader.Error())
			return 0
		}
		r.pinned[lib] = handle
	}
	addr := r.loader.Sym(handle, name)
	if addr == 0 {
		_ = r.loader.Error()
		return 0
	}
	r.log.Debugf(logging.Resolve, "found %s in %s", name, lib)
	return addr
}

// Cached reports the cached address of name without resolving it.
func (r *Resolver) Cached(name string) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.cache[name]
	return addr, ok
}

// Symbol is a handle on one hooked symbol.
type Symbol struct {
	resolver *Resolver
	name     string
	hint     string
}

func (r *Resolver) Symbol(name, hint string) *Symbol {
	return &Symbol{resolver: r, name: name, hint: hint}
}

func (s *Symbol) Name() string {
	return s.name
}

// Addr resolves the symbol on first use and returns 0 while it is missing.
func (s *Symbol) Addr() uintptr {
	return s.resolver.Resolve(s.name, s.hint)
}

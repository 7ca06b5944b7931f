package intercept

import (
	"unsafe"

	"github.com/sliverarmory/chronohook/dlfcn"
	"github.com/sliverarmory/chronohook/logging"
)

// router is what the slot holds while the engine is installed. Each call is
// dispatched to the calling thread's active table.
type router struct {
	engine *Engine
}

func (r *router) Open(file string, mode int) dlfcn.Handle {
	return r.engine.active().Open(file, mode)
}

func (r *router) Close(handle dlfcn.Handle) int {
	return r.engine.active().Close(handle)
}

func (r *router) Sym(handle dlfcn.Handle, name string) uintptr {
	return r.engine.active().Sym(handle, name)
}

func (r *router) VSym(handle dlfcn.Handle, name, version string) uintptr {
	return r.engine.active().VSym(handle, name, version)
}

func (r *router) Error() string {
	return r.engine.active().Error()
}

func (r *router) Addr(addr uintptr) (dlfcn.AddrInfo, bool) {
	return r.engine.active().Addr(addr)
}

func (r *router) Addr1(addr uintptr, flags int) (dlfcn.AddrInfo, uintptr, bool) {
	return r.engine.active().Addr1(addr, flags)
}

func (r *router) Info(handle dlfcn.Handle, request int, arg unsafe.Pointer) int {
	return r.engine.active().Info(handle, request, arg)
}

func (r *router) MOpen(ns dlfcn.Namespace, file string, mode int) dlfcn.Handle {
	return r.engine.active().MOpen(ns, file, mode)
}

// substitute is the table the target talks to. Every operation runs the real
// loader inside a passthrough scope.
type substitute struct {
	engine *Engine
}

func (s *substitute) real() dlfcn.Table {
	return s.engine.Real()
}

func (s *substitute) Open(file string, mode int) dlfcn.Handle {
	handle := s.open(file, mode)
	s.engine.log.Debugf(logging.Hook, "dlopen(%q, %#x) = %#x", file, mode, uintptr(handle))
	if handle != 0 && file != "" {
		s.engine.registry.Record(file)
	}
	return handle
}

func (s *substitute) open(file string, mode int) dlfcn.Handle {
	defer s.engine.Passthrough()()
	return s.real().Open(file, mode)
}

func (s *substitute) Close(handle dlfcn.Handle) int {
	s.engine.log.Debugf(logging.Hook, "dlclose(%#x)", uintptr(handle))
	defer s.engine.Passthrough()()
	return s.real().Close(handle)
}

// Sym searches the default scope before handle, so that a symbol already
// defined globally shadows the library's own definition.
func (s *substitute) Sym(handle dlfcn.Handle, name string) uintptr {
	defer s.engine.Passthrough()()
	loader := s.real()
	if addr := loader.Sym(dlfcn.Default, name); addr != 0 {
		s.engine.log.Debugf(logging.Hook|logging.Frequent, "dlsym(%#x, %s) = %#x from default scope", uintptr(handle), name, addr)
		return addr
	}
	// The default-scope miss left an error behind.
	_ = loader.Error()
	addr := loader.Sym(handle, name)
	s.engine.log.Debugf(logging.Hook|logging.Frequent, "dlsym(%#x, %s) = %#x", uintptr(handle), name, addr)
	return addr
}

func (s *substitute) VSym(handle dlfcn.Handle, name, version string) uintptr {
	s.engine.log.Debugf(logging.Hook|logging.Frequent, "dlvsym(%#x, %s, %s)", uintptr(handle), name, version)
	defer s.engine.Passthrough()()
	return s.real().VSym(handle, name, version)
}

func (s *substitute) Error() string {
	defer s.engine.Passthrough()()
	return s.real().Error()
}

func (s *substitute) Addr(addr uintptr) (dlfcn.AddrInfo, bool) {
	s.engine.log.Debugf(logging.Hook|logging.Frequent, "dladdr(%#x)", addr)
	defer s.engine.Passthrough()()
	return s.real().Addr(addr)
}

func (s *substitute) Addr1(addr uintptr, flags int) (dlfcn.AddrInfo, uintptr, bool) {
	s.engine.log.Debugf(logging.Hook|logging.Frequent, "dladdr1(%#x, %d)", addr, flags)
	defer s.engine.Passthrough()()
	return s.real().Addr1(addr, flags)
}

func (s *substitute) Info(handle dlfcn.Handle, request int, arg unsafe.Pointer) int {
	s.engine.log.Debugf(logging.Hook, "dlinfo(%#x, %d)", uintptr(handle), request)
	defer s.engine.Passthrough()()
	return s.real().Info(handle, request, arg)
}

func (s *substitute) MOpen(ns dlfcn.Namespace, file string, mode int) dlfcn.Handle {
	s.engine.log.Debugf(logging.Hook, "dlmopen(%d, %q, %#x)", ns, file, mode)
	defer s.engine.Passthrough()()
	return s.real().MOpen(ns, file, mode)
}

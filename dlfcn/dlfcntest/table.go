// Package dlfcntest provides an in-memory dlfcn.Table for tests.
package dlfcntest

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sliverarmory/chronohook/dlfcn"
)

// MainHandle is returned by Open("").
const MainHandle dlfcn.Handle = 0x1000

// Table is a fake loader. Libraries are registered up front with AddLibrary
// and become visible to Open; Global symbols model the default scope.
type Table struct {
	mu        sync.Mutex
	libraries map[string]*library
	handles   map[dlfcn.Handle]*library
	global    map[string]uintptr
	order     []*library
	lastErr   string
	next      dlfcn.Handle
	calls     map[string]int

	// OnOpen runs after a successful Open, before it returns, while the
	// table lock is not held. It lets tests mimic library constructors that
	// call back into the loader.
	OnOpen func(file string, handle dlfcn.Handle)
}

type library struct {
	path     string
	handle   dlfcn.Handle
	symbols  map[string]uintptr
	versions map[string]uintptr
	refs     int
	global   bool
}

func New() *Table {
	return &Table{
		libraries: make(map[string]*library),
		handles:   make(map[dlfcn.Handle]*library),
		global:    make(map[string]uintptr),
		calls:     make(map[string]int),
		next:      MainHandle + 0x1000,
	}
}

// AddLibrary makes path loadable with the given symbols.
func (t *Table) AddLibrary(path string, symbols map[string]uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lib := &library{path: path, symbols: make(map[string]uintptr), versions: make(map[string]uintptr)}
	for name, addr := range symbols {
		lib.symbols[name] = addr
	}
	t.libraries[path] = lib
}

// AddVersioned registers name@version in an already added library.
func (t *Table) AddVersioned(path, name, version string, addr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lib, ok := t.libraries[path]; ok {
		lib.versions[name+"@"+version] = addr
	}
}

// AddGlobal defines name in the default scope.
func (t *Table) AddGlobal(name string, addr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global[name] = addr
}

// Calls reports how many times op was invoked.
func (t *Table) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// Refs reports the open count of path.
func (t *Table) Refs(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lib, ok := t.libraries[path]; ok {
		return lib.refs
	}
	return 0
}

func (t *Table) count(op string) {
	t.calls[op]++
}

func (t *Table) Open(file string, mode int) dlfcn.Handle {
	t.mu.Lock()
	t.count("open")
	if file == "" {
		t.mu.Unlock()
		return MainHandle
	}
	lib, ok := t.libraries[file]
	if !ok {
		t.lastErr = fmt.Sprintf("%s: cannot open shared object file: No such file or directory", file)
		t.mu.Unlock()
		return 0
	}
	if mode&dlfcn.NoLoad != 0 && lib.refs == 0 {
		t.mu.Unlock()
		return 0
	}
	if lib.handle == 0 {
		lib.handle = t.next
		t.next += 0x1000
		t.handles[lib.handle] = lib
		t.order = append(t.order, lib)
	}
	lib.refs++
	if mode&dlfcn.Global != 0 {
		lib.global = true
	}
	handle := lib.handle
	onOpen := t.OnOpen
	t.mu.Unlock()

	if onOpen != nil {
		onOpen(file, handle)
	}
	return handle
}

func (t *Table) Close(handle dlfcn.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("close")
	if handle == MainHandle {
		return 0
	}
	lib, ok := t.handles[handle]
	if !ok || lib.refs == 0 {
		t.lastErr = "invalid handle"
		return -1
	}
	lib.refs--
	return 0
}

func (t *Table) lookupGlobal(name string) uintptr {
	if addr, ok := t.global[name]; ok {
		return addr
	}
	for _, lib := range t.order {
		if lib.global && lib.refs > 0 {
			if addr, ok := lib.symbols[name]; ok {
				return addr
			}
		}
	}
	return 0
}

func (t *Table) Sym(handle dlfcn.Handle, name string) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("sym")
	var addr uintptr
	switch handle {
	case dlfcn.Default, dlfcn.Next, MainHandle:
		addr = t.lookupGlobal(name)
	default:
		lib, ok := t.handles[handle]
		if !ok {
			t.lastErr = "invalid handle"
			return 0
		}
		addr = lib.symbols[name]
	}
	if addr == 0 {
		t.lastErr = fmt.Sprintf("undefined symbol: %s", name)
	}
	return addr
}

func (t *Table) VSym(handle dlfcn.Handle, name, version string) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("vsym")
	lib, ok := t.handles[handle]
	if !ok {
		t.lastErr = "invalid handle"
		return 0
	}
	addr := lib.versions[name+"@"+version]
	if addr == 0 {
		t.lastErr = fmt.Sprintf("undefined symbol: %s, version %s", name, version)
	}
	return addr
}

func (t *Table) Error() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("error")
	msg := t.lastErr
	t.lastErr = ""
	return msg
}

func (t *Table) findAddr(addr uintptr) (dlfcn.AddrInfo, bool) {
	for _, lib := range t.order {
		for name, a := range lib.symbols {
			if a == addr {
				return dlfcn.AddrInfo{
					FileName:   lib.path,
					FileBase:   uintptr(lib.handle),
					SymbolName: name,
					SymbolAddr: a,
				}, true
			}
		}
	}
	return dlfcn.AddrInfo{}, false
}

func (t *Table) Addr(addr uintptr) (dlfcn.AddrInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("addr")
	return t.findAddr(addr)
}

func (t *Table) Addr1(addr uintptr, flags int) (dlfcn.AddrInfo, uintptr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("addr1")
	info, ok := t.findAddr(addr)
	if !ok {
		return info, 0, false
	}
	var extra uintptr
	if flags == dlfcn.DLLinkMap {
		extra = info.FileBase
	}
	return info, extra, true
}

func (t *Table) Info(handle dlfcn.Handle, request int, arg unsafe.Pointer) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count("info")
	if _, ok := t.handles[handle]; !ok {
		t.lastErr = "invalid handle"
		return -1
	}
	if request == dlfcn.DILMID && arg != nil {
		*(*int64)(arg) = int64(dlfcn.BaseNamespace)
	}
	return 0
}

func (t *Table) MOpen(ns dlfcn.Namespace, file string, mode int) dlfcn.Handle {
	t.mu.Lock()
	t.count("mopen")
	t.mu.Unlock()
	if ns != dlfcn.BaseNamespace && ns != dlfcn.NewNamespace {
		t.mu.Lock()
		t.lastErr = "invalid target namespace in dlmopen()"
		t.mu.Unlock()
		return 0
	}
	h := t.Open(file, mode)
	t.mu.Lock()
	t.calls["open"]--
	t.mu.Unlock()
	return h
}

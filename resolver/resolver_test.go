package resolver_test

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/sliverarmory/chronohook/dlfcn"
	"github.com/sliverarmory/chronohook/dlfcn/dlfcntest"
	"github.com/sliverarmory/chronohook/logging"
	"github.com/sliverarmory/chronohook/registry"
	"github.com/sliverarmory/chronohook/resolver"
	"github.com/sliverarmory/chronohook/thread"
)

func TestGlobalScopeTakesPrecedence(t *testing.T) {
	fake := dlfcntest.New()
	fake.AddGlobal("frobnicate", 0x1000a)
	fake.AddLibrary("/usr/lib/libbar.so.2", map[string]uintptr{"bar_only": 0x2000b})
	reg := registry.New()
	reg.Record("/usr/lib/libbar.so.2")

	r := resolver.New(fake, reg, nil)
	if addr := r.Resolve("frobnicate", "libbar"); addr != 0x1000a {
		t.Errorf("Expected the global definition 0x1000a, got %#x", addr)
	}
	if fake.Calls("open") != 0 {
		t.Errorf("Expected the hint library not to be opened, got %d opens", fake.Calls("open"))
	}
}

func TestHintFallback(t *testing.T) {
	fake := dlfcntest.New()
	fake.AddLibrary("/usr/lib/libbar.so.2", map[string]uintptr{"bar_only": 0x2000b})
	reg := registry.New()
	reg.Record("/usr/lib/libbar.so.2")

	r := resolver.New(fake, reg, nil)
	if addr := r.Resolve("bar_only", "libbar"); addr != 0x2000b {
		t.Fatalf("Expected 0x2000b from libbar, got %#x", addr)
	}
	if refs := fake.Refs("/usr/lib/libbar.so.2"); refs != 1 {
		t.Errorf("Expected the hint library to stay open once, got %d refs", refs)
	}
	if addr := r.Resolve("bar_only", "libbar"); addr != 0x2000b {
		t.Errorf("Expected cached 0x2000b, got %#x", addr)
	}
	if fake.Calls("open") != 1 {
		t.Errorf("Expected one open, got %d", fake.Calls("open"))
	}
}

func TestNoHintSearchesDefaultScopeOnly(t *testing.T) {
	fake := dlfcntest.New()
	fake.AddLibrary("/usr/lib/libbar.so.2", map[string]uintptr{"bar_only": 0x2000b})
	reg := registry.New()
	reg.Record("/usr/lib/libbar.so.2")

	r := resolver.New(fake, reg, nil)
	if addr := r.Resolve("bar_only", ""); addr != 0 {
		t.Errorf("Expected 0 without a hint, got %#x", addr)
	}
	if fake.Calls("open") != 0 {
		t.Errorf("Expected no open without a hint, got %d", fake.Calls("open"))
	}
}

func TestResolveIsMemoized(t *testing.T) {
	fake := dlfcntest.New()
	fake.AddGlobal("nanosleep", 0x3000)
	r := resolver.New(fake, nil, nil)

	first := r.Resolve("nanosleep", "libc")
	calls := fake.Calls("sym")
	for i := 0; i < 10; i++ {
		if got := r.Resolve("nanosleep", "libc"); got != first {
			t.Fatalf("Expected %#x on call %d, got %#x", first, i, got)
		}
	}
	if fake.Calls("sym") != calls {
		t.Errorf("Expected no loader lookups after the first, got %d more", fake.Calls("sym")-calls)
	}
	if addr, ok := r.Cached("nanosleep"); !ok || addr != first {
		t.Errorf("Expected Cached to report %#x, got %#x (ok=%v)", first, addr, ok)
	}
}

func TestFailureIsNotCached(t *testing.T) {
	var buf bytes.Buffer
	fake := dlfcntest.New()
	reg := registry.New()
	r := resolver.New(fake, reg, logging.New(&buf, log.DebugLevel, logging.None))

	if addr := r.Resolve("glXSwapBuffers", "libGL"); addr != 0 {
		t.Fatalf("Expected 0 for a missing symbol, got %#x", addr)
	}
	if _, ok := r.Cached("glXSwapBuffers"); ok {
		t.Error("Expected a failed lookup not to be cached")
	}
	if !strings.Contains(buf.String(), "could not resolve glXSwapBuffers") {
		t.Errorf("Expected the failure to be logged, got %q", buf.String())
	}

	// The library shows up later.
	fake.AddLibrary("/usr/lib/libGL.so.1", map[string]uintptr{"glXSwapBuffers": 0x4444})
	reg.Record("/usr/lib/libGL.so.1")
	if addr := r.Resolve("glXSwapBuffers", "libGL"); addr != 0x4444 {
		t.Errorf("Expected 0x4444 once libGL is loaded, got %#x", addr)
	}
}

func TestUnopenableHintLibrary(t *testing.T) {
	fake := dlfcntest.New()
	reg := registry.New()
	reg.Record("/gone/libbar.so")

	r := resolver.New(fake, reg, nil)
	if addr := r.Resolve("bar_only", "libbar"); addr != 0 {
		t.Errorf("Expected 0 when the hint library cannot be opened, got %#x", addr)
	}
}

func TestSymbolHandle(t *testing.T) {
	fake := dlfcntest.New()
	r := resolver.New(fake, nil, nil)
	sym := r.Symbol("SDL_GL_SwapWindow", "libSDL2")
	if sym.Name() != "SDL_GL_SwapWindow" {
		t.Errorf("Unexpected name %q", sym.Name())
	}
	if sym.Addr() != 0 {
		t.Error("Expected an unresolved symbol to report 0")
	}
	fake.AddGlobal("SDL_GL_SwapWindow", 0x5555)
	if sym.Addr() != 0x5555 {
		t.Errorf("Expected 0x5555, got %#x", sym.Addr())
	}
}

func TestConcurrentResolve(t *testing.T) {
	fake := dlfcntest.New()
	fake.AddGlobal("clock_nanosleep", 0x6000)
	r := resolver.New(fake, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if addr := r.Resolve("clock_nanosleep", ""); addr != 0x6000 {
				t.Errorf("Expected 0x6000, got %#x", addr)
			}
		}()
	}
	wg.Wait()
	if fake.Calls("sym") != 1 {
		t.Errorf("Expected one loader lookup, got %d", fake.Calls("sym"))
	}
}

// threadCheckingTable notes the thread of each failed lookup and counts
// error reads made from any other thread.
type threadCheckingTable struct {
	*dlfcntest.Table
	lastMiss   atomic.Int64
	wrongDrain atomic.Int32
}

func (t *threadCheckingTable) Sym(handle dlfcn.Handle, name string) uintptr {
	addr := t.Table.Sym(handle, name)
	if addr == 0 {
		t.lastMiss.Store(int64(thread.ID()))
	}
	runtime.Gosched()
	return addr
}

func (t *threadCheckingTable) Error() string {
	if tid := t.lastMiss.Swap(0); tid != 0 && tid != int64(thread.ID()) {
		t.wrongDrain.Add(1)
	}
	return t.Table.Error()
}

func TestFailedLookupDrainedOnSameThread(t *testing.T) {
	loader := &threadCheckingTable{Table: dlfcntest.New()}
	r := resolver.New(loader, registry.New(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.Resolve(fmt.Sprintf("missing_%d_%d", i, j), "")
			}
		}(i)
	}
	wg.Wait()

	if n := loader.wrongDrain.Load(); n != 0 {
		t.Errorf("Expected every failed lookup to be drained on its own thread, got %d drained elsewhere", n)
	}
	if loader.Calls("error") != 16*200 {
		t.Errorf("Expected one drain per failed lookup, got %d", loader.Calls("error"))
	}
}

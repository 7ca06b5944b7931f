// Package frame connects the graphics hooks to the driver. A buffer swap
// marks the end of a logical frame; Shadows implements the proc-address
// contract that lets the target fetch hooked entry points by name.
package frame

import (
	"sync"
)

// Boundary is notified once per completed frame.
type Boundary interface {
	EnterFrameBoundary()
}

type BoundaryFunc func()

func (f BoundaryFunc) EnterFrameBoundary() {
	f()
}

// Swap runs the real buffer swap and then signals the boundary. A nil swap
// (unresolved) is skipped; the boundary still fires so the clock keeps
// moving.
func Swap(swap func(), b Boundary) {
	if swap != nil {
		swap()
	}
	if b != nil {
		b.EnterFrameBoundary()
	}
}

// Shadows maps hooked symbol names to substitute addresses. Looking up a
// hooked name through Lookup hands back the substitute and remembers the
// real address so the hook can still reach it.
type Shadows struct {
	mu       sync.RWMutex
	subs     map[string]uintptr
	original map[string]uintptr
}

func NewShadows() *Shadows {
	return &Shadows{
		subs:     make(map[string]uintptr),
		original: make(map[string]uintptr),
	}
}

func (s *Shadows) Register(name string, substitute uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[name] = substitute
}

// Lookup filters the result of a proc-address query for name. Unknown names
// and unresolved (zero) addresses pass through unchanged.
func (s *Shadows) Lookup(name string, addr uintptr) uintptr {
	if addr == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[name]
	if !ok {
		return addr
	}
	s.original[name] = addr
	return sub
}

// Original is the real address captured by Lookup for name.
func (s *Shadows) Original(name string) (uintptr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.original[name]
	return addr, ok
}

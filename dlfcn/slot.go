package dlfcn

import (
	"sync/atomic"
	"unsafe"
)

type tableRef struct {
	table Table
}

// Slot holds the table currently receiving loader calls. Loads and swaps are
// atomic so hooks running on other threads always see a complete table.
type Slot struct {
	ref atomic.Pointer[tableRef]
}

func NewSlot(table Table) *Slot {
	s := new(Slot)
	s.Store(table)
	return s
}

func (s *Slot) Load() Table {
	if ref := s.ref.Load(); ref != nil && ref.table != nil {
		return ref.table
	}
	return unsupportedTable{}
}

func (s *Slot) Store(table Table) {
	s.ref.Store(&tableRef{table: table})
}

// Swap installs table and returns the previously installed one.
func (s *Slot) Swap(table Table) Table {
	old := s.ref.Swap(&tableRef{table: table})
	if old == nil || old.table == nil {
		return unsupportedTable{}
	}
	return old.table
}

func (s *Slot) Open(file string, mode int) Handle {
	return s.Load().Open(file, mode)
}

func (s *Slot) Close(handle Handle) int {
	return s.Load().Close(handle)
}

func (s *Slot) Sym(handle Handle, name string) uintptr {
	return s.Load().Sym(handle, name)
}

func (s *Slot) VSym(handle Handle, name, version string) uintptr {
	return s.Load().VSym(handle, name, version)
}

func (s *Slot) Error() string {
	return s.Load().Error()
}

func (s *Slot) Addr(addr uintptr) (AddrInfo, bool) {
	return s.Load().Addr(addr)
}

func (s *Slot) Addr1(addr uintptr, flags int) (AddrInfo, uintptr, bool) {
	return s.Load().Addr1(addr, flags)
}

func (s *Slot) Info(handle Handle, request int, arg unsafe.Pointer) int {
	return s.Load().Info(handle, request, arg)
}

func (s *Slot) MOpen(ns Namespace, file string, mode int) Handle {
	return s.Load().MOpen(ns, file, mode)
}

// Process is the slot consulted by the package-level entry points.
var Process = NewSlot(Native())

func Open(file string, mode int) Handle { return Process.Open(file, mode) }

func Close(handle Handle) int { return Process.Close(handle) }

func Sym(handle Handle, name string) uintptr { return Process.Sym(handle, name) }

func VSym(handle Handle, name, version string) uintptr {
	return Process.VSym(handle, name, version)
}

func Error() string { return Process.Error() }

func Addr(addr uintptr) (AddrInfo, bool) { return Process.Addr(addr) }

func Addr1(addr uintptr, flags int) (AddrInfo, uintptr, bool) {
	return Process.Addr1(addr, flags)
}

func Info(handle Handle, request int, arg unsafe.Pointer) int {
	return Process.Info(handle, request, arg)
}

func MOpen(ns Namespace, file string, mode int) Handle {
	return Process.MOpen(ns, file, mode)
}

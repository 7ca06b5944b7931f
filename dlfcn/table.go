// Package dlfcn models the dynamic loader's public entry points as a
// swappable dispatch table. The process-wide Slot plays the role of the C
// library's loader hook pointer: whatever Table it holds receives every
// open/close/symbol call made through the package-level functions.
package dlfcn

import (
	"errors"
	"unsafe"
)

var ErrUnsupported = errors.New("dlfcn: dynamic loading is not supported on this platform")

type Handle uintptr

// Pseudo-handles understood by Sym and VSym.
const (
	Default Handle = 0
	Next    Handle = ^Handle(0)
)

// Open modes (glibc values).
const (
	Lazy     = 0x00001
	Now      = 0x00002
	NoLoad   = 0x00004
	DeepBind = 0x00008
	Global   = 0x00100
	Local    = 0x00000
	NoDelete = 0x01000
)

// Addr1 flags.
const (
	DLSymEnt  = 1
	DLLinkMap = 2
)

// Info requests.
const (
	DILMID    = 1
	DILinkMap = 2
	DIOrigin  = 6
)

// Namespace identifies a link-map list for MOpen.
type Namespace int64

const (
	BaseNamespace Namespace = 0
	NewNamespace  Namespace = -1
)

// AddrInfo mirrors Dl_info.
type AddrInfo struct {
	FileName   string
	FileBase   uintptr
	SymbolName string
	SymbolAddr uintptr
}

// Table is the set of loader operations that can be interposed. Return
// conventions follow the C entry points: a zero Handle or address means
// failure and Error reports why.
type Table interface {
	// Open loads file; an empty file names the main program.
	Open(file string, mode int) Handle
	Close(handle Handle) int
	Sym(handle Handle, name string) uintptr
	VSym(handle Handle, name, version string) uintptr
	// Error returns and clears the last error, "" when there is none.
	Error() string
	Addr(addr uintptr) (AddrInfo, bool)
	Addr1(addr uintptr, flags int) (AddrInfo, uintptr, bool)
	Info(handle Handle, request int, arg unsafe.Pointer) int
	MOpen(ns Namespace, file string, mode int) Handle
}

type unsupportedTable struct{}

// Unsupported returns a table on which every call fails.
func Unsupported() Table {
	return unsupportedTable{}
}

func (unsupportedTable) Open(string, int) Handle                      { return 0 }
func (unsupportedTable) Close(Handle) int                             { return -1 }
func (unsupportedTable) Sym(Handle, string) uintptr                   { return 0 }
func (unsupportedTable) VSym(Handle, string, string) uintptr          { return 0 }
func (unsupportedTable) Error() string                                { return ErrUnsupported.Error() }
func (unsupportedTable) Addr(uintptr) (AddrInfo, bool)                { return AddrInfo{}, false }
func (unsupportedTable) Addr1(uintptr, int) (AddrInfo, uintptr, bool) { return AddrInfo{}, 0, false }
func (unsupportedTable) Info(Handle, int, unsafe.Pointer) int         { return -1 }
func (unsupportedTable) MOpen(Namespace, string, int) Handle          { return 0 }

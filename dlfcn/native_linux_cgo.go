//go:build linux && cgo

package dlfcn

/*
#cgo LDFLAGS: -ldl
#define _GNU_SOURCE
#include <dlfcn.h>
#include <link.h>
#include <stdlib.h>
#include <stdint.h>

static void *chronohook_dlopen(const char *file, int mode) {
	return dlopen(file, mode);
}

static int chronohook_dlclose(uintptr_t handle) {
	return dlclose((void *)handle);
}

static uintptr_t chronohook_dlsym(uintptr_t handle, const char *name) {
	return (uintptr_t)dlsym((void *)handle, name);
}

static uintptr_t chronohook_dlvsym(uintptr_t handle, const char *name, const char *version) {
	return (uintptr_t)dlvsym((void *)handle, name, version);
}

static int chronohook_dladdr(uintptr_t addr, Dl_info *info) {
	return dladdr((const void *)addr, info);
}

static int chronohook_dladdr1(uintptr_t addr, Dl_info *info, uintptr_t *extra, int flags) {
	void *out = NULL;
	int ret = dladdr1((const void *)addr, info, &out, flags);
	*extra = (uintptr_t)out;
	return ret;
}

static int chronohook_dlinfo(uintptr_t handle, int request, void *arg) {
	return dlinfo((void *)handle, request, arg);
}

static void *chronohook_dlmopen(long ns, const char *file, int mode) {
	return dlmopen((Lmid_t)ns, file, mode);
}
*/
import "C"

import (
	"unsafe"
)

type nativeTable struct{}

// Native returns the C library's own loader.
func Native() Table {
	return nativeTable{}
}

func cString(s string) *C.char {
	if s == "" {
		return nil
	}
	return C.CString(s)
}

func freeCString(p *C.char) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

func goAddrInfo(info *C.Dl_info) AddrInfo {
	out := AddrInfo{
		FileBase:   uintptr(info.dli_fbase),
		SymbolAddr: uintptr(info.dli_saddr),
	}
	if info.dli_fname != nil {
		out.FileName = C.GoString(info.dli_fname)
	}
	if info.dli_sname != nil {
		out.SymbolName = C.GoString(info.dli_sname)
	}
	return out
}

func (nativeTable) Open(file string, mode int) Handle {
	cFile := cString(file)
	defer freeCString(cFile)
	return Handle(uintptr(C.chronohook_dlopen(cFile, C.int(mode))))
}

func (nativeTable) Close(handle Handle) int {
	return int(C.chronohook_dlclose(C.uintptr_t(handle)))
}

func (nativeTable) Sym(handle Handle, name string) uintptr {
	cName := C.CString(name)
	defer freeCString(cName)
	return uintptr(C.chronohook_dlsym(C.uintptr_t(handle), cName))
}

func (nativeTable) VSym(handle Handle, name, version string) uintptr {
	cName := C.CString(name)
	defer freeCString(cName)
	cVersion := C.CString(version)
	defer freeCString(cVersion)
	return uintptr(C.chronohook_dlvsym(C.uintptr_t(handle), cName, cVersion))
}

func (nativeTable) Error() string {
	msg := C.dlerror()
	if msg == nil {
		return ""
	}
	return C.GoString(msg)
}

func (nativeTable) Addr(addr uintptr) (AddrInfo, bool) {
	var info C.Dl_info
	if C.chronohook_dladdr(C.uintptr_t(addr), &info) == 0 {
		return AddrInfo{}, false
	}
	return goAddrInfo(&info), true
}

func (nativeTable) Addr1(addr uintptr, flags int) (AddrInfo, uintptr, bool) {
	var info C.Dl_info
	var extra C.uintptr_t
	if C.chronohook_dladdr1(C.uintptr_t(addr), &info, &extra, C.int(flags)) == 0 {
		return AddrInfo{}, 0, false
	}
	return goAddrInfo(&info), uintptr(extra), true
}

func (nativeTable) Info(handle Handle, request int, arg unsafe.Pointer) int {
	return int(C.chronohook_dlinfo(C.uintptr_t(handle), C.int(request), arg))
}

func (nativeTable) MOpen(ns Namespace, file string, mode int) Handle {
	cFile := cString(file)
	defer freeCString(cFile)
	return Handle(uintptr(C.chronohook_dlmopen(C.long(ns), cFile, C.int(mode))))
}

//go:build linux && cgo

package sleep

/*
#include <errno.h>
#include <stdint.h>
#include <time.h>

typedef int (*chronohook_nanosleep_fn)(const struct timespec *, struct timespec *);
typedef int (*chronohook_clock_nanosleep_fn)(clockid_t, int, const struct timespec *, struct timespec *);

static int chronohook_call_nanosleep(uintptr_t fn, const struct timespec *req, struct timespec *rem) {
	errno = 0;
	if (((chronohook_nanosleep_fn)fn)(req, rem) == 0) {
		return 0;
	}
	return errno;
}

static int chronohook_call_clock_nanosleep(uintptr_t fn, int clock, int flags, const struct timespec *req, struct timespec *rem) {
	return ((chronohook_clock_nanosleep_fn)fn)((clockid_t)clock, flags, req, rem);
}
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const callSupported = true

func errnoErr(ret C.int) error {
	if ret == 0 {
		return nil
	}
	return unix.Errno(ret)
}

func callNanosleep(fn uintptr, req, rem *unix.Timespec) error {
	ret := C.chronohook_call_nanosleep(
		C.uintptr_t(fn),
		(*C.struct_timespec)(unsafe.Pointer(req)),
		(*C.struct_timespec)(unsafe.Pointer(rem)),
	)
	return errnoErr(ret)
}

// clock_nanosleep reports failure through its return value, not errno.
func callClockNanosleep(fn uintptr, clock int32, flags int, req, rem *unix.Timespec) error {
	ret := C.chronohook_call_clock_nanosleep(
		C.uintptr_t(fn),
		C.int(clock),
		C.int(flags),
		(*C.struct_timespec)(unsafe.Pointer(req)),
		(*C.struct_timespec)(unsafe.Pointer(rem)),
	)
	return errnoErr(ret)
}

//go:build !linux || !cgo

package sleep

import (
	"golang.org/x/sys/unix"
)

const callSupported = false

func callNanosleep(fn uintptr, req, rem *unix.Timespec) error {
	return unix.Nanosleep(req, rem)
}

func callClockNanosleep(fn uintptr, clock int32, flags int, req, rem *unix.Timespec) error {
	return unix.ClockNanosleep(clock, flags, req, rem)
}

package sleep

import (
	"golang.org/x/sys/unix"
)

type syscallSleeper struct{}

// Syscall sleeps with the kernel's nanosleep and clock_nanosleep directly,
// bypassing the C library.
func Syscall() Sleeper {
	return syscallSleeper{}
}

func (syscallSleeper) Nanosleep(req, rem *unix.Timespec) error {
	return unix.Nanosleep(req, rem)
}

func (syscallSleeper) ClockNanosleep(clock int32, flags int, req, rem *unix.Timespec) error {
	return unix.ClockNanosleep(clock, flags, req, rem)
}

package sleep

import (
	"golang.org/x/sys/unix"

	"github.com/sliverarmory/chronohook/resolver"
)

const libcHint = "libc."

// resolvedSleeper calls the C library's own sleep functions, found through
// the resolver. A symbol that does not resolve falls back to the kernel.
type resolvedSleeper struct {
	nanosleep      *resolver.Symbol
	clockNanosleep *resolver.Symbol
	fallback       Sleeper
}

// Resolved returns a Sleeper that calls libc's nanosleep and clock_nanosleep.
// Without cgo it is the same as Syscall.
func Resolved(r *resolver.Resolver) Sleeper {
	if !callSupported {
		return Syscall()
	}
	return &resolvedSleeper{
		nanosleep:      r.Symbol("nanosleep", libcHint),
		clockNanosleep: r.Symbol("clock_nanosleep", libcHint),
		fallback:       Syscall(),
	}
}

func (s *resolvedSleeper) Nanosleep(req, rem *unix.Timespec) error {
	fn := s.nanosleep.Addr()
	if fn == 0 {
		return s.fallback.Nanosleep(req, rem)
	}
	return callNanosleep(fn, req, rem)
}

func (s *resolvedSleeper) ClockNanosleep(clock int32, flags int, req, rem *unix.Timespec) error {
	fn := s.clockNanosleep.Addr()
	if fn == 0 {
		return s.fallback.ClockNanosleep(clock, flags, req, rem)
	}
	return callClockNanosleep(fn, clock, flags, req, rem)
}

// Package sleep implements the target's delay entry points on top of the
// logical clock. Every wrapper applies the same rule: unless the caller asked
// for native timing, a delay on the main thread is folded into the clock and
// replaced by a zero-length real sleep, while any other thread really sleeps
// for the (deadline-adjusted) duration.
package sleep

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/chronohook/dettime"
	"github.com/sliverarmory/chronohook/logging"
)

// NativeOracle reports whether the calling thread wants real timing.
type NativeOracle interface {
	IsNative() bool
}

// ThreadOracle reports whether the caller is the thread whose pacing drives
// the logical frame cadence.
type ThreadOracle interface {
	IsMainThread() bool
}

// Sleeper is the real sleep implementation delays are forwarded to.
type Sleeper interface {
	Nanosleep(req, rem *unix.Timespec) error
	ClockNanosleep(clock int32, flags int, req, rem *unix.Timespec) error
}

type Wrappers struct {
	timer   *dettime.Timer
	natives NativeOracle
	threads ThreadOracle
	real    Sleeper
	log     *logging.Logger
}

func New(timer *dettime.Timer, natives NativeOracle, threads ThreadOracle, sleeper Sleeper, logger *logging.Logger) *Wrappers {
	if logger == nil {
		logger = logging.Discard()
	}
	if sleeper == nil {
		sleeper = Syscall()
	}
	return &Wrappers{
		timer:   timer,
		natives: natives,
		threads: threads,
		real:    sleeper,
		log:     logger,
	}
}

// Delay is SDL_Delay.
func (w *Wrappers) Delay(ms uint32) {
	d := time.Duration(ms) * time.Millisecond
	w.log.Debugf(logging.Sleep|logging.Frequent, "SDL_Delay(%d)", ms)
	_ = w.sleep(d, nil)
}

func (w *Wrappers) Usleep(usec uint32) error {
	d := time.Duration(usec) * time.Microsecond
	w.log.Debugf(logging.Sleep|logging.Frequent, "usleep(%d)", usec)
	return w.sleep(d, nil)
}

// Sleep is the Go-side entry point for hooks that already hold a duration.
// Negative durations are treated as zero.
func (w *Wrappers) Sleep(d time.Duration) {
	_ = w.sleep(max(d, 0), nil)
}

func (w *Wrappers) Nanosleep(req, rem *unix.Timespec) error {
	if w.native() {
		return w.real.Nanosleep(req, rem)
	}
	d := duration(req)
	w.log.Debugf(logging.Sleep|logging.Frequent, "nanosleep(%s)", d)
	return w.relative(d, rem)
}

func (w *Wrappers) ClockNanosleep(clock int32, flags int, req, rem *unix.Timespec) error {
	if w.native() {
		return w.real.ClockNanosleep(clock, flags, req, rem)
	}
	d := duration(req)
	if flags&unix.TIMER_ABSTIME != 0 {
		now := w.timer.Ticks()
		w.log.Debugf(logging.Sleep|logging.Frequent, "clock_nanosleep(%d) until %s, now %s", clock, d, now)
		d = max(d-now, 0)
		// The kernel never reports remaining time for absolute sleeps.
		rem = nil
	} else {
		w.log.Debugf(logging.Sleep|logging.Frequent, "clock_nanosleep(%d) for %s", clock, d)
	}

	if w.fold(d) {
		zeroRemaining(rem)
		return nil
	}
	ts := dettime.ToTimespec(d)
	return w.real.ClockNanosleep(clock, 0, &ts, rem)
}

func (w *Wrappers) sleep(d time.Duration, rem *unix.Timespec) error {
	if w.native() {
		ts := dettime.ToTimespec(d)
		return w.real.Nanosleep(&ts, rem)
	}
	return w.relative(d, rem)
}

// relative runs the fold-or-forward decision for a relative delay.
func (w *Wrappers) relative(d time.Duration, rem *unix.Timespec) error {
	if w.fold(d) {
		zeroRemaining(rem)
		return nil
	}
	ts := dettime.ToTimespec(d)
	return w.real.Nanosleep(&ts, rem)
}

// fold adds d to the logical clock when the caller is the main thread and d
// is not zero, and does a zero-length real sleep in its place.
func (w *Wrappers) fold(d time.Duration) bool {
	if d <= 0 || !w.threads.IsMainThread() {
		return false
	}
	w.timer.AddDelay(d)
	var zero unix.Timespec
	if err := w.real.Nanosleep(&zero, nil); err != nil {
		w.log.Debugf(logging.Sleep|logging.Frequent, "zero-length sleep returned %v", err)
	}
	w.log.Debugf(logging.Sleep|logging.Timer, "folded %s into the logical clock", d)
	return true
}

func (w *Wrappers) native() bool {
	return w.natives != nil && w.natives.IsNative()
}

// duration converts a requested timespec, mapping nil, negative and
// malformed requests to zero.
func duration(req *unix.Timespec) time.Duration {
	if req == nil || req.Sec < 0 || req.Nsec < 0 || req.Nsec >= 1e9 {
		return 0
	}
	return dettime.FromTimespec(*req)
}

func zeroRemaining(rem *unix.Timespec) {
	if rem != nil {
		*rem = unix.Timespec{}
	}
}

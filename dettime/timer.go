// Package dettime holds the logical clock the target reads instead of the
// wall clock. The clock only moves when the driver advances a frame or when
// the main thread's sleeps are folded into it.
package dettime

import (
	"fmt"
	"math/bits"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sliverarmory/chronohook/logging"
)

const DefaultFrameRate = 60

// FoldPolicy decides when folded sleep time becomes visible on the clock.
type FoldPolicy int

const (
	// Immediate adds each delay to the clock right away and discounts it
	// from the next frame increment.
	Immediate FoldPolicy = iota
	// Deferred keeps delays pending until the next frame, which then moves
	// the clock by the larger of the frame increment and the pending total.
	Deferred
)

func (p FoldPolicy) String() string {
	switch p {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("FoldPolicy(%d)", int(p))
}

func ParseFoldPolicy(s string) (FoldPolicy, bool) {
	switch s {
	case "", "immediate":
		return Immediate, true
	case "deferred":
		return Deferred, true
	}
	return Immediate, false
}

type Timer struct {
	mu      sync.Mutex
	rate    uint64
	policy  FoldPolicy
	ticks   time.Duration
	pending time.Duration
	delayed time.Duration
	frames  uint64
	log     *logging.Logger
}

type Option func(*Timer)

// WithFrameRate sets the frames per second used to pace Advance. Values
// below one fall back to DefaultFrameRate.
func WithFrameRate(fps int) Option {
	return func(t *Timer) {
		if fps > 0 {
			t.rate = uint64(fps)
		}
	}
}

func WithFoldPolicy(p FoldPolicy) Option {
	return func(t *Timer) {
		t.policy = p
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(t *Timer) {
		t.log = l
	}
}

func New(opts ...Option) *Timer {
	t := &Timer{
		rate:   DefaultFrameRate,
		policy: Immediate,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ticks is the logical time since the timer was created.
func (t *Timer) Ticks() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

func (t *Timer) Now() unix.Timespec {
	return ToTimespec(t.Ticks())
}

// AddDelay folds d into the ledger. Non-positive delays are ignored.
func (t *Timer) AddDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.pending = SatAdd(t.pending, d)
	t.delayed = SatAdd(t.delayed, d)
	if t.policy == Immediate {
		t.ticks = SatAdd(t.ticks, d)
	}
	ticks, pending := t.ticks, t.pending
	t.mu.Unlock()

	t.log.Debugf(logging.Timer, "add delay %s, pending %s, ticks %s", d, pending, ticks)
}

// Pending is the delay folded since the last Advance.
func (t *Timer) Pending() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Delayed is the total delay ever folded.
func (t *Timer) Delayed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delayed
}

func (t *Timer) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

func (t *Timer) FrameRate() int {
	return int(t.rate)
}

func (t *Timer) Policy() FoldPolicy {
	return t.policy
}

// Advance ends the current frame and returns the new logical time. Over N
// frames the clock moves by floor(N*1e9/rate) nanoseconds plus whatever the
// fold policy adds for pending delays.
func (t *Timer) Advance() time.Duration {
	t.mu.Lock()
	inc := t.frameIncrement()
	var step time.Duration
	switch t.policy {
	case Deferred:
		step = max(inc, t.pending)
	default:
		// The pending delay is already on the clock.
		step = max(inc-t.pending, 0)
	}
	t.ticks = SatAdd(t.ticks, step)
	t.pending = 0
	t.frames++
	frames, ticks := t.frames, t.ticks
	t.mu.Unlock()

	t.log.Debugf(logging.Timer|logging.Frame, "frame %d, ticks %s", frames, ticks)
	return ticks
}

// frameIncrement is the length of frame number t.frames.
func (t *Timer) frameIncrement() time.Duration {
	return time.Duration(frameEdge(t.frames+1, t.rate) - frameEdge(t.frames, t.rate))
}

// frameEdge is floor(n*1e9/rate) without intermediate overflow.
func frameEdge(n, rate uint64) uint64 {
	hi, lo := bits.Mul64(n, uint64(time.Second))
	if hi >= rate {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, rate)
	return q
}

// Package thread answers the two questions every time hook asks: is the
// caller the main thread, and has the caller asked for native (unvirtualized)
// behavior.
package thread

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// ID returns the calling OS thread's id. Goroutines that need a stable
// answer across calls must hold runtime.LockOSThread.
func ID() int {
	return unix.Gettid()
}

// Tracker records the main thread and a per-thread native-mode count.
type Tracker struct {
	id     func() int
	main   int
	native sync.Map // thread id -> *int, dropped when the count returns to 0
}

// NewTracker makes the calling thread the main thread.
func NewTracker() *Tracker {
	return NewTrackerWithID(ID)
}

// NewTrackerWithID is NewTracker with a custom thread identity function.
func NewTrackerWithID(id func() int) *Tracker {
	return &Tracker{id: id, main: id()}
}

func (t *Tracker) MainThreadID() int {
	return t.main
}

func (t *Tracker) IsMainThread() bool {
	return t.id() == t.main
}

func (t *Tracker) IsNative() bool {
	v, ok := t.native.Load(t.id())
	return ok && *v.(*int) > 0
}

// SetNative enters native mode for the calling thread. Calls nest; the
// goroutine stays on its thread until the matching UnsetNative.
func (t *Tracker) SetNative() {
	runtime.LockOSThread()
	v, _ := t.native.LoadOrStore(t.id(), new(int))
	*v.(*int)++
}

// UnsetNative leaves native mode. An unmatched call is ignored.
func (t *Tracker) UnsetNative() {
	tid := t.id()
	v, ok := t.native.Load(tid)
	if !ok || *v.(*int) == 0 {
		return
	}
	*v.(*int)--
	if *v.(*int) == 0 {
		t.native.Delete(tid)
	}
	runtime.UnlockOSThread()
}

// Native enters native mode and returns the function that leaves it:
//
//	defer tracker.Native()()
func (t *Tracker) Native() func() {
	t.SetNative()
	return t.UnsetNative
}

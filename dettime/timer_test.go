package dettime

import (
	"math"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSatAdd(t *testing.T) {
	testCases := []struct {
		a, b, want int64
	}{
		{1, 2, 3},
		{math.MaxInt64, 1, math.MaxInt64},
		{math.MaxInt64 - 5, 10, math.MaxInt64},
		{math.MinInt64, -1, math.MinInt64},
		{math.MinInt64, math.MaxInt64, -1},
		{-3, 2, -1},
	}
	for _, tc := range testCases {
		if got := SatAdd(tc.a, tc.b); got != tc.want {
			t.Errorf("SatAdd(%d, %d): expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
	if got := SatAdd(int8(100), int8(100)); got != math.MaxInt8 {
		t.Errorf("Expected int8 saturation at %d, got %d", math.MaxInt8, got)
	}
	if got := SatAdd(int32(-2_000_000_000), int32(-2_000_000_000)); got != math.MinInt32 {
		t.Errorf("Expected int32 saturation at %d, got %d", math.MinInt32, got)
	}
}

func TestSatMul(t *testing.T) {
	testCases := []struct {
		a, b, want int64
	}{
		{0, math.MaxInt64, 0},
		{3, 4, 12},
		{-3, 4, -12},
		{math.MaxInt64, 2, math.MaxInt64},
		{math.MaxInt64, -2, math.MinInt64},
		{math.MinInt64, -1, math.MaxInt64},
		{-1, math.MinInt64, math.MaxInt64},
		{1 << 40, 1 << 40, math.MaxInt64},
	}
	for _, tc := range testCases {
		if got := SatMul(tc.a, tc.b); got != tc.want {
			t.Errorf("SatMul(%d, %d): expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestTimespecConversion(t *testing.T) {
	ts := unix.Timespec{Sec: 2, Nsec: 500_000_000}
	if got := FromTimespec(ts); got != 2500*time.Millisecond {
		t.Errorf("Expected 2.5s, got %s", got)
	}
	back := ToTimespec(2500 * time.Millisecond)
	if back.Sec != 2 || back.Nsec != 500_000_000 {
		t.Errorf("Expected {2 500000000}, got %+v", back)
	}

	// A multi-century request saturates instead of wrapping negative.
	huge := unix.Timespec{Sec: math.MaxInt64 / 2, Nsec: 999_999_999}
	if got := FromTimespec(huge); got != time.Duration(math.MaxInt64) {
		t.Errorf("Expected saturation, got %d", got)
	}
}

func TestAddDelayImmediate(t *testing.T) {
	timer := New()
	timer.AddDelay(250 * time.Millisecond)
	if timer.Pending() != 250*time.Millisecond {
		t.Errorf("Expected 250ms pending, got %s", timer.Pending())
	}
	if timer.Ticks() != 250*time.Millisecond {
		t.Errorf("Expected the delay on the clock immediately, got %s", timer.Ticks())
	}
	timer.AddDelay(0)
	timer.AddDelay(-time.Second)
	if timer.Pending() != 250*time.Millisecond || timer.Delayed() != 250*time.Millisecond {
		t.Errorf("Expected non-positive delays to be ignored, got pending %s delayed %s", timer.Pending(), timer.Delayed())
	}
}

func TestAdvanceImmediateDiscountsPending(t *testing.T) {
	timer := New(WithFrameRate(50))
	timer.AddDelay(5 * time.Millisecond)
	if got := timer.Advance(); got != 20*time.Millisecond {
		t.Errorf("Expected one 20ms frame in total, got %s", got)
	}
	if timer.Pending() != 0 {
		t.Errorf("Expected the ledger to be cleared, got %s", timer.Pending())
	}

	// A sleep longer than the frame is not clawed back.
	timer.AddDelay(30 * time.Millisecond)
	if got := timer.Advance(); got != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %s", got)
	}
	if timer.Frames() != 2 {
		t.Errorf("Expected 2 frames, got %d", timer.Frames())
	}
	if timer.Delayed() != 35*time.Millisecond {
		t.Errorf("Expected 35ms folded in total, got %s", timer.Delayed())
	}
}

func TestAdvanceDeferred(t *testing.T) {
	timer := New(WithFrameRate(50), WithFoldPolicy(Deferred))
	timer.AddDelay(5 * time.Millisecond)
	if timer.Ticks() != 0 {
		t.Errorf("Expected the clock to hold until the frame ends, got %s", timer.Ticks())
	}
	if got := timer.Advance(); got != 20*time.Millisecond {
		t.Errorf("Expected 20ms, got %s", got)
	}
	timer.AddDelay(30 * time.Millisecond)
	if got := timer.Advance(); got != 50*time.Millisecond {
		t.Errorf("Expected the longer pending delay to win, got %s", got)
	}
}

func TestFractionalFrameRateCarriesRemainder(t *testing.T) {
	timer := New(WithFrameRate(60))
	var got time.Duration
	for i := 0; i < 60; i++ {
		got = timer.Advance()
	}
	if got != time.Second {
		t.Errorf("Expected 60 frames at 60fps to total exactly 1s, got %s", got)
	}
	for i := 0; i < 3; i++ {
		got = timer.Advance()
	}
	// floor(63e9/60)
	if got != 1_050_000_000 {
		t.Errorf("Expected 1.05s, got %d", got)
	}

	odd := New(WithFrameRate(7))
	for i := 1; i <= 7; i++ {
		want := time.Duration(uint64(i) * uint64(time.Second) / 7)
		if got := odd.Advance(); got != want {
			t.Fatalf("frame %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestFrameEdgeLargeFrameCount(t *testing.T) {
	// Past the point where n*1e9 overflows 64 bits.
	n := uint64(1) << 40
	want := n / 60 * uint64(time.Second)
	want += (n % 60) * uint64(time.Second) / 60
	if got := frameEdge(n, 60); got != want {
		t.Errorf("Expected %d, got %d", want, got)
	}
}

func TestMultiYearDelaySaturates(t *testing.T) {
	timer := New()
	year := 365 * 24 * time.Hour
	for i := 0; i < 400; i++ {
		timer.AddDelay(year)
	}
	timer.AddDelay(time.Duration(math.MaxInt64))
	if timer.Ticks() != time.Duration(math.MaxInt64) {
		t.Errorf("Expected the clock to saturate, got %d", timer.Ticks())
	}
	if timer.Ticks() < 0 || timer.Pending() < 0 {
		t.Error("Expected no wraparound")
	}
	timer.Advance()
	if timer.Ticks() != time.Duration(math.MaxInt64) {
		t.Errorf("Expected the clock to stay saturated, got %d", timer.Ticks())
	}
}

func TestConcurrentAddDelayLosesNothing(t *testing.T) {
	timer := New(WithFoldPolicy(Deferred))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				timer.AddDelay(time.Microsecond)
			}
		}()
	}
	wg.Wait()
	if timer.Pending() != 8*time.Millisecond {
		t.Errorf("Expected 8ms pending, got %s", timer.Pending())
	}
}

func TestParseFoldPolicy(t *testing.T) {
	for _, name := range []string{"immediate", "deferred"} {
		p, ok := ParseFoldPolicy(name)
		if !ok || p.String() != name {
			t.Errorf("ParseFoldPolicy(%q) = %s, %v", name, p, ok)
		}
	}
	if _, ok := ParseFoldPolicy("lazy"); ok {
		t.Error("Expected unknown policy to be rejected")
	}
	if p, ok := ParseFoldPolicy(""); !ok || p != Immediate {
		t.Error("Expected empty policy to default to immediate")
	}
}

func TestNowMatchesTicks(t *testing.T) {
	timer := New()
	timer.AddDelay(1500 * time.Millisecond)
	now := timer.Now()
	if now.Sec != 1 || now.Nsec != 500_000_000 {
		t.Errorf("Expected {1 500000000}, got %+v", now)
	}
}

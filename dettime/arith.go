package dettime

import (
	"time"
	"unsafe"

	"golang.org/x/exp/constraints"
	"golang.org/x/sys/unix"
)

func bounds[T constraints.Signed]() (lo, hi T) {
	bits := unsafe.Sizeof(lo) * 8
	lo = T(1) << (bits - 1)
	return lo, ^lo
}

// SatAdd returns a+b clamped to T's range.
func SatAdd[T constraints.Signed](a, b T) T {
	lo, hi := bounds[T]()
	s := a + b
	switch {
	case a > 0 && b > 0 && s < a:
		return hi
	case a < 0 && b < 0 && s > a:
		return lo
	}
	return s
}

// SatMul returns a*b clamped to T's range.
func SatMul[T constraints.Signed](a, b T) T {
	if a == 0 || b == 0 {
		return 0
	}
	lo, hi := bounds[T]()
	p := a * b
	overflow := p/b != a || (a == -1 && b == lo) || (b == -1 && a == lo)
	if !overflow {
		return p
	}
	if (a < 0) != (b < 0) {
		return lo
	}
	return hi
}

// FromTimespec converts ts to a Duration, saturating instead of wrapping.
// The fields are taken as given; callers normalize invalid values.
func FromTimespec(ts unix.Timespec) time.Duration {
	sec := SatMul(time.Duration(ts.Sec), time.Second)
	return SatAdd(sec, time.Duration(ts.Nsec))
}

func ToTimespec(d time.Duration) unix.Timespec {
	return unix.NsecToTimespec(d.Nanoseconds())
}

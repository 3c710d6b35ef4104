package filetime

import (
	"time"
)

// epochTicks is the tick count of the unix epoch.
const epochTicks = 116444736000000000

// tickNanos is the nanoseconds per tick.
const tickNanos = 100

// Timestamp converts the golang time into ticks. The zero
// time converts into zero.
func Timestamp(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/tickNanos + epochTicks)
}

// Time converts the ticks back into a golang time. Zero ticks
// convert into the zero time.
func Time(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(ticks)-epochTicks)*tickNanos).UTC()
}

// Now returns the ticks of current time.
func Now() uint64 {
	return Timestamp(time.Now())
}

// Split returns the low and high halves of the ticks, in the
// order they are laid out in a native FILETIME.
func Split(ticks uint64) (low, high uint32) {
	return uint32(ticks), uint32(ticks >> 32)
}

// Join is the inverse of Split.
func Join(low, high uint32) uint64 {
	return uint64(high)<<32 | uint64(low)
}

package twab

import "time"

// Timestamps are seconds truncated to 32 bits and wrap every ~136 years.
// They are ordered relative to the current time: anything up to 2^31
// seconds ahead of now is in the future, everything else is in the past.

// offset returns the signed distance from now to t.
func offset(t, now uint32) int64 {
	return int64(int32(t - now))
}

// lt reports whether a happened before b.
func lt(a, b, now uint32) bool {
	return offset(a, now) < offset(b, now)
}

// lte reports whether a happened at or before b.
func lte(a, b, now uint32) bool {
	return offset(a, now) <= offset(b, now)
}

// clamp maps future timestamps to now.
func clamp(t, now uint32) uint32 {
	if offset(t, now) > 0 {
		return now
	}
	return t
}

// elapsed returns the seconds between from and to, to not being before from.
func elapsed(from, to uint32) uint32 {
	return to - from
}

// Clock supplies the current time to read queries.
type Clock interface {
	Now() uint32
}

// ClockFunc adapts a function to a Clock.
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 {
	return f()
}

// SystemClock reads the wall clock.
var SystemClock = ClockFunc(func() uint32 {
	return Timestamp(time.Now())
})

// Timestamp truncates t to the ledger's 32 bit representation.
func Timestamp(t time.Time) uint32 {
	return uint32(t.Unix())
}

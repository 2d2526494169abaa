// Package clock abstracts time so that windows and fallback timers can be
// driven by a simulated clock in tests.
package clock

import "time"

// Timer is a single-shot timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock supplies wall time, a monotonic microsecond counter and timers.
type Clock interface {
	Now() time.Time
	// Micros returns microseconds elapsed on a monotonic clock since the
	// Clock was created.
	Micros() int64
	NewTimer(d time.Duration) Timer
}

// Real is a Clock backed by the runtime clock.
type Real struct {
	start time.Time
}

// New returns a Real clock anchored at the current instant.
func New() *Real {
	return &Real{start: time.Now()}
}

func (r *Real) Now() time.Time { return time.Now() }

// Micros uses the monotonic reading carried by start, so wall-clock jumps
// do not affect it.
func (r *Real) Micros() int64 { return time.Since(r.start).Microseconds() }

func (r *Real) NewTimer(d time.Duration) Timer { return realTimer{t: time.NewTimer(d)} }

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) C() <-chan time.Time { return rt.t.C }
func (rt realTimer) Stop() bool          { return rt.t.Stop() }

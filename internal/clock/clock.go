package clock

import "time"

// Clock supplies the current instant. Injected everywhere "now" matters so
// eviction and calendar-day windowing are testable.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Func adapts a plain function to a Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

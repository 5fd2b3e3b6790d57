// Package busday computes symmetric date windows measured in business days
// (Monday through Friday, no holiday calendar) around a reference date. Every
// time-windowed ledger search goes through it.
package busday

import (
	"math"
	"time"
)

const (
	// DefaultWindow is used when the caller supplies no usable span.
	DefaultWindow = 15
	// MinWindow is the smallest span ever produced; narrower ranges are not
	// useful for reconciliation searches.
	MinWindow = 5
)

// IsBusinessDay reports whether t falls on a weekday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Count returns the number of business days in the inclusive range [a, b],
// regardless of argument order. Counting a single day returns 1 if it is a
// business day, else 0.
func Count(a, b time.Time) int {
	a, b = startOfDay(a), startOfDay(b)
	if a.After(b) {
		a, b = b, a
	}
	n := 0
	for d := a; !d.After(b); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// Window returns the inclusive [start, end] range around ref that contains at
// least max(businessDays, MinWindow) business days strictly between each
// bound and the reference date. A non-positive businessDays falls back to
// DefaultWindow. Start is normalized to 00:00:00.000 and end to 23:59:59.999.
func Window(ref time.Time, businessDays int) (start, end time.Time) {
	if businessDays <= 0 {
		businessDays = DefaultWindow
	}
	min := businessDays
	if min < MinWindow {
		min = MinWindow
	}

	// Jump a weekend-adjusted estimate out, then walk one day at a time
	// until enough business days sit strictly between bound and reference.
	buffer := int(math.Ceil(float64(min) * 1.4))
	ref = startOfDay(ref)

	start = ref.AddDate(0, 0, -buffer)
	for between(start, ref) < min {
		start = start.AddDate(0, 0, -1)
	}
	end = ref.AddDate(0, 0, buffer)
	for between(ref, end) < min {
		end = end.AddDate(0, 0, 1)
	}

	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), end.Location())
	return start, end
}

// between counts business days strictly inside (a, b).
func between(a, b time.Time) int {
	lo, hi := a.AddDate(0, 0, 1), b.AddDate(0, 0, -1)
	if lo.After(hi) {
		return 0
	}
	return Count(lo, hi)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

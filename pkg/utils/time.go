package utils

import (
	"time"
)

// Deadline is a wall-clock budget checked cooperatively between units of
// work. A negative budget never expires; a zero budget is already expired.
type Deadline struct {
	start  time.Time
	budget time.Duration
	now    func() time.Time
}

// NewDeadline starts a budget measured from now.
func NewDeadline(budget time.Duration) *Deadline {
	return newDeadlineAt(time.Now, budget)
}

func newDeadlineAt(now func() time.Time, budget time.Duration) *Deadline {
	return &Deadline{start: now(), budget: budget, now: now}
}

// Unlimited reports whether the deadline can never expire.
func (d *Deadline) Unlimited() bool {
	return d == nil || d.budget < 0
}

// Expired reports whether the budget is used up.
func (d *Deadline) Expired() bool {
	if d.Unlimited() {
		return false
	}
	return d.now().Sub(d.start) >= d.budget
}

// Elapsed returns the time spent since the deadline started.
func (d *Deadline) Elapsed() time.Duration {
	if d == nil {
		return 0
	}
	return d.now().Sub(d.start)
}

// Remaining returns the time left, zero once expired, and a negative
// duration for unlimited budgets.
func (d *Deadline) Remaining() time.Duration {
	if d.Unlimited() {
		return -1
	}
	left := d.budget - d.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

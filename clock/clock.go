// Package clock provides the deadline-tracking primitive used by the
// ARP resolver's retry/timeout state machine. No function in this
// package reads the wall clock; every instant is supplied by the
// caller, matching the engine's single-threaded, clock-injected model.
package clock

import "time"

// Timer tracks a single absolute deadline. Its zero value is disarmed.
type Timer struct {
	deadline time.Time
	armed    bool
}

// Arm sets the timer to fire at now.Add(d).
func (t *Timer) Arm(now time.Time, d time.Duration) {
	t.deadline = now.Add(d)
	t.armed = true
}

// Disarm clears the timer so Fired never reports true until re-armed.
func (t *Timer) Disarm() {
	t.armed = false
}

// Armed reports whether the timer currently has a pending deadline.
func (t *Timer) Armed() bool { return t.armed }

// Deadline returns the instant the timer is set to fire at.
func (t *Timer) Deadline() time.Time { return t.deadline }

// Fired reports whether now has reached or passed the armed deadline.
// Firing is lazy: it is only observed the next time Fired is called
// with a qualifying now, never pushed by a background goroutine.
func (t *Timer) Fired(now time.Time) bool {
	return t.armed && !now.Before(t.deadline)
}

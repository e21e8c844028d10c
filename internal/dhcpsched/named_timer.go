package dhcpsched

import "time"

// NamedTimer is a single delay/cancel slot: arming it cancels whatever was
// previously armed in the same slot, so a caller never has more than one
// pending callback per NamedTimer. The client and server each keep one
// NamedTimer per named delay (e.g. "retransmit", "renew", "rebind",
// "expiry") rather than juggling raw EventIDs.
type NamedTimer struct {
	sched   Scheduler
	pending EventID
	armed   bool
}

// NewNamedTimer returns a NamedTimer backed by sched.
func NewNamedTimer(sched Scheduler) *NamedTimer {
	return &NamedTimer{sched: sched}
}

// Arm cancels any previously scheduled callback in this slot and schedules
// cb to run after delay.
func (t *NamedTimer) Arm(delay time.Duration, cb func()) {
	t.Cancel()
	t.pending = t.sched.Schedule(delay, cb)
	t.armed = true
}

// Cancel suppresses this slot's pending callback, if any.
func (t *NamedTimer) Cancel() {
	if !t.armed {
		return
	}
	t.sched.Cancel(t.pending)
	t.armed = false
}

// Armed reports whether this slot has been armed and not canceled since.
// It is not cleared when the callback runs, so it stays true after the
// armed callback has fired until the next Cancel.
func (t *NamedTimer) Armed() bool { return t.armed }

package autosave

import "time"

// Clock is the time source the scheduler arms its timers on. Tests supply
// a manual clock so debounce and backup fires happen exactly when advanced.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// handle is one named timer owned by the scheduler.
//
// STALE FIRES:
// Stop cannot recall a callback the runtime already started. Every arm and
// cancel bumps seq, and the callback carries the seq it was armed with, so
// a fire that lost the race with cancel sees a newer seq and does nothing.
type handle struct {
	t     Timer
	seq   uint64
	armed bool
}

// arm (re)starts the timer. Callers hold the scheduler lock.
func (h *handle) arm(c Clock, d time.Duration, fire func(seq uint64)) {
	if h.t != nil {
		h.t.Stop()
	}
	h.seq++
	seq := h.seq
	h.armed = true
	h.t = c.AfterFunc(d, func() { fire(seq) })
}

// cancel stops the timer. Callers hold the scheduler lock.
func (h *handle) cancel() {
	if h.t != nil {
		h.t.Stop()
		h.t = nil
	}
	h.seq++
	h.armed = false
}

// claim reports whether a fire carrying seq is still current, and disarms
// the handle if so. Callers hold the scheduler lock.
func (h *handle) claim(seq uint64) bool {
	if !h.armed || seq != h.seq {
		return false
	}
	h.armed = false
	h.t = nil
	return true
}

package supervisor

import (
	"sync"
	"time"
)

// timerSet tracks at most one pending timer per session id. Arming
// always supersedes any existing timer; cancelling an absent or
// already-fired timer is a no-op.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// Arm schedules fn after delay, replacing any pending timer for id.
func (ts *timerSet) Arm(id string, delay time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if existing, ok := ts.timers[id]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		ts.mu.Lock()
		// A newer timer may have superseded this one between firing and
		// acquiring the lock; only the current owner clears the slot.
		if ts.timers[id] == timer {
			delete(ts.timers, id)
		}
		ts.mu.Unlock()
		fn()
	})
	ts.timers[id] = timer
}

// Cancel stops and removes the pending timer for id, if any.
func (ts *timerSet) Cancel(id string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if timer, ok := ts.timers[id]; ok {
		timer.Stop()
		delete(ts.timers, id)
	}
}

// Pending reports whether a timer is armed for id.
func (ts *timerSet) Pending(id string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, ok := ts.timers[id]
	return ok
}

// CancelAll stops every pending timer.
func (ts *timerSet) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for id, timer := range ts.timers {
		timer.Stop()
		delete(ts.timers, id)
	}
}

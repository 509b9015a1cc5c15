package pool

import (
	"sync"
	"time"
)

// timers holds stopped or fired *time.Timer values for reuse.
var timers sync.Pool

// GetTimer returns a pooled timer armed for d. Hand it back with PutTimer
// once it has fired or is no longer needed.
func GetTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}
	t := v.(*time.Timer)
	if t.Reset(d) {
		// The timer was still armed when pooled; clear any fire that
		// landed between Get and Reset.
		select {
		case <-t.C:
		default:
		}
	}
	return t
}

// PutTimer stops t and pools it. t must not be touched after the call.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// Already fired; clear the channel so the next GetTimer does not
		// see a stale tick.
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}

// Package watchdog tracks which cards are physically on a reader. A card is
// present while heartbeats keep arriving within the timeout.
package watchdog

import (
	"sort"
	"time"
)

const DefaultTimeout = 3 * time.Second

// Watchdog is not safe for concurrent use; the reconciliation loop owns it.
type Watchdog struct {
	timeout  time.Duration
	lastSeen map[string]time.Time
}

func New(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{
		timeout:  timeout,
		lastSeen: make(map[string]time.Time),
	}
}

// Heartbeat marks uid present as of at.
func (w *Watchdog) Heartbeat(uid string, at time.Time) {
	w.lastSeen[uid] = at
}

// Remove marks uid absent. It reports whether uid was being tracked.
func (w *Watchdog) Remove(uid string) bool {
	_, ok := w.lastSeen[uid]
	delete(w.lastSeen, uid)
	return ok
}

func (w *Watchdog) Present(uid string) bool {
	_, ok := w.lastSeen[uid]
	return ok
}

func (w *Watchdog) Tracked() int {
	return len(w.lastSeen)
}

// Tick returns, in uid order, every card silent for longer than the timeout
// and stops tracking them, so each absence is reported once.
func (w *Watchdog) Tick(now time.Time) []string {
	var expired []string
	for uid, last := range w.lastSeen {
		if now.Sub(last) > w.timeout {
			expired = append(expired, uid)
		}
	}
	for _, uid := range expired {
		delete(w.lastSeen, uid)
	}
	sort.Strings(expired)
	return expired
}

package reclaim

import (
	"sync"
	"time"
)

// Tracker records the time of the last admitted operation. One instance is
// shared between the extraction path (which touches it) and the reclaimer
// (which reads it).
type Tracker struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewTracker builds a tracker whose idle clock starts at construction.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{last: now(), now: now}
}

// Touch marks activity now.
func (t *Tracker) Touch() {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()
}

// IdleFor returns the elapsed time since the last activity.
func (t *Tracker) IdleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.last)
}

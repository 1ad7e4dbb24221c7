package scanner

import (
	"sync"
	"time"
)

const DefaultCooldown = 3 * time.Second

// Record remembers when each code was last reported.
type Record struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSeen map[string]time.Time
}

func NewRecord(cooldown time.Duration) *Record {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Record{
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
	}
}

// Observe returns true when code has not been seen within the cooldown window
// and stamps it with now. Codes inside the window leave the record untouched.
func (r *Record) Observe(code string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.lastSeen[code]
	if ok && now.Sub(last) <= r.cooldown {
		return false
	}
	r.lastSeen[code] = now
	return true
}

// Evict drops entries whose cooldown has already elapsed. An evicted code is
// treated as new on its next sighting, which Observe would do anyway.
func (r *Record) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for code, last := range r.lastSeen {
		if now.Sub(last) > r.cooldown {
			delete(r.lastSeen, code)
			removed++
		}
	}
	return removed
}

func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lastSeen)
}

func (r *Record) Cooldown() time.Duration {
	return r.cooldown
}

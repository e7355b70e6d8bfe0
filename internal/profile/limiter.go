package profile

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// authLimiter throttles key verification per profile: 2 attempts a minute
// with a burst of 5. Entries idle past the TTL are dropped so the map
// cannot grow without bound.
type authLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*limEntry
}

type limEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{
		limit:   rate.Every(30 * time.Second),
		burst:   5,
		ttl:     time.Hour,
		entries: make(map[string]*limEntry),
	}
}

func (a *authLimiter) allow(key string) bool {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	e := a.entries[key]
	if e == nil {
		e = &limEntry{lim: rate.NewLimiter(a.limit, a.burst), lastSeen: now}
		a.entries[key] = e
	}
	e.lastSeen = now

	for k, v := range a.entries {
		if now.Sub(v.lastSeen) > a.ttl {
			delete(a.entries, k)
		}
	}
	return e.lim.Allow()
}

// reset forgets a key's history. Called after a successful verification
// so legitimate use never accumulates toward the cap.
func (a *authLimiter) reset(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
}

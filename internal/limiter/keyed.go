package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyedEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Keyed is a set of token buckets keyed by caller (actor id or peer address).
type Keyed struct {
	mu      sync.Mutex
	buckets map[string]*keyedEntry
	rate    rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewKeyed creates a keyed limiter allowing perSecond events with the given burst.
// perSecond <= 0 disables limiting.
func NewKeyed(perSecond float64, burst int) *Keyed {
	r := rate.Limit(perSecond)
	if perSecond <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Keyed{
		buckets: make(map[string]*keyedEntry),
		rate:    r,
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	e, ok := k.buckets[key]
	if !ok {
		e = &keyedEntry{lim: rate.NewLimiter(k.rate, k.burst)}
		k.buckets[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Cleanup removes buckets idle for longer than the idle timeout.
func (k *Keyed) Cleanup() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	for key, e := range k.buckets {
		if now.Sub(e.seen) > k.idle {
			delete(k.buckets, key)
		}
	}
}

// Len reports the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

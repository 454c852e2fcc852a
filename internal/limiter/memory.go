package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type loginEntry struct {
	fails        *rate.Limiter
	blockedUntil time.Time
	seen         time.Time
}

// Memory is an in-process Limiter. Each (email, ip) pair gets a token bucket
// holding maxFails failures that refills over window; an empty bucket blocks
// the pair for blockFor.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*loginEntry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-memory login limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	if maxFails < 1 {
		maxFails = 1
	}
	return &Memory{
		entries:  make(map[string]*loginEntry),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func loginKey(email string, ipHash []byte) string { return email + "|" + string(ipHash) }

// Allow reports whether the pair is currently blocked.
func (l *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[loginKey(email, ipHash)]
	if !ok {
		return true, 0, nil
	}
	now := l.now()
	if e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (l *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	l.mu.Lock()
	delete(l.entries, loginKey(email, ipHash))
	l.mu.Unlock()
	return nil
}

// Failure spends one token; when the bucket is empty the pair is blocked.
func (l *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := loginKey(email, ipHash)
	e, ok := l.entries[k]
	if !ok {
		every := l.window / time.Duration(l.maxFails)
		e = &loginEntry{fails: rate.NewLimiter(rate.Every(every), l.maxFails-1)}
		l.entries[k] = e
	}
	e.seen = now
	if !e.fails.AllowN(now, 1) {
		e.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}

// Sweep drops pairs that are neither blocked nor seen within the window.
func (l *Memory) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.entries {
		if e.blockedUntil.Before(now) && now.Sub(e.seen) > l.window {
			delete(l.entries, k)
		}
	}
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/flour/internal/repository"
)

// Deduper is an in-process EventDeduper with a retention window.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ repository.EventDeduper = (*Deduper)(nil)

// NewDeduper keeps ids for ttl.
func NewDeduper(ttl time.Duration) *Deduper {
	return &Deduper{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

func (d *Deduper) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[id]; ok {
		return false, nil
	}
	d.seen[id] = now
	return true, nil
}

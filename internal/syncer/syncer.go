// Package syncer mirrors committed engine state to the external SyncStore.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/flour/internal/events"
	"github.com/and161185/flour/internal/metrics"
	"github.com/and161185/flour/internal/model"
	"github.com/and161185/flour/internal/repository"
	"github.com/and161185/flour/internal/service"
)

const (
	DefaultQueueSize    = 1024
	DefaultWriteTimeout = 5 * time.Second
)

var errUnexpectedRecord = errors.New("unexpected record type")

// Syncer queues bus events and writes them to the store on one worker
// goroutine. Write failures are logged and never reach the engine.
type Syncer struct {
	store        repository.SyncStore
	log          *zap.Logger
	metrics      *metrics.Collector
	writeTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan events.Event
	done    chan struct{}
	unsub   func()
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithQueueSize bounds the number of pending writes.
func WithQueueSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.queue = make(chan events.Event, n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Syncer) { s.log = l } }

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option { return func(s *Syncer) { s.metrics = c } }

// WithWriteTimeout bounds a single store write.
func WithWriteTimeout(d time.Duration) Option { return func(s *Syncer) { s.writeTimeout = d } }

// New builds a Syncer. Call Start to subscribe and run the worker.
func New(store repository.SyncStore, opts ...Option) *Syncer {
	s := &Syncer{
		store:        store,
		log:          zap.NewNop(),
		writeTimeout: DefaultWriteTimeout,
		queue:        make(chan events.Event, DefaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start subscribes to bus and launches the worker.
func (s *Syncer) Start(bus *events.Bus) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.unsub = bus.Subscribe(s.Enqueue)
	go s.run()
}

// Enqueue is the bus handler. It never blocks: a full queue drops the event.
func (s *Syncer) Enqueue(_ context.Context, ev events.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
		s.metrics.SyncQueueDepth(len(s.queue))
	default:
		s.metrics.SyncResult("dropped")
		s.log.Warn("sync queue full, dropping event",
			zap.String("entity", string(ev.Entity)),
			zap.String("id", ev.ID.String()),
			zap.Int("capacity", cap(s.queue)))
	}
}

// Close unsubscribes, drains the queued writes and waits for the worker.
func (s *Syncer) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Syncer) run() {
	defer close(s.done)
	for ev := range s.queue {
		s.metrics.SyncQueueDepth(len(s.queue))
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.write(ctx, ev)
		cancel()
		if err != nil {
			s.metrics.SyncResult("error")
			s.log.Error("sync write failed",
				zap.String("entity", string(ev.Entity)),
				zap.String("kind", string(ev.Kind)),
				zap.String("id", ev.ID.String()),
				zap.Error(err))
			continue
		}
		s.metrics.SyncResult("ok")
	}
}

func (s *Syncer) write(ctx context.Context, ev events.Event) error {
	if ev.Kind == events.KindDelete {
		if ev.Entity != events.EntityRequest {
			return fmt.Errorf("delete of %s: %w", ev.Entity, errUnexpectedRecord)
		}
		return s.store.DeleteRequest(ctx, ev.ID)
	}
	switch rec := ev.Record.(type) {
	case model.User:
		return s.store.UpsertUser(ctx, rec)
	case model.School:
		return s.store.UpsertSchool(ctx, rec)
	case model.Request:
		return s.store.UpsertRequest(ctx, rec)
	case model.Offer:
		return s.store.UpsertOffer(ctx, rec)
	case model.Transaction:
		return s.store.UpsertTransaction(ctx, rec)
	case model.Message:
		return s.store.UpsertMessage(ctx, rec)
	default:
		return fmt.Errorf("%s %s: %T: %w", ev.Entity, ev.ID, ev.Record, errUnexpectedRecord)
	}
}

// hydrator is the part of the engine Restore feeds.
type hydrator interface {
	Hydrate(s service.Snapshot) error
}

// Restore loads persisted state into the engine. Transactions are limited to
// those userID is a party to; uuid.Nil restores all of them. Requests beyond
// requestLimit are still restored when a loaded transaction refers to them.
func Restore(ctx context.Context, store repository.SyncStore, h hydrator, userID uuid.UUID, requestLimit int) (service.Snapshot, error) {
	var (
		snap service.Snapshot
		err  error
	)
	if snap.Users, err = store.LoadUsers(ctx); err != nil {
		return service.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	if snap.Schools, err = store.LoadSchools(ctx); err != nil {
		return service.Snapshot{}, fmt.Errorf("load schools: %w", err)
	}
	if snap.Requests, err = store.LoadRequests(ctx, requestLimit); err != nil {
		return service.Snapshot{}, fmt.Errorf("load requests: %w", err)
	}
	if snap.Transactions, err = store.LoadTransactions(ctx, userID); err != nil {
		return service.Snapshot{}, fmt.Errorf("load transactions: %w", err)
	}

	loaded := make(map[uuid.UUID]bool, len(snap.Requests))
	for _, r := range snap.Requests {
		loaded[r.ID] = true
	}
	var missing []uuid.UUID
	for _, t := range snap.Transactions {
		if !loaded[t.RequestID] {
			loaded[t.RequestID] = true
			missing = append(missing, t.RequestID)
		}
	}
	if len(missing) > 0 {
		extra, err := store.LoadRequestsByID(ctx, missing)
		if err != nil {
			return service.Snapshot{}, fmt.Errorf("load transaction requests: %w", err)
		}
		snap.Requests = append(snap.Requests, extra...)
		sort.SliceStable(snap.Requests, func(i, j int) bool {
			return snap.Requests[i].CreatedAt.After(snap.Requests[j].CreatedAt)
		})
	}

	for _, r := range snap.Requests {
		offers, err := store.LoadOffers(ctx, r.ID)
		if err != nil {
			return service.Snapshot{}, fmt.Errorf("load offers of %s: %w", r.ID, err)
		}
		snap.Offers = append(snap.Offers, offers...)
	}
	for _, t := range snap.Transactions {
		msgs, err := store.LoadMessages(ctx, t.ID)
		if err != nil {
			return service.Snapshot{}, fmt.Errorf("load messages of %s: %w", t.ID, err)
		}
		snap.Messages = append(snap.Messages, msgs...)
	}
	if err := h.Hydrate(snap); err != nil {
		return service.Snapshot{}, fmt.Errorf("hydrate: %w", err)
	}
	return snap, nil
}

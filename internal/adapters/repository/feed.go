package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

// feed fans complete snapshots of one collection out to subscribers.
// Each subscriber owns a goroutine and a one-slot mailbox: a newer snapshot
// replaces an undelivered older one, so a slow subscriber sees fewer but
// always complete snapshots, in publication order.
type feed[T any] struct {
	collection string
	size       func(T) int
	log        logger.Logger

	mu      sync.Mutex
	current T
	ready   bool
	closed  bool
	nextID  uint64
	subs    map[uint64]*subscription[T]
}

func newFeed[T any](collection string, size func(T) int, log logger.Logger) *feed[T] {
	return &feed[T]{
		collection: collection,
		size:       size,
		log:        log.Named(collection),
		subs:       make(map[uint64]*subscription[T]),
	}
}

// publish replaces the current snapshot and offers it to every subscriber.
func (f *feed[T]) publish(snap T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.current = snap
	f.ready = true
	for _, s := range f.subs {
		s.offer(snap)
	}
	metrics.UpdateRecordsTotal(f.collection, f.size(snap))
}

func (f *feed[T]) subscribe(ctx context.Context, sub Subscriber[T]) (Unsubscribe, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscribe %s: nil subscriber", f.collection)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	id := f.nextID
	f.nextID++
	s := newSubscription(sub, f.collection, f.log)
	f.subs[id] = s
	if f.ready {
		s.offer(f.current)
	}
	f.mu.Unlock()

	metrics.AddSubscribers(f.collection, 1)
	go s.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.cancel()
			f.mu.Lock()
			_, ok := f.subs[id]
			delete(f.subs, id)
			f.mu.Unlock()
			if ok {
				metrics.AddSubscribers(f.collection, -1)
			}
		})
	}

	select {
	case <-s.first:
		return unsubscribe, nil
	case <-s.done:
		// feed closed before anything was delivered
		unsubscribe()
		return nil, ErrClosed
	case <-ctx.Done():
		unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", f.collection, ctx.Err())
	}
}

func (f *feed[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, s := range f.subs {
		s.cancel()
		delete(f.subs, id)
		metrics.AddSubscribers(f.collection, -1)
	}
}

type subscription[T any] struct {
	sub        Subscriber[T]
	collection string
	log        logger.Logger

	mu        sync.Mutex
	pending   T
	dirty     bool
	cancelled bool

	notify    chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
}

func newSubscription[T any](sub Subscriber[T], collection string, log logger.Logger) *subscription[T] {
	return &subscription[T]{
		sub:        sub,
		collection: collection,
		log:        log,
		notify:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		first:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *subscription[T]) offer(snap T) {
	s.mu.Lock()
	s.pending = snap
	s.dirty = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// cancel stops delivery. A callback already dispatched runs to completion;
// no later snapshot is handed over.
func (s *subscription[T]) cancel() {
	s.mu.Lock()
	s.cancelled = true
	var zero T
	s.pending = zero
	s.dirty = false
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *subscription[T]) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return
		}
		if !s.dirty {
			s.mu.Unlock()
			continue
		}
		snap := s.pending
		var zero T
		s.pending = zero
		s.dirty = false
		s.mu.Unlock()

		s.deliver(snap)
		s.firstOnce.Do(func() { close(s.first) })
	}
}

func (s *subscription[T]) deliver(snap T) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(context.Background(), "subscriber panicked", logger.Any("panic", r))
			metrics.RecordErrorByComponent("repository", "subscriber_panic")
		}
	}()
	s.sub.OnSnapshot(snap)
	metrics.RecordSnapshotDelivered(s.collection)
}

package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

// MemoryStore keeps both collections in process. Every append publishes a
// fresh sorted copy, so earlier snapshots are never mutated.
type MemoryStore struct {
	opts options

	mu         sync.Mutex
	roles      []model.Role      // title asc, insertion order on ties
	candidates []model.Candidate // score desc, insertion order on ties
	closed     bool

	roleFeed      *feed[[]model.Role]
	candidateFeed *feed[[]model.Candidate]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store whose feeds are ready immediately.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	s := &MemoryStore{
		opts:          o,
		roleFeed:      newFeed(CollectionRoles, lenOf[model.Role], o.log),
		candidateFeed: newFeed(CollectionCandidates, lenOf[model.Candidate], o.log),
	}
	s.roleFeed.publish([]model.Role{})
	s.candidateFeed.publish([]model.Candidate{})
	return s
}

// CreateRole appends a role.
func (s *MemoryStore) CreateRole(ctx context.Context, title, description string) (string, error) {
	start := time.Now()
	if err := s.precheck(ctx, CollectionRoles); err != nil {
		recordWrite(CollectionRoles, err, start)
		return "", err
	}

	r := model.Role{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   s.opts.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		err := &WriteError{Collection: CollectionRoles, Err: ErrClosed}
		recordWrite(CollectionRoles, err, start)
		return "", err
	}
	i := insertPos(s.roles, func(x model.Role) bool { return x.Title <= r.Title })
	s.roles = slices.Insert(slices.Clone(s.roles), i, r)
	s.roleFeed.publish(s.roles)
	recordWrite(CollectionRoles, nil, start)

	s.opts.log.Debug(ctx, "role created", logger.String("id", r.ID), logger.String("title", r.Title))
	return r.ID, nil
}

// CreateCandidate appends a candidate.
func (s *MemoryStore) CreateCandidate(ctx context.Context, c model.Candidate) (string, error) {
	start := time.Now()
	if err := s.precheck(ctx, CollectionCandidates); err != nil {
		recordWrite(CollectionCandidates, err, start)
		return "", err
	}

	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.opts.now()
	}
	c.SpecialTraits = slices.Clone(c.SpecialTraits)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		err := &WriteError{Collection: CollectionCandidates, Err: ErrClosed}
		recordWrite(CollectionCandidates, err, start)
		return "", err
	}
	i := insertPos(s.candidates, func(x model.Candidate) bool { return x.Score >= c.Score })
	s.candidates = slices.Insert(slices.Clone(s.candidates), i, c)
	s.candidateFeed.publish(s.candidates)
	recordWrite(CollectionCandidates, nil, start)

	s.opts.log.Debug(ctx, "candidate created",
		logger.String("id", c.ID),
		logger.String("role_id", c.RoleID),
		logger.Int("score", c.Score),
	)
	return c.ID, nil
}

// SubscribeRoles implements Store.
func (s *MemoryStore) SubscribeRoles(ctx context.Context, sub Subscriber[[]model.Role]) (Unsubscribe, error) {
	return s.roleFeed.subscribe(ctx, sub)
}

// SubscribeCandidates implements Store.
func (s *MemoryStore) SubscribeCandidates(ctx context.Context, sub Subscriber[[]model.Candidate]) (Unsubscribe, error) {
	return s.candidateFeed.subscribe(ctx, sub)
}

// Close stops every subscription. Later writes fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.roleFeed.close()
	s.candidateFeed.close()
	return nil
}

func (s *MemoryStore) precheck(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Collection: collection, Err: err}
	}
	if s.opts.writeHook != nil {
		if err := s.opts.writeHook(collection); err != nil {
			return &WriteError{Collection: collection, Err: err}
		}
	}
	return nil
}

// insertPos returns the index after the last element for which before holds.
// Slices are kept sorted so that before is true for a prefix.
func insertPos[T any](xs []T, before func(T) bool) int {
	i, _ := slices.BinarySearchFunc(xs, true, func(x T, _ bool) int {
		if before(x) {
			return -1
		}
		return 1
	})
	return i
}

func lenOf[T any](xs []T) int { return len(xs) }

func recordWrite(collection string, err error, start time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		metrics.RecordErrorByComponent("repository", "write_failed")
	}
	metrics.RecordStoreWrite(collection, outcome, float64(time.Since(start).Microseconds())/1000)
}

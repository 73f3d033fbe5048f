package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/shortlist/internal/domain/model"
)

// recorder forwards every snapshot to a buffered channel.
type recorder[T any] struct {
	ch chan T
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{ch: make(chan T, 64)}
}

func (r *recorder[T]) OnSnapshot(s T) { r.ch <- s }

// next waits for a snapshot or fails the test.
func (r *recorder[T]) next(t *testing.T) T {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

// waitFor drains snapshots until ok returns true.
func (r *recorder[T]) waitFor(t *testing.T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
		}
	}
}

func candidate(roleID, name string, score int) model.Candidate {
	return model.Candidate{
		RoleID: roleID,
		CandidateAnalysis: model.CandidateAnalysis{
			Name:          name,
			Score:         score,
			SpecialTraits: []string{"a", "b"},
		},
	}
}

func TestMemoryStore_RoleFeed(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return fixed }))
	defer func() { _ = store.Close() }()

	rec := newRecorder[[]model.Role]()
	unsub, err := store.SubscribeRoles(ctx, rec)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// The current (empty) snapshot is delivered before Subscribe returns.
	if first := rec.next(t); len(first) != 0 {
		t.Fatalf("expected empty first snapshot, got %d roles", len(first))
	}

	id, err := store.CreateRole(ctx, "AI Engineer", "Builds ML systems")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	snap := rec.next(t)
	if len(snap) != 1 {
		t.Fatalf("expected exactly one role, got %d", len(snap))
	}
	if snap[0].ID != id || snap[0].Title != "AI Engineer" || !snap[0].CreatedAt.Equal(fixed) {
		t.Errorf("unexpected role %+v", snap[0])
	}

	if _, err := store.CreateRole(ctx, "Backend Developer", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateRole(ctx, "Account Manager", ""); err != nil {
		t.Fatal(err)
	}
	snap = rec.waitFor(t, func(s []model.Role) bool { return len(s) == 3 })
	want := []string{"AI Engineer", "Account Manager", "Backend Developer"}
	for i, r := range snap {
		if r.Title != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], r.Title)
		}
	}
}

func TestMemoryStore_CandidateOrderAndImmutability(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	rec := newRecorder[[]model.Candidate]()
	unsub, err := store.SubscribeCandidates(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	rec.next(t)

	xID, _ := store.CreateCandidate(ctx, candidate("r1", "X", 70))
	afterX := rec.waitFor(t, func(s []model.Candidate) bool { return len(s) == 1 })
	yID, _ := store.CreateCandidate(ctx, candidate("r1", "Y", 70))
	topID, _ := store.CreateCandidate(ctx, candidate("r2", "Jane Doe", 87))
	lowID, _ := store.CreateCandidate(ctx, candidate("r1", "Low", 12))

	snap := rec.waitFor(t, func(s []model.Candidate) bool { return len(s) == 4 })
	want := []string{topID, xID, yID, lowID}
	for i, c := range snap {
		if c.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s (%s)", i, want[i], c.ID, c.Name)
		}
		if c.CreatedAt.IsZero() {
			t.Errorf("candidate %s has no creation time", c.ID)
		}
	}

	if len(afterX) != 1 || afterX[0].ID != xID {
		t.Errorf("earlier snapshot was mutated: %+v", afterX)
	}
}

func TestMemoryStore_WriteFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection reset")
	store := NewMemoryStore(WithWriteHook(func(collection string) error {
		if collection == CollectionCandidates {
			return cause
		}
		return nil
	}))
	defer func() { _ = store.Close() }()

	rec := newRecorder[[]model.Candidate]()
	unsub, err := store.SubscribeCandidates(ctx, rec)
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	rec.next(t)

	_, err = store.CreateCandidate(ctx, candidate("r1", "Jane", 50))
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected write failure wrapping cause, got %v", err)
	}
	var werr *WriteError
	if !errors.As(err, &werr) || werr.Collection != CollectionCandidates {
		t.Fatalf("expected WriteError for candidates, got %v", err)
	}

	select {
	case s := <-rec.ch:
		t.Fatalf("no snapshot expected after failed write, got %d records", len(s))
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := store.CreateRole(ctx, "Still works", ""); err != nil {
		t.Fatalf("role writes should succeed: %v", err)
	}
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := newRecorder[[]model.Role]()
	if _, err := store.SubscribeRoles(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.next(t)

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SubscribeRoles(ctx, rec); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := store.CreateRole(ctx, "late", ""); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected write failure after close, got %v", err)
	}
}

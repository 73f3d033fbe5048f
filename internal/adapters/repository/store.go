// Package repository implements the replicated store: append-only role and
// candidate collections with live full-snapshot subscriptions.
package repository

import (
	"context"

	"github.com/okian/shortlist/internal/domain/model"
)

// Collection names. They double as metric labels and notification payloads.
const (
	CollectionRoles      = "roles"
	CollectionCandidates = "candidates"
)

// Subscriber receives complete snapshots of one collection. Snapshots are
// shared between subscribers and must be treated as read-only.
type Subscriber[T any] interface {
	OnSnapshot(snapshot T)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc[T any] func(T)

// OnSnapshot calls f.
func (f SubscriberFunc[T]) OnSnapshot(snapshot T) { f(snapshot) }

// Unsubscribe stops delivery. It is idempotent and safe to call from inside
// OnSnapshot.
type Unsubscribe func()

// Store is the replicated store contract.
type Store interface {
	// CreateRole appends a role stamped with the current time and returns its id.
	CreateRole(ctx context.Context, title, description string) (string, error)
	// CreateCandidate appends c with a fresh id. RoleID is not checked.
	CreateCandidate(ctx context.Context, c model.Candidate) (string, error)

	// SubscribeRoles delivers roles ordered by title ascending. It returns
	// after the first snapshot has been delivered.
	SubscribeRoles(ctx context.Context, sub Subscriber[[]model.Role]) (Unsubscribe, error)
	// SubscribeCandidates delivers candidates ordered by score descending.
	// It returns after the first snapshot has been delivered.
	SubscribeCandidates(ctx context.Context, sub Subscriber[[]model.Candidate]) (Unsubscribe, error)

	Close() error
}

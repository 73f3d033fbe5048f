package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shortlist/internal/domain/model"
)

// openTestPostgres connects to SHORTLIST_TEST_DATABASE_URL under a fresh
// namespace, or skips.
func openTestPostgres(t *testing.T, opts ...Option) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("SHORTLIST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SHORTLIST_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts = append([]Option{WithNamespace("test-" + uuid.NewString()), WithReconnectDelay(50 * time.Millisecond)}, opts...)
	s, err := OpenPostgres(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	store := openTestPostgres(t)

	Convey("Given a postgres store in a fresh namespace", t, func() {
		ctx := context.Background()

		Convey("When a role is created", func() {
			rec := newRecorder[[]model.Role]()
			unsub, err := store.SubscribeRoles(ctx, rec)
			So(err, ShouldBeNil)
			defer unsub()

			id, err := store.CreateRole(ctx, "AI Engineer", "Builds ML systems")
			So(err, ShouldBeNil)

			Convey("Then the notification delivers a snapshot containing it", func() {
				snap := rec.waitFor(t, func(s []model.Role) bool { return len(s) > 0 })
				So(snap, ShouldHaveLength, 1)
				So(snap[0].ID, ShouldEqual, id)
				So(snap[0].Title, ShouldEqual, "AI Engineer")
			})
		})

		Convey("When candidates with tied scores are created", func() {
			rec := newRecorder[[]model.Candidate]()
			unsub, err := store.SubscribeCandidates(ctx, rec)
			So(err, ShouldBeNil)
			defer unsub()

			x, err := store.CreateCandidate(ctx, candidate("r1", "X", 70))
			So(err, ShouldBeNil)
			y, err := store.CreateCandidate(ctx, candidate("r1", "Y", 70))
			So(err, ShouldBeNil)
			top, err := store.CreateCandidate(ctx, candidate("r2", "Jane", 87))
			So(err, ShouldBeNil)

			Convey("Then the snapshot is ordered by score with ties in insertion order", func() {
				snap := rec.waitFor(t, func(s []model.Candidate) bool { return len(s) == 3 })
				So([]string{snap[0].ID, snap[1].ID, snap[2].ID}, ShouldResemble, []string{top, x, y})
				So(snap[0].SpecialTraits, ShouldResemble, []string{"a", "b"})
			})
		})
	})
}

func TestPostgresStore_WriteFailure(t *testing.T) {
	cause := errors.New("injected")
	store := openTestPostgres(t, WithWriteHook(func(string) error { return cause }))

	Convey("Given a store whose writes fail", t, func() {
		_, err := store.CreateRole(context.Background(), "x", "y")

		Convey("Then the error is a write failure", func() {
			So(errors.Is(err, ErrWriteFailed), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
		})
	})
}

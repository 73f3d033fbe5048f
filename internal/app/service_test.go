package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/shortlist/internal/adapters/repository"
	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/internal/domain/intake"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/internal/domain/ranking"
)

// scriptedGenerator answers with one payload per call, keyed by CV text.
type scriptedGenerator struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
}

func (g *scriptedGenerator) Generate(_ context.Context, req analysis.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	for cv, answer := range g.answers {
		if strings.Contains(req.Prompt, "Candidate CV Text: "+cv) {
			return answer, nil
		}
	}
	return "", errors.New("no scripted answer")
}

func payload(name string, score int, traits string) string {
	return fmt.Sprintf(`{"name":%q,"summary":"...","score":%d,"overallMatch":90,"roleFit":85,`+
		`"experience":80,"qualification":88,%s"fitReason":"...","improvementAreas":"...",`+
		`"nextStepRecommendation":"Invite for interview"}`, name, score, traits)
}

const twoTraits = `"specialTraits":["ML expert","Leadership"],`

// eventually polls cond for up to two seconds.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without an analysis generator", t, func() {
		svc := service.New()

		Convey("Then it refuses to start", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			_, err := svc.Submit(context.Background(), "r", "cv")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		svc := service.New(service.WithGenerator(&scriptedGenerator{}))
		So(svc.Start(context.Background()), ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then the cached projections are populated and stats report it", func() {
			So(svc.Roles(), ShouldNotBeNil)
			So(svc.Candidates(), ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["intake"], ShouldEqual, "idle")
			So(stats["orphanCandidates"], ShouldEqual, 0)
		})

		Convey("When stopping the service", func() {
			ch, _ := svc.Watch()
			svc.Stop()
			svc.Stop()

			Convey("Then it is marked as stopped and watchers are released", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				closed := false
				timeout := time.After(2 * time.Second)
				for !closed {
					select {
					case _, open := <-ch:
						closed = !open
					case <-timeout:
						So("watch channel still open", ShouldBeEmpty)
						return
					}
				}
				So(closed, ShouldBeTrue)
			})
		})
	})
}

func TestService_EndToEnd(t *testing.T) {
	Convey("Given a service over an in-memory store", t, func() {
		ctx := context.Background()
		gen := &scriptedGenerator{answers: map[string]string{
			"Jane Doe, 5 years ML": payload("Jane Doe", 87, twoTraits),
			"Bob, junior":          payload("Bob", 40, twoTraits),
			"Broken":               payload("Broken", 50, ""),
			"X cv":                 payload("X", 70, twoTraits),
			"Y cv":                 payload("Y", 70, twoTraits),
		}}
		store := repository.NewMemoryStore()
		svc := service.New(service.WithStore(store), service.WithGenerator(gen))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		var mu sync.Mutex
		var roleSnaps [][]model.Role
		unsub, err := store.SubscribeRoles(ctx, repository.SubscriberFunc[[]model.Role](func(s []model.Role) {
			mu.Lock()
			roleSnaps = append(roleSnaps, s)
			mu.Unlock()
		}))
		So(err, ShouldBeNil)
		Reset(unsub)

		r1, err := svc.CreateRole(ctx, "AI Engineer", "Build and ship ML systems")
		So(err, ShouldBeNil)
		So(eventually(func() bool { _, ok := svc.Role(r1); return ok }), ShouldBeTrue)

		Convey("When the role is created", func() {
			Convey("Then a roles snapshot contains exactly that role", func() {
				So(eventually(func() bool {
					mu.Lock()
					defer mu.Unlock()
					last := roleSnaps[len(roleSnaps)-1]
					return len(last) == 1 && last[0].Title == "AI Engineer" && last[0].ID == r1
				}), ShouldBeTrue)
				So(svc.RoleSummaries()[0].CandidateCount, ShouldEqual, 0)
			})
		})

		Convey("When a valid CV is submitted", func() {
			_, err := svc.Submit(ctx, "R-missing", "Bob, junior")
			So(errors.Is(err, intake.ErrValidation), ShouldBeTrue)

			_, err = svc.Submit(ctx, r1, "Bob, junior")
			So(err, ShouldBeNil)
			id, err := svc.Submit(ctx, r1, "Jane Doe, 5 years ML...")
			So(err, ShouldBeNil)

			Convey("Then the candidate is ranked first with the role resolved", func() {
				So(eventually(func() bool { return len(svc.Candidates()) == 2 }), ShouldBeTrue)
				ranked := svc.Ranked(ranking.AllRoles, ranking.SortScore)
				So(ranked[0].ID, ShouldEqual, id)
				So(ranked[0].RoleID, ShouldEqual, r1)
				So(ranked[0].Score, ShouldEqual, 87)
				So(ranked[0].RoleTitle, ShouldEqual, "AI Engineer")
				So(svc.Stats("").Count, ShouldEqual, 2)
				So(svc.Stats(r1).AverageScore, ShouldEqual, 64)
				So(svc.RoleSummaries()[0].CandidateCount, ShouldEqual, 2)

				c, ok := svc.Candidate(id)
				So(ok, ShouldBeTrue)
				So(c.CVText, ShouldEqual, "Jane Doe, 5 years ML...")
			})
		})

		Convey("When the analysis payload misses specialTraits", func() {
			before := svc.Version()
			_, err := svc.Submit(ctx, r1, "Broken")

			Convey("Then the submission errors as malformed and nothing is stored", func() {
				So(errors.Is(err, analysis.ErrMalformedResponse), ShouldBeTrue)
				st, _ := svc.IntakeStatus()
				So(st.State, ShouldEqual, intake.StateError)
				So(st.Pending.CVText, ShouldEqual, "Broken")
				time.Sleep(30 * time.Millisecond)
				So(svc.Version(), ShouldEqual, before)
				So(svc.Candidates(), ShouldBeEmpty)

				So(svc.Acknowledge(), ShouldBeNil)
				st, _ = svc.IntakeStatus()
				So(st.State, ShouldEqual, intake.StateIdle)
			})
		})

		Convey("When two candidates tie on score", func() {
			x, err := svc.Submit(ctx, r1, "X cv")
			So(err, ShouldBeNil)
			y, err := svc.Submit(ctx, r1, "Y cv")
			So(err, ShouldBeNil)

			Convey("Then score order keeps submission order", func() {
				So(eventually(func() bool { return len(svc.Candidates()) == 2 }), ShouldBeTrue)
				ranked := svc.Ranked(r1, ranking.SortScore)
				So([]string{ranked[0].ID, ranked[1].ID}, ShouldResemble, []string{x, y})
			})
		})

		Convey("When the analysis transport fails", func() {
			gen.mu.Lock()
			gen.err = errors.New("timeout")
			gen.mu.Unlock()
			_, err := svc.Submit(ctx, r1, "Bob, junior")

			Convey("Then the failure is a transport error", func() {
				So(errors.Is(err, analysis.ErrTransport), ShouldBeTrue)
			})
		})

		Convey("When a blank role title is given", func() {
			_, err := svc.CreateRole(ctx, "   ", "desc")

			Convey("Then it is a validation error", func() {
				So(errors.Is(err, intake.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When a watcher is registered", func() {
			ch, cancel := svc.Watch()
			defer cancel()
			_, err := svc.CreateRole(ctx, "Data Analyst", "")
			So(err, ShouldBeNil)

			Convey("Then it is signalled", func() {
				select {
				case <-ch:
				case <-time.After(2 * time.Second):
					So("no signal", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestService_StoreFailure(t *testing.T) {
	Convey("Given a store that fails candidate writes", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithWriteHook(func(c string) error {
			if c == repository.CollectionCandidates {
				return errors.New("unavailable")
			}
			return nil
		}))
		gen := &scriptedGenerator{answers: map[string]string{"Jane": payload("Jane", 80, twoTraits)}}
		svc := service.New(service.WithStore(store), service.WithGenerator(gen))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		r1, err := svc.CreateRole(ctx, "AI Engineer", "desc")
		So(err, ShouldBeNil)
		So(eventually(func() bool { _, ok := svc.Role(r1); return ok }), ShouldBeTrue)

		Convey("When a submission's analysis succeeds", func() {
			_, err := svc.Submit(ctx, r1, "Jane")

			Convey("Then the write failure surfaces and the coordinator is in error", func() {
				So(errors.Is(err, intake.ErrStoreWrite), ShouldBeTrue)
				So(errors.Is(err, repository.ErrWriteFailed), ShouldBeTrue)
				st, _ := svc.IntakeStatus()
				So(st.State, ShouldEqual, intake.StateError)
			})
		})
	})
}

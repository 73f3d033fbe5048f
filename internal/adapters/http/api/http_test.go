package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/xuri/excelize/v2"

	"github.com/okian/shortlist/internal/adapters/http/api"
	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/domain/analysis"
)

const janePayload = `{"name":"Jane Doe","summary":"Senior ML engineer.","score":87,"overallMatch":90,` +
	`"roleFit":85,"experience":80,"qualification":88,"specialTraits":["ML expert","Leadership"],` +
	`"fitReason":"Relevant work.","improvementAreas":"Cloud.","nextStepRecommendation":"Invite for interview"}`

// stubGenerator returns a fixed answer, optionally blocking until released.
type stubGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, _ analysis.Request) (string, error) {
	g.mu.Lock()
	answer, err, gate, started := g.answer, g.err, g.gate, g.started
	g.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return answer, err
}

func (g *stubGenerator) set(answer string, err error) {
	g.mu.Lock()
	g.answer, g.err = answer, err
	g.mu.Unlock()
}

type fixture struct {
	svc *service.Service
	gen *stubGenerator
	mux *http.ServeMux
}

func newFixture() *fixture {
	gen := &stubGenerator{answer: janePayload}
	svc := service.New(service.WithGenerator(gen))
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithMaxCVBytes(1000)).Register(context.Background(), mux)
	return &fixture{svc: svc, gen: gen, mux: mux}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func (f *fixture) createRole(title string) string {
	w := f.do(http.MethodPost, "/roles", `{"title":"`+title+`","description":"Build ML systems"}`)
	var resp struct{ ID string }
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.svc.Role(resp.ID); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return resp.ID
}

func (f *fixture) waitCandidates(n int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(f.svc.Candidates()) < n {
		time.Sleep(5 * time.Millisecond)
	}
}

func errorCode(w *httptest.ResponseRecorder) string {
	var resp struct{ Code string }
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Code
}

func TestRoles(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture()
		Reset(f.svc.Stop)

		Convey("When creating a role", func() {
			w := f.do(http.MethodPost, "/roles", `{"title":"AI Engineer","description":"Build ML systems"}`)

			Convey("Then it is created and listed with a zero candidate count", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var created struct{ ID string }
				So(json.Unmarshal(w.Body.Bytes(), &created), ShouldBeNil)
				So(created.ID, ShouldNotBeBlank)

				f.createRole("Backend Engineer")
				w = f.do(http.MethodGet, "/roles", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var roles []struct {
					ID             string `json:"id"`
					Title          string `json:"title"`
					CandidateCount int    `json:"candidateCount"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &roles), ShouldBeNil)
				So(roles, ShouldHaveLength, 2)
				So(roles[0].Title, ShouldEqual, "AI Engineer")
				So(roles[0].ID, ShouldEqual, created.ID)
				So(roles[1].Title, ShouldEqual, "Backend Engineer")
				So(roles[0].CandidateCount, ShouldEqual, 0)
			})
		})

		Convey("When the title is missing", func() {
			w := f.do(http.MethodPost, "/roles", `{"description":"x"}`)

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			})
		})

		Convey("When the title is blank", func() {
			w := f.do(http.MethodPost, "/roles", `{"title":"   "}`)

			Convey("Then it is a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "validation_error")
			})
		})

		Convey("When the body is not JSON", func() {
			w := f.do(http.MethodPost, "/roles", `{`)

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestCandidates(t *testing.T) {
	Convey("Given a running API with one role", t, func() {
		f := newFixture()
		Reset(f.svc.Stop)
		roleID := f.createRole("AI Engineer")

		Convey("When submitting a CV", func() {
			w := f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"Jane Doe, 5 years ML..."}`)

			Convey("Then the candidate is created and ranked with its role title", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				var created struct{ ID string }
				So(json.Unmarshal(w.Body.Bytes(), &created), ShouldBeNil)
				f.waitCandidates(1)

				w = f.do(http.MethodGet, "/candidates?role="+roleID+"&sort=score", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var list []map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &list), ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0]["id"], ShouldEqual, created.ID)
				So(list[0]["name"], ShouldEqual, "Jane Doe")
				So(list[0]["score"], ShouldEqual, float64(87))
				So(list[0]["roleTitle"], ShouldEqual, "AI Engineer")
				So(list[0], ShouldNotContainKey, "cvText")

				Convey("And the CV can be downloaded verbatim", func() {
					w := f.do(http.MethodGet, "/candidates/"+created.ID+"/cv", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(w.Body.String(), ShouldEqual, "Jane Doe, 5 years ML...")
					So(w.Header().Get("Content-Disposition"), ShouldContainSubstring, "Jane_Doe_CV.txt")
				})

				Convey("And stats reflect it", func() {
					w := f.do(http.MethodGet, "/stats?role="+roleID, "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var stats struct {
						Count        int `json:"count"`
						AverageScore int `json:"averageScore"`
						Roles        int `json:"roles"`
					}
					So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
					So(stats.Count, ShouldEqual, 1)
					So(stats.AverageScore, ShouldEqual, 87)
					So(stats.Roles, ShouldEqual, 1)
				})

				Convey("And the ranked view exports as a workbook", func() {
					w := f.do(http.MethodGet, "/export", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
					So(err, ShouldBeNil)
					defer wb.Close()
					rows, err := wb.GetRows("Ranked Candidates")
					So(err, ShouldBeNil)
					So(rows, ShouldHaveLength, 2)
					So(rows[1][1], ShouldEqual, "Jane Doe")
				})
			})
		})

		Convey("When the role is unknown", func() {
			w := f.do(http.MethodPost, "/candidates", `{"roleId":"nope","cvText":"cv"}`)

			Convey("Then it is a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "validation_error")
			})
		})

		Convey("When the CV exceeds the body limit", func() {
			big := strings.Repeat("x", 10000)
			w := f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"`+big+`"}`)

			Convey("Then it is rejected as too large", func() {
				So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			})
		})

		Convey("When the analysis response is malformed", func() {
			f.gen.set(`{"name":"Jane"}`, nil)
			w := f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"cv"}`)

			Convey("Then a bad gateway is reported and the intake is in error", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				So(errorCode(w), ShouldEqual, "malformed_response")

				w = f.do(http.MethodGet, "/intake", "")
				var st struct {
					State   string
					Error   string
					Pending struct {
						RoleID string `json:"roleId"`
						CVText string `json:"cvText"`
					}
				}
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.State, ShouldEqual, "error")
				So(st.Error, ShouldNotBeBlank)
				So(st.Pending.CVText, ShouldEqual, "cv")

				w = f.do(http.MethodPost, "/intake/ack", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"state":"idle"`)
			})
		})

		Convey("When the analysis service is unreachable", func() {
			f.gen.set("", errors.New("connection refused"))
			w := f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"cv"}`)

			Convey("Then a distinct bad gateway code is reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				So(errorCode(w), ShouldEqual, "analysis_unavailable")
			})
		})

		Convey("When a submission is in flight", func() {
			f.gen.mu.Lock()
			f.gen.gate = make(chan struct{})
			f.gen.started = make(chan struct{}, 1)
			gate, started := f.gen.gate, f.gen.started
			f.gen.mu.Unlock()

			done := make(chan int, 1)
			go func() {
				done <- f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"first"}`).Code
			}()
			<-started

			w := f.do(http.MethodPost, "/candidates", `{"roleId":"`+roleID+`","cvText":"second"}`)
			ack := f.do(http.MethodPost, "/intake/ack", "")
			close(gate)

			Convey("Then other submissions are rejected as busy", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(errorCode(w), ShouldEqual, "busy")
				So(ack.Code, ShouldEqual, http.StatusConflict)
				So(<-done, ShouldEqual, http.StatusCreated)
			})
		})

		Convey("When the sort key is invalid", func() {
			w := f.do(http.MethodGet, "/candidates?sort=age", "")

			Convey("Then the request is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When downloading an unknown CV", func() {
			w := f.do(http.MethodGet, "/candidates/missing/cv", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given a running API", t, func() {
		f := newFixture()
		Reset(f.svc.Stop)

		Convey("Then healthz reports ok", func() {
			w := f.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Then metrics are exposed in the Prometheus format", func() {
			f.do(http.MethodGet, "/healthz", "")
			w := f.do(http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "shortlist_http_requests_total")
		})

		Convey("When the service is stopped", func() {
			f.svc.Stop()
			w := f.do(http.MethodGet, "/healthz", "")
			intake := f.do(http.MethodGet, "/intake", "")

			Convey("Then health and intake report unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(intake.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(errorCode(intake), ShouldEqual, "not_started")
			})
		})
	})
}

func TestStream(t *testing.T) {
	Convey("Given a stream client", t, func() {
		f := newFixture()
		srv := httptest.NewServer(f.mux)
		Reset(func() {
			f.svc.Stop()
			srv.Close()
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
		So(err, ShouldBeNil)
		resp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		defer resp.Body.Close()
		So(resp.Header.Get("Content-Type"), ShouldEqual, "text/event-stream")

		events := make(chan string, 16)
		go func() {
			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for sc.Scan() {
				if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
					events <- data
				}
			}
			close(events)
		}()

		next := func() map[string]json.RawMessage {
			select {
			case data := <-events:
				var ev map[string]json.RawMessage
				So(json.Unmarshal([]byte(data), &ev), ShouldBeNil)
				return ev
			case <-time.After(2 * time.Second):
				return nil
			}
		}

		Convey("Then it receives the current snapshot first", func() {
			ev := next()
			So(ev, ShouldNotBeNil)
			So(string(ev["roles"]), ShouldEqual, "[]")

			Convey("And a full snapshot after a role is created", func() {
				f.do(http.MethodPost, "/roles", `{"title":"AI Engineer"}`)
				var roles []map[string]interface{}
				for range 5 {
					ev = next()
					if ev == nil {
						break
					}
					_ = json.Unmarshal(ev["roles"], &roles)
					if len(roles) == 1 {
						break
					}
				}
				So(roles, ShouldHaveLength, 1)
				So(roles[0]["title"], ShouldEqual, "AI Engineer")
			})
		})
	})
}

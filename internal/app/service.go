// Package service is the process context object: it owns the store, the
// analysis client and the intake coordinator, and keeps the cached roles and
// candidates projections every read is derived from.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/shortlist/internal/adapters/repository"
	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/internal/domain/intake"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/internal/domain/ranking"
	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

// ErrNotStarted is returned by operations that need the cached projections.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the shortlist system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	generator   analysis.Generator
	analyzer    analysis.Analyzer
	coordinator *intake.Coordinator
	engine      *ranking.Engine

	// Configuration
	locale     string
	maxCVBytes int

	// Cached projections, replaced wholesale per snapshot.
	roles      atomic.Pointer[[]model.Role]
	candidates atomic.Pointer[[]model.Candidate]
	version    atomic.Uint64

	watchMu  sync.Mutex
	watchers map[uint64]chan struct{}
	nextW    uint64

	unsubscribe []repository.Unsubscribe

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the replicated store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithGenerator sets the analysis transport; the service builds the
// analysis client around it.
func WithGenerator(gen analysis.Generator) Option {
	return func(s *Service) {
		s.generator = gen
	}
}

// WithAnalyzer replaces the analysis client entirely.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Service) {
		s.analyzer = a
	}
}

// WithRankingLocale sets the collation locale for name sorting.
func WithRankingLocale(locale string) Option {
	return func(s *Service) {
		if locale != "" {
			s.locale = locale
		}
	}
}

// WithMaxCVBytes bounds accepted CV text.
func WithMaxCVBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCVBytes = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		locale:     "en",
		maxCVBytes: 200_000,
		watchers:   make(map[uint64]chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.NamedOrNop("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithLogger(s.logger.Named("repository")))
	}
	s.engine = ranking.New(s.locale)
	return s
}

// Start subscribes to both collections and returns once each has delivered
// its first snapshot.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.analyzer == nil {
		if s.generator == nil {
			return fmt.Errorf("start service: no analysis generator configured")
		}
		s.analyzer = analysis.New(s.generator,
			analysis.WithLogger(s.logger.Named("analysis")),
			analysis.WithObserver(recordAnalysis),
		)
	}

	s.logger.Info(ctx, "starting shortlist service...")

	unsubRoles, err := s.store.SubscribeRoles(ctx, repository.SubscriberFunc[[]model.Role](s.onRoles))
	if err != nil {
		return fmt.Errorf("subscribe roles: %w", err)
	}
	unsubCandidates, err := s.store.SubscribeCandidates(ctx, repository.SubscriberFunc[[]model.Candidate](s.onCandidates))
	if err != nil {
		unsubRoles()
		return fmt.Errorf("subscribe candidates: %w", err)
	}
	s.unsubscribe = []repository.Unsubscribe{unsubRoles, unsubCandidates}

	names := make([]string, len(intake.States))
	for i, st := range intake.States {
		names[i] = st.String()
	}
	s.coordinator = intake.New(s.analyzer, s.store, s,
		intake.WithLogger(s.logger.Named("intake")),
		intake.WithMaxCVBytes(s.maxCVBytes),
		intake.WithObserver(func(st intake.Status) {
			metrics.UpdateIntakeState(st.State.String(), names)
			s.broadcast()
		}),
	)
	metrics.UpdateIntakeState(intake.StateIdle.String(), names)

	s.started = true
	s.logger.Info(ctx, "shortlist service started",
		logger.Int("roles", len(s.Roles())),
		logger.Int("candidates", len(s.Candidates())),
		logger.String("locale", s.locale),
	)
	return nil
}

// Stop unsubscribes, closes the store and disconnects watchers.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping shortlist service...")

	for _, u := range s.unsubscribe {
		u()
	}
	s.unsubscribe = nil

	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}

	s.watchMu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.watchMu.Unlock()

	s.started = false
	s.logger.Info(context.Background(), "shortlist service stopped")
}

func (s *Service) onRoles(snap []model.Role) {
	s.roles.Store(&snap)
	s.version.Add(1)
	s.broadcast()
}

func (s *Service) onCandidates(snap []model.Candidate) {
	s.candidates.Store(&snap)
	s.version.Add(1)
	s.broadcast()
}

// Roles returns the latest roles snapshot (title ascending).
func (s *Service) Roles() []model.Role {
	if p := s.roles.Load(); p != nil {
		return *p
	}
	return nil
}

// Candidates returns the latest candidates snapshot (score descending).
func (s *Service) Candidates() []model.Candidate {
	if p := s.candidates.Load(); p != nil {
		return *p
	}
	return nil
}

// Version increases with every snapshot received.
func (s *Service) Version() uint64 {
	return s.version.Load()
}

// Role looks a role up in the cached projection.
func (s *Service) Role(id string) (model.Role, bool) {
	for _, r := range s.Roles() {
		if r.ID == id {
			return r, true
		}
	}
	return model.Role{}, false
}

// Candidate looks a candidate up in the cached projection.
func (s *Service) Candidate(id string) (model.Candidate, bool) {
	for _, c := range s.Candidates() {
		if c.ID == id {
			return c, true
		}
	}
	return model.Candidate{}, false
}

// RoleSummaries returns roles with derived candidate counts.
func (s *Service) RoleSummaries() []ranking.RoleSummary {
	return ranking.Summaries(s.Roles(), s.Candidates())
}

// RankedCandidate is a candidate with its resolved role title.
type RankedCandidate struct {
	model.Candidate
	RoleTitle string `json:"roleTitle"`
}

// Ranked derives the filtered, sorted view from the latest snapshots.
func (s *Service) Ranked(roleFilter, sortKey string) []RankedCandidate {
	if roleFilter == "" {
		roleFilter = ranking.AllRoles
	}
	roles := s.Roles()
	cs := s.engine.RankedCandidates(s.Candidates(), roleFilter, sortKey)
	out := make([]RankedCandidate, len(cs))
	for i, c := range cs {
		out[i] = RankedCandidate{Candidate: c, RoleTitle: ranking.RoleTitle(roles, c.RoleID)}
	}
	return out
}

// Stats aggregates over the candidates matching roleFilter.
func (s *Service) Stats(roleFilter string) ranking.Stats {
	if roleFilter == "" {
		roleFilter = ranking.AllRoles
	}
	return ranking.AggregateStats(s.engine.RankedCandidates(s.Candidates(), roleFilter, ""))
}

// CreateRole validates and appends a role.
func (s *Service) CreateRole(ctx context.Context, title, description string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: role title is empty", intake.ErrValidation)
	}
	id, err := s.store.CreateRole(ctx, title, strings.TrimSpace(description))
	if err != nil {
		s.logger.Error(ctx, "create role failed", logger.Error(err))
		return "", err
	}
	s.logger.Info(ctx, "role created", logger.String("id", id), logger.String("title", title))
	return id, nil
}

// Submit runs one CV submission through the intake coordinator.
func (s *Service) Submit(ctx context.Context, roleID, cvText string) (string, error) {
	c, err := s.intake()
	if err != nil {
		return "", err
	}
	id, err := c.Submit(ctx, roleID, cvText)
	metrics.RecordSubmission(outcome(err))
	return id, err
}

// IntakeStatus returns the coordinator status.
func (s *Service) IntakeStatus() (intake.Status, error) {
	c, err := s.intake()
	if err != nil {
		return intake.Status{}, err
	}
	return c.Status(), nil
}

// Acknowledge clears the coordinator's error state.
func (s *Service) Acknowledge() error {
	c, err := s.intake()
	if err != nil {
		return err
	}
	return c.Acknowledge()
}

func (s *Service) intake() (*intake.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.coordinator, nil
}

// Watch returns a channel signalled after every snapshot or intake
// transition. Signals coalesce; readers fetch the current state themselves.
// The channel is closed on Stop or by the returned cancel func.
func (s *Service) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.watchMu.Lock()
			defer s.watchMu.Unlock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(ch)
			}
		})
	}
}

func (s *Service) broadcast() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	roles, candidates := s.Roles(), s.Candidates()
	// Candidates whose role has not (yet) replicated.
	_, orphans := ranking.Partition(roles, candidates)
	stats := map[string]interface{}{
		"started":          started,
		"roles":            len(roles),
		"candidates":       len(candidates),
		"orphanCandidates": len(orphans),
		"version":          s.Version(),
	}
	s.watchMu.Lock()
	stats["watchers"] = len(s.watchers)
	s.watchMu.Unlock()

	if st, err := s.IntakeStatus(); err == nil {
		stats["intake"] = st.State.String()
	}
	return stats
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, intake.ErrValidation):
		return "validation"
	case errors.Is(err, intake.ErrBusy):
		return "busy"
	case errors.Is(err, intake.ErrStoreWrite):
		return "store"
	case errors.Is(err, intake.ErrPanicked):
		return "panic"
	case errors.Is(err, analysis.ErrTransport), errors.Is(err, analysis.ErrMalformedResponse):
		return "analysis_" + analysis.KindOf(err)
	default:
		return "other"
	}
}

func recordAnalysis(latency time.Duration, err error) {
	metrics.RecordAnalysisLatency(float64(latency.Milliseconds()))
	if err != nil {
		metrics.RecordAnalysisFailure(analysis.KindOf(err))
	}
}

// Package intake orchestrates one CV submission at a time: validate, analyze,
// persist, and expose the resulting state.
package intake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/pkg/logger"
)

// State of the coordinator.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateError
)

// States lists every state, in declaration order.
var States = []State{StateIdle, StateSubmitting, StateError} //nolint:gochecknoglobals // enum listing

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RoleLookup resolves role ids against the caller's current projection.
type RoleLookup interface {
	Role(id string) (model.Role, bool)
}

// CandidateWriter persists a finished candidate.
type CandidateWriter interface {
	CreateCandidate(ctx context.Context, c model.Candidate) (string, error)
}

// Status is a point-in-time copy of the coordinator.
type Status struct {
	State State
	// Err holds the failure cause while in StateError.
	Err error
	// Pending is the input of the current or last failed submission. It is
	// cleared only by a successful submission.
	Pending model.Draft

	seq uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the candidate creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxCVBytes bounds accepted CV text.
func WithMaxCVBytes(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxCVBytes = n
		}
	}
}

// WithObserver is called with the new status after every transition.
func WithObserver(fn func(Status)) Option {
	return func(c *Coordinator) {
		c.observe = fn
	}
}

// Coordinator enforces a single in-flight submission.
//
// Transitions:
//
//	Idle|Error --submit--> Submitting
//	Submitting --analysis+write ok--> Idle (pending cleared)
//	Submitting --analysis or write failed--> Error (pending kept)
//	Error --acknowledge--> Idle
//
// Validation and busy rejections leave the state untouched.
type Coordinator struct {
	analyzer   analysis.Analyzer
	writer     CandidateWriter
	roles      RoleLookup
	now        func() time.Time
	maxCVBytes int
	log        logger.Logger
	observe    func(Status)

	mu      sync.Mutex
	state   State
	err     error
	pending model.Draft
	seq     uint64

	// notifyMu orders observer calls; delivered is the last seq handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

// New returns an idle Coordinator.
func New(analyzer analysis.Analyzer, writer CandidateWriter, roles RoleLookup, opts ...Option) *Coordinator {
	c := &Coordinator{
		analyzer: analyzer,
		writer:   writer,
		roles:    roles,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.NamedOrNop("intake"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit analyzes cvText against roleID's description and stores the result,
// returning the new candidate id. It blocks until the submission settles.
// Once started, the submission ignores ctx cancellation and runs to a typed
// success or failure. A panic in the analyzer or writer is recovered and
// reported as ErrPanicked.
func (c *Coordinator) Submit(ctx context.Context, roleID, cvText string) (id string, err error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return "", ErrBusy
	}
	role, err := c.validate(roleID, cvText)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.state = StateSubmitting
	c.err = nil
	c.pending = model.Draft{RoleID: roleID, CVText: cvText}
	st := c.transitionLocked()
	c.mu.Unlock()
	c.notify(st)

	defer func() {
		if r := recover(); r != nil {
			c.log.Error(ctx, "submission panicked", logger.String("role_id", roleID), logger.Any("panic", r))
			id, err = "", c.fail(fmt.Errorf("%w: %v", ErrPanicked, r))
		}
	}()

	runCtx := context.WithoutCancel(ctx)

	a, err := c.analyzer.Analyze(runCtx, role.Description, cvText)
	if err != nil {
		c.log.Warn(ctx, "analysis failed", logger.String("role_id", roleID), logger.Error(err))
		return "", c.fail(err)
	}

	id, err = c.writer.CreateCandidate(runCtx, model.NewCandidate(roleID, cvText, a, c.now()))
	if err != nil {
		c.log.Error(ctx, "candidate write failed", logger.String("role_id", roleID), logger.Error(err))
		return "", c.fail(fmt.Errorf("%w: %w", ErrStoreWrite, err))
	}

	c.mu.Lock()
	c.state = StateIdle
	c.err = nil
	c.pending = model.Draft{}
	st = c.transitionLocked()
	c.mu.Unlock()
	c.notify(st)

	c.log.Info(ctx, "candidate created",
		logger.String("id", id),
		logger.String("role_id", roleID),
		logger.Int("score", a.Score),
	)
	return id, nil
}

// Acknowledge moves Error to Idle, keeping the pending input for a retry.
// It is a no-op when Idle and fails with ErrBusy while Submitting.
func (c *Coordinator) Acknowledge() error {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return ErrBusy
	case StateIdle:
		c.mu.Unlock()
		return nil
	}
	c.state = StateIdle
	c.err = nil
	st := c.transitionLocked()
	c.mu.Unlock()
	c.notify(st)
	return nil
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) validate(roleID, cvText string) (model.Role, error) {
	if strings.TrimSpace(cvText) == "" {
		return model.Role{}, fmt.Errorf("%w: cv text is empty", ErrValidation)
	}
	if c.maxCVBytes > 0 && len(cvText) > c.maxCVBytes {
		return model.Role{}, fmt.Errorf("%w: cv text exceeds %d bytes", ErrValidation, c.maxCVBytes)
	}
	if strings.TrimSpace(roleID) == "" {
		return model.Role{}, fmt.Errorf("%w: role is required", ErrValidation)
	}
	role, ok := c.roles.Role(roleID)
	if !ok {
		return model.Role{}, fmt.Errorf("%w: unknown role %q", ErrValidation, roleID)
	}
	return role, nil
}

func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	c.state = StateError
	c.err = err
	st := c.transitionLocked()
	c.mu.Unlock()
	c.notify(st)
	return err
}

func (c *Coordinator) statusLocked() Status {
	return Status{State: c.state, Err: c.err, Pending: c.pending, seq: c.seq}
}

func (c *Coordinator) transitionLocked() Status {
	c.seq++
	return c.statusLocked()
}

// notify hands st to the observer unless a later transition was already
// delivered, so the observer always ends on the latest state.
func (c *Coordinator) notify(st Status) {
	if c.observe == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if st.seq <= c.delivered {
		return
	}
	c.delivered = st.seq
	c.observe(st)
}

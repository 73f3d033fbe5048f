package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

// notifyChannel carries "<namespace>/<collection>" payloads.
const notifyChannel = "shortlist_changes"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS shortlist_roles (
	seq         BIGSERIAL,
	id          TEXT PRIMARY KEY,
	namespace   TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS shortlist_roles_ns ON shortlist_roles (namespace, title, seq);

CREATE TABLE IF NOT EXISTS shortlist_candidates (
	seq                      BIGSERIAL,
	id                       TEXT PRIMARY KEY,
	namespace                TEXT NOT NULL,
	role_id                  TEXT NOT NULL,
	cv_text                  TEXT NOT NULL,
	name                     TEXT NOT NULL,
	summary                  TEXT NOT NULL,
	score                    INTEGER NOT NULL,
	overall_match            INTEGER NOT NULL,
	role_fit                 INTEGER NOT NULL,
	experience               INTEGER NOT NULL,
	qualification            INTEGER NOT NULL,
	special_traits           TEXT[] NOT NULL,
	fit_reason               TEXT NOT NULL,
	improvement_areas        TEXT NOT NULL,
	next_step_recommendation TEXT NOT NULL,
	created_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS shortlist_candidates_ns ON shortlist_candidates (namespace, score DESC, seq);
`

const (
	insertRoleSQL = `INSERT INTO shortlist_roles (id, namespace, title, description, created_at)
VALUES ($1, $2, $3, $4, $5)`

	insertCandidateSQL = `INSERT INTO shortlist_candidates (
	id, namespace, role_id, cv_text, name, summary, score, overall_match, role_fit,
	experience, qualification, special_traits, fit_reason, improvement_areas,
	next_step_recommendation, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	selectRolesSQL = `SELECT id, title, description, created_at
FROM shortlist_roles WHERE namespace = $1 ORDER BY title COLLATE "C" ASC, seq ASC`

	selectCandidatesSQL = `SELECT id, role_id, cv_text, name, summary, score, overall_match,
	role_fit, experience, qualification, special_traits, fit_reason, improvement_areas,
	next_step_recommendation, created_at
FROM shortlist_candidates WHERE namespace = $1 ORDER BY score DESC, seq ASC`
)

// PostgresStore persists both collections in Postgres and turns LISTEN/NOTIFY
// into full-snapshot feeds: each notification triggers a complete ordered
// re-query. While the listener is disconnected the feeds keep their last
// snapshot and reconnect with exponential backoff.
type PostgresStore struct {
	opts options
	pool *pgxpool.Pool

	roleFeed      *feed[[]model.Role]
	candidateFeed *feed[[]model.Candidate]

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, applies the schema, loads both collections and
// starts the change listener.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &PostgresStore{
		opts:          o,
		pool:          pool,
		roleFeed:      newFeed(CollectionRoles, lenOf[model.Role], o.log),
		candidateFeed: newFeed(CollectionCandidates, lenOf[model.Candidate], o.log),
	}

	if err := s.reload(ctx, CollectionRoles); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.reload(ctx, CollectionCandidates); err != nil {
		pool.Close()
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go s.listen(lctx)

	o.log.Info(ctx, "postgres store ready", logger.String("namespace", o.namespace))
	return s, nil
}

// CreateRole implements Store.
func (s *PostgresStore) CreateRole(ctx context.Context, title, description string) (string, error) {
	id := uuid.NewString()
	err := s.write(ctx, CollectionRoles, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertRoleSQL, id, s.opts.namespace, title, description, s.opts.now())
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateCandidate implements Store.
func (s *PostgresStore) CreateCandidate(ctx context.Context, c model.Candidate) (string, error) {
	id := uuid.NewString()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.opts.now()
	}
	traits := c.SpecialTraits
	if traits == nil {
		traits = []string{}
	}
	err := s.write(ctx, CollectionCandidates, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertCandidateSQL,
			id, s.opts.namespace, c.RoleID, c.CVText, c.Name, c.Summary, c.Score,
			c.OverallMatch, c.RoleFit, c.Experience, c.Qualification, traits,
			c.FitReason, c.ImprovementAreas, c.NextStepRecommendation, createdAt)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SubscribeRoles implements Store.
func (s *PostgresStore) SubscribeRoles(ctx context.Context, sub Subscriber[[]model.Role]) (Unsubscribe, error) {
	return s.roleFeed.subscribe(ctx, sub)
}

// SubscribeCandidates implements Store.
func (s *PostgresStore) SubscribeCandidates(ctx context.Context, sub Subscriber[[]model.Candidate]) (Unsubscribe, error) {
	return s.candidateFeed.subscribe(ctx, sub)
}

// Close stops the listener and every subscription, then closes the pool.
func (s *PostgresStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.roleFeed.close()
		s.candidateFeed.close()
		s.pool.Close()
	})
	return nil
}

// write runs fn and the change notification in one transaction; listeners
// only see the notification once the row is committed.
func (s *PostgresStore) write(ctx context.Context, collection string, fn func(pgx.Tx) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.writeTimeout)
	defer cancel()

	err := func() error {
		if s.opts.writeHook != nil {
			if err := s.opts.writeHook(collection); err != nil {
				return err
			}
		}
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if err := fn(tx); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, s.payload(collection))
			return err
		})
	}()
	if err != nil {
		err = &WriteError{Collection: collection, Err: err}
	}
	recordWrite(collection, err, start)
	return err
}

func (s *PostgresStore) payload(collection string) string {
	return s.opts.namespace + "/" + collection
}

func (s *PostgresStore) listen(ctx context.Context) {
	defer s.wg.Done()

	delay := s.opts.reconnect
	for {
		err := s.listenOnce(ctx, func() { delay = s.opts.reconnect })
		if ctx.Err() != nil {
			return
		}

		s.opts.log.Warn(ctx, "change listener disconnected, snapshots frozen until reconnect",
			logger.Error(err),
			logger.String("retry_in", delay.String()),
		)
		metrics.RecordFeedReconnect()
		metrics.RecordErrorByComponent("repository", "listener_disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context, connected func()) error {
	pc, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	// A LISTENing session must not go back to the pool.
	conn := pc.Hijack()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	connected()

	// Catch up on anything committed while disconnected.
	for _, c := range []string{CollectionRoles, CollectionCandidates} {
		if err := s.reload(ctx, c); err != nil {
			s.opts.log.Warn(ctx, "catch-up reload failed", logger.String("collection", c), logger.Error(err))
		}
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, n)
	}
}

func (s *PostgresStore) handle(ctx context.Context, n *pgconn.Notification) {
	ns, collection, ok := strings.Cut(n.Payload, "/")
	if !ok || ns != s.opts.namespace {
		return
	}
	if err := s.reload(ctx, collection); err != nil {
		// Keep serving the previous snapshot; the next notification retries.
		s.opts.log.Warn(ctx, "snapshot reload failed", logger.String("collection", collection), logger.Error(err))
		metrics.RecordErrorByComponent("repository", "reload_failed")
	}
}

func (s *PostgresStore) reload(ctx context.Context, collection string) error {
	switch collection {
	case CollectionRoles:
		roles, err := s.loadRoles(ctx)
		if err != nil {
			return err
		}
		s.roleFeed.publish(roles)
	case CollectionCandidates:
		cs, err := s.loadCandidates(ctx)
		if err != nil {
			return err
		}
		s.candidateFeed.publish(cs)
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

func (s *PostgresStore) loadRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := s.pool.Query(ctx, selectRolesSQL, s.opts.namespace)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Role, error) {
		var r model.Role
		err := row.Scan(&r.ID, &r.Title, &r.Description, &r.CreatedAt)
		r.CreatedAt = r.CreatedAt.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan roles: %w", err)
	}
	return nonNil(roles), nil
}

func (s *PostgresStore) loadCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, selectCandidatesSQL, s.opts.namespace)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	cs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Candidate, error) {
		var c model.Candidate
		err := row.Scan(&c.ID, &c.RoleID, &c.CVText, &c.Name, &c.Summary, &c.Score,
			&c.OverallMatch, &c.RoleFit, &c.Experience, &c.Qualification, &c.SpecialTraits,
			&c.FitReason, &c.ImprovementAreas, &c.NextStepRecommendation, &c.CreatedAt)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	return nonNil(cs), nil
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}


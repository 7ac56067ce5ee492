package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiryana/reporting/cache"
)

// Schema holds the migration statements for the report cache table. The
// expires_at index backs the purge loop, the type index backs targeted
// invalidation.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS report_cache (
        cache_key    TEXT PRIMARY KEY,
        report_type  TEXT NOT NULL,
        parameters   JSONB NOT NULL,
        payload      JSONB NOT NULL,
        generated_at TIMESTAMPTZ NOT NULL,
        expires_at   TIMESTAMPTZ NOT NULL,
        scope_id     TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE INDEX IF NOT EXISTS report_cache_expires_idx ON report_cache (expires_at)`,
	`CREATE INDEX IF NOT EXISTS report_cache_type_idx ON report_cache (report_type, expires_at)`,
}

// Store persists cache entries in PostgreSQL. Stale rows are filtered on
// read and removed by the purge loop; the primary-key upsert gives Put
// its single-key atomicity.
type Store struct {
	db   *sql.DB
	ttl  cache.TTLConfig
	now  func() time.Time
	log  *logrus.Logger
	reap time.Duration
}

// NewStore wraps an existing *sql.DB connection.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:   db,
		now:  time.Now,
		log:  logrus.StandardLogger(),
		reap: time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(ctx context.Context, reportType string, params cache.Params) (*cache.Entry, error) {
	const query = `SELECT report_type, parameters, payload, generated_at, expires_at, scope_id
                   FROM report_cache WHERE cache_key = $1 AND expires_at > $2`

	key := cache.Key(reportType, params)
	var (
		entry      cache.Entry
		paramsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, query, key, s.now()).Scan(
		&entry.ReportType,
		&paramsJSON,
		&entry.Data,
		&entry.GeneratedAt,
		&entry.ExpiresAt,
		&entry.ScopeID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get entry: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &entry.Params); err != nil {
		return nil, fmt.Errorf("postgres: decode parameters: %w", err)
	}
	return &entry, nil
}

func (s *Store) Put(ctx context.Context, reportType string, params cache.Params, data json.RawMessage, scopeID string) (*cache.Entry, error) {
	const query = `INSERT INTO report_cache (cache_key, report_type, parameters, payload, generated_at, expires_at, scope_id)
                   VALUES ($1, $2, $3, $4, $5, $6, $7)
                   ON CONFLICT (cache_key) DO UPDATE SET
                       parameters   = EXCLUDED.parameters,
                       payload      = EXCLUDED.payload,
                       generated_at = EXCLUDED.generated_at,
                       expires_at   = EXCLUDED.expires_at,
                       scope_id     = EXCLUDED.scope_id`

	now := s.now()
	entry := &cache.Entry{
		ReportType:  reportType,
		Params:      params,
		Data:        data,
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.ttl.For(reportType)),
		ScopeID:     scopeID,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("postgres: encode parameters: %w", err)
	}

	key := cache.Key(reportType, params)
	_, err = s.db.ExecContext(ctx, query, key, reportType, paramsJSON, []byte(data), entry.GeneratedAt, entry.ExpiresAt, scopeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: put entry: %w", err)
	}
	return entry, nil
}

func (s *Store) Invalidate(ctx context.Context, filter cache.Filter) (int, error) {
	query := `DELETE FROM report_cache`
	var (
		clauses []string
		args    []any
	)
	if filter.ReportType != "" {
		args = append(args, filter.ReportType)
		clauses = append(clauses, fmt.Sprintf("report_type = $%d", len(args)))
	}
	if filter.ScopeID != "" {
		args = append(args, filter.ScopeID)
		clauses = append(clauses, fmt.Sprintf("scope_id = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: invalidate: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Purge deletes rows whose expiry has passed and reports how many were
// removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM report_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("postgres: purge: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// StartReaper purges expired rows periodically until ctx is done.
func (s *Store) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.reap)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Purge(ctx)
				if err != nil {
					s.log.WithError(err).Warn("cache: purge failed")
					continue
				}
				if n > 0 {
					s.log.WithField("rows", n).Debug("cache: purged expired rows")
				}
			}
		}
	}()
}

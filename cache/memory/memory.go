package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiryana/reporting/cache"
)

// Store is an in-memory cache.Store guarded by a RWMutex. Stale entries
// are deleted on read and by the background reaper, whichever gets there
// first.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*cache.Entry

	ttl  cache.TTLConfig
	now  func() time.Time
	log  *logrus.Logger
	reap time.Duration
}

type Option func(*Store)

// WithTTL sets the per-type TTL configuration.
func WithTTL(cfg cache.TTLConfig) Option {
	return func(s *Store) { s.ttl = cfg }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used by the reaper.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithReapInterval controls how often the background reaper runs.
func WithReapInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.reap = d
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*cache.Entry),
		now:     time.Now,
		log:     logrus.StandardLogger(),
		reap:    time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(_ context.Context, reportType string, params cache.Params) (*cache.Entry, error) {
	key := cache.Key(reportType, params)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, cache.ErrNotFound
	}

	if !s.now().Before(entry.ExpiresAt) {
		// Stale entries are invisible; drop eagerly rather than waiting
		// for the reaper.
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, cache.ErrNotFound
	}

	return copyEntry(entry), nil
}

func (s *Store) Put(_ context.Context, reportType string, params cache.Params, data json.RawMessage, scopeID string) (*cache.Entry, error) {
	key := cache.Key(reportType, params)
	now := s.now()
	entry := &cache.Entry{
		ReportType:  reportType,
		Params:      copyParams(params),
		Data:        append(json.RawMessage(nil), data...),
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.ttl.For(reportType)),
		ScopeID:     scopeID,
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	return copyEntry(entry), nil
}

func (s *Store) Invalidate(_ context.Context, filter cache.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if filter.Matches(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of entries currently held, stale ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartReaper purges expired entries periodically until ctx is done.
func (s *Store) StartReaper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.reap)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.purge(); n > 0 {
					s.log.WithField("entries", n).Debug("cache: purged expired entries")
				}
			}
		}
	}()
}

func (s *Store) purge() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Entries handed to or from callers never share mutable state with the
// stored ones.
func copyEntry(e *cache.Entry) *cache.Entry {
	clone := *e
	clone.Data = append(json.RawMessage(nil), e.Data...)
	clone.Params = copyParams(e.Params)
	return &clone
}

func copyParams(p cache.Params) cache.Params {
	if p == nil {
		return nil
	}
	out := make(cache.Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

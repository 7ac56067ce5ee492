package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kiryana/reporting/cache"
)

// Store implements cache.Store over the Redis RESP protocol. Entries are
// stored as JSON under their canonical key with a server-side PX expiry,
// so Redis itself enforces the TTL invariant; invalidation walks the
// report:<type>: keyspace with SCAN.
type Store struct {
	opts   Options
	ttl    cache.TTLConfig
	now    func() time.Time
	dialFn dialFunc
	pool   chan *clientConn
}

// NewStore builds a Redis-backed cache store.
func NewStore(opts Options, storeOpts ...StoreOption) *Store {
	cfg := opts.withDefaults()
	s := &Store{
		opts:   cfg,
		now:    time.Now,
		dialFn: defaultDial,
		pool:   make(chan *clientConn, cfg.PoolSize),
	}
	for _, opt := range storeOpts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Get(ctx context.Context, reportType string, params cache.Params) (*cache.Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	key := cache.Key(reportType, params)
	var payload []byte
	err := s.withConn(ctx, func(conn *clientConn) error {
		if err := s.send(conn, "GET", key); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		switch v := resp.(type) {
		case nil:
			return cache.ErrNotFound
		case []byte:
			payload = append([]byte(nil), v...)
			return nil
		default:
			return fmt.Errorf("redis: unexpected GET response %T", resp)
		}
	})
	if err != nil {
		return nil, err
	}

	var entry cache.Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("redis: decode entry: %w", err)
	}
	// Redis already expired the key server-side in the common case; the
	// check below covers clock skew between writer and server.
	if !s.now().Before(entry.ExpiresAt) {
		_, _ = s.deleteKeys(ctx, []string{key})
		return nil, cache.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) Put(ctx context.Context, reportType string, params cache.Params, data json.RawMessage, scopeID string) (*cache.Entry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	ttl := s.ttl.For(reportType)
	entry := &cache.Entry{
		ReportType:  reportType,
		Params:      params,
		Data:        data,
		GeneratedAt: now,
		ExpiresAt:   now.Add(ttl),
		ScopeID:     scopeID,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("redis: encode entry: %w", err)
	}

	key := cache.Key(reportType, params)
	err = s.withConn(ctx, func(conn *clientConn) error {
		ms := ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		if err := s.send(conn, "SET", key, string(payload), "PX", strconv.FormatInt(ms, 10)); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
			return nil
		}
		return fmt.Errorf("redis: SET failed: %v", resp)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Store) Invalidate(ctx context.Context, filter cache.Filter) (int, error) {
	keys, err := s.scan(ctx, cache.TypePrefix(filter.ReportType)+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if filter.ScopeID != "" {
		keys, err = s.filterByScope(ctx, keys, filter.ScopeID)
		if err != nil {
			return 0, err
		}
	}
	return s.deleteKeys(ctx, keys)
}

// scan collects every key matching the pattern, following the cursor
// until the full keyspace has been walked.
func (s *Store) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	cursor := "0"
	for {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		err := s.withConn(ctx, func(conn *clientConn) error {
			if err := s.send(conn, "SCAN", cursor, "MATCH", pattern, "COUNT", "100"); err != nil {
				return err
			}
			resp, err := s.read(conn)
			if err != nil {
				return err
			}
			arr, ok := resp.([]any)
			if !ok || len(arr) != 2 {
				return fmt.Errorf("redis: unexpected SCAN response %v", resp)
			}
			next, ok := arr[0].([]byte)
			if !ok {
				return fmt.Errorf("redis: unexpected SCAN cursor %T", arr[0])
			}
			cursor = string(next)
			batch, ok := arr[1].([]any)
			if !ok {
				return fmt.Errorf("redis: unexpected SCAN payload %T", arr[1])
			}
			for _, item := range batch {
				if b, ok := item.([]byte); ok {
					keys = append(keys, string(b))
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if cursor == "0" {
			return keys, nil
		}
	}
}

// filterByScope fetches the candidate entries and keeps only keys whose
// stored scope id matches. Keys that vanished between SCAN and MGET are
// skipped.
func (s *Store) filterByScope(ctx context.Context, keys []string, scopeID string) ([]string, error) {
	var matched []string
	err := s.withConn(ctx, func(conn *clientConn) error {
		args := append([]string{"MGET"}, keys...)
		if err := s.send(conn, args...); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		values, ok := resp.([]any)
		if !ok {
			return fmt.Errorf("redis: unexpected MGET response %T", resp)
		}
		for i, value := range values {
			raw, ok := value.([]byte)
			if !ok {
				continue
			}
			var entry cache.Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if entry.ScopeID == scopeID {
				matched = append(matched, keys[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func (s *Store) deleteKeys(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var removed int64
	err := s.withConn(ctx, func(conn *clientConn) error {
		args := append([]string{"DEL"}, keys...)
		if err := s.send(conn, args...); err != nil {
			return err
		}
		resp, err := s.read(conn)
		if err != nil {
			return err
		}
		n, ok := resp.(int64)
		if !ok {
			return fmt.Errorf("redis: DEL failed: %v", resp)
		}
		removed = n
		return nil
	})
	return int(removed), err
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: entry not found")

// Entry is a single cached report or widget payload. At most one live
// entry exists per (report type, canonical parameters) pair; reads never
// observe entries past ExpiresAt.
type Entry struct {
	ReportType  string          `json:"reportType"`
	Params      Params          `json:"parameters"`
	Data        json.RawMessage `json:"data"`
	GeneratedAt time.Time       `json:"generatedAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	ScopeID     string          `json:"scopeId,omitempty"`
}

// Filter selects entries for invalidation. Zero-value fields match
// everything, so the empty filter clears the whole cache.
type Filter struct {
	ReportType string
	ScopeID    string
}

// Matches reports whether the entry satisfies the filter.
func (f Filter) Matches(e *Entry) bool {
	if f.ReportType != "" && e.ReportType != f.ReportType {
		return false
	}
	if f.ScopeID != "" && e.ScopeID != f.ScopeID {
		return false
	}
	return true
}

// Store represents a TTL-based cache of derived report payloads that can
// be backed by memory, Redis, or PostgreSQL.
//
// Put has upsert semantics: a second write for the same (reportType,
// params) pair overwrites the previous entry, last writer wins. Get
// returns ErrNotFound for both absent and expired entries.
type Store interface {
	Get(ctx context.Context, reportType string, params Params) (*Entry, error)
	Put(ctx context.Context, reportType string, params Params, data json.RawMessage, scopeID string) (*Entry, error)
	Invalidate(ctx context.Context, filter Filter) (int, error)
}

// TTLConfig resolves the lifetime of entries per report type, so widget
// payloads can expire faster than full reports within one store.
type TTLConfig struct {
	Default time.Duration
	PerType map[string]time.Duration
}

// For returns the TTL configured for the given report type.
func (c TTLConfig) For(reportType string) time.Duration {
	if d, ok := c.PerType[reportType]; ok && d > 0 {
		return d
	}
	if c.Default > 0 {
		return c.Default
	}
	return 15 * time.Minute
}

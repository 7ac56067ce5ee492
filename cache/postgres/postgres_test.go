package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/kiryana/reporting/cache"
	testpg "github.com/kiryana/reporting/internal/testutil/postgrescontainer"
)

const testTimeout = 5 * time.Second

func TestMain(m *testing.M) {
	if err := testpg.Setup(); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = testpg.Teardown()
	os.Exit(code)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(WithDSN(testpg.DSN()))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := ApplyMigrations(ctx, db, Schema...); err != nil {
		t.Fatalf("ApplyMigrations error: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM report_cache`); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	return db
}

func TestRoundTripAndUpsert(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, WithTTL(cache.TTLConfig{Default: time.Minute}))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	params := cache.Params{}.Set("storeId", "store-1").Set("groupBy", "month")
	if _, err := s.Put(ctx, "sales_summary", params, json.RawMessage(`{"v":1}`), "user-1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := s.Get(ctx, "sales_summary", params)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ReportType != "sales_summary" || got.ScopeID != "user-1" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Params["groupBy"] != "month" {
		t.Fatalf("parameters not persisted: %+v", got.Params)
	}

	if _, err := s.Put(ctx, "sales_summary", params, json.RawMessage(`{"v":2}`), "user-1"); err != nil {
		t.Fatalf("second Put error: %v", err)
	}
	got, err = s.Get(ctx, "sales_summary", params)
	if err != nil {
		t.Fatalf("Get after upsert error: %v", err)
	}
	var payload struct {
		V int `json:"v"`
	}
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.V != 2 {
		t.Fatalf("expected last write to win, got v=%d", payload.V)
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_cache`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected a single row, got %d", rows)
	}
}

func TestExpiredRowsInvisible(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().UTC()
	clock := now
	s := NewStore(db,
		WithTTL(cache.TTLConfig{Default: time.Minute}),
		WithClock(func() time.Time { return clock }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	params := cache.Params{}.Set("storeId", "store-exp")
	if _, err := s.Put(ctx, "sales_summary", params, json.RawMessage(`{}`), ""); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	clock = now.Add(time.Minute - time.Second)
	if _, err := s.Get(ctx, "sales_summary", params); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	clock = now.Add(time.Minute)
	if _, err := s.Get(ctx, "sales_summary", params); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound at expiry, got %v", err)
	}

	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
}

func TestInvalidateFilters(t *testing.T) {
	db := openTestDB(t)
	s := NewStore(db, WithTTL(cache.TTLConfig{Default: time.Minute}))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	seed := []struct {
		reportType string
		storeID    string
		scopeID    string
	}{
		{"sales_summary", "store-1", "user-1"},
		{"sales_summary", "store-2", "user-2"},
		{"low_stock", "store-1", "user-1"},
		{"widget_low_stock_alerts", "store-1", "store-1"},
	}
	for _, e := range seed {
		params := cache.Params{}.Set("storeId", e.storeID)
		if _, err := s.Put(ctx, e.reportType, params, json.RawMessage(`{}`), e.scopeID); err != nil {
			t.Fatalf("Put %s error: %v", e.reportType, err)
		}
	}

	n, err := s.Invalidate(ctx, cache.Filter{ReportType: "sales_summary", ScopeID: "user-2"})
	if err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removal, got %d", n)
	}

	n, err = s.Invalidate(ctx, cache.Filter{ScopeID: "user-1"})
	if err != nil {
		t.Fatalf("Invalidate by scope error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removals, got %d", n)
	}

	n, err = s.Invalidate(ctx, cache.Filter{})
	if err != nil {
		t.Fatalf("Invalidate all error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining removal, got %d", n)
	}
}

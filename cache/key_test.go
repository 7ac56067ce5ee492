package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsCanonicalSortsKeys(t *testing.T) {
	p := Params{}.
		Set("storeId", "store-9").
		Set("groupBy", "day").
		Set("endDate", "2026-02-28")

	assert.Equal(t, "endDate=2026-02-28T00:00:00Z&groupBy=day&storeId=store-9", p.Canonical())
}

func TestKeyOrderIndependent(t *testing.T) {
	a := NewParams(map[string]any{
		"startDate": "2026-01-01",
		"endDate":   "2026-01-31",
		"storeId":   "store-1",
	})
	b := Params{}.
		Set("storeId", "store-1").
		Set("endDate", "2026-01-31").
		Set("startDate", "2026-01-01")

	assert.Equal(t, Key("sales_summary", a), Key("sales_summary", b))
}

func TestKeyDateFormatsEquivalent(t *testing.T) {
	base := Key("sales_summary", Params{}.Set("startDate", "2026-03-15"))

	variants := []any{
		"2026-03-15T00:00:00Z",
		"2026-03-15T00:00:00.000Z",
		time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 15, 2, 0, 0, 0, time.FixedZone("EAT", 2*3600)),
	}
	for _, v := range variants {
		got := Key("sales_summary", Params{}.Set("startDate", v))
		assert.Equal(t, base, got, "variant %v", v)
	}
}

func TestKeyBooleanSpellingsEquivalent(t *testing.T) {
	typed := Key("low_stock", Params{}.Set("lowStockOnly", true))
	spelled := Key("low_stock", Params{}.Set("lowStockOnly", "True"))
	assert.Equal(t, typed, spelled)

	falseTyped := Key("low_stock", Params{}.Set("lowStockOnly", false))
	falseSpelled := Key("low_stock", Params{}.Set("lowStockOnly", "FALSE"))
	assert.Equal(t, falseTyped, falseSpelled)
	assert.NotEqual(t, typed, falseTyped)
}

func TestKeyNumericFormsEquivalent(t *testing.T) {
	a := Key("widget_top_products", Params{}.Set("limit", 5))
	b := Key("widget_top_products", Params{}.Set("limit", "5"))
	c := Key("widget_top_products", Params{}.Set("limit", int64(5)))
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestKeyKeepsDistinctNumericStrings(t *testing.T) {
	// Identifiers are opaque strings even when they look like numbers;
	// "01" and "1" name different stores and must never share a key.
	a := Params{}.Set("storeId", "01")
	b := Params{}.Set("storeId", "1")
	assert.NotEqual(t, a.Canonical(), b.Canonical())
	assert.NotEqual(t, Key("sales_summary", a), Key("sales_summary", b))
}

func TestKeyKeepsDistinctBigIntegerStrings(t *testing.T) {
	// Ids beyond float64's integer range must not be rounded together.
	a := Params{}.Set("storeId", "9007199254740993")
	b := Params{}.Set("storeId", "9007199254740992")
	assert.Equal(t, "storeId=9007199254740993", a.Canonical())
	assert.NotEqual(t, Key("sales_summary", a), Key("sales_summary", b))
}

func TestEmptyValuesDropped(t *testing.T) {
	p := NewParams(map[string]any{
		"storeId":   "",
		"productId": "  ",
		"period":    nil,
		"startDate": time.Time{},
		"groupBy":   "day",
	})

	require.Len(t, p, 1)
	assert.Equal(t, "day", p["groupBy"])

	// A false boolean is information, not absence.
	withFalse := Params{}.Set("lowStockOnly", false)
	assert.Equal(t, "false", withFalse["lowStockOnly"])
}

func TestKeySeparatesTypes(t *testing.T) {
	p := Params{}.Set("storeId", "store-1")
	assert.NotEqual(t, Key("sales_summary", p), Key("sales_by_product", p))
}

func TestTypePrefix(t *testing.T) {
	assert.Equal(t, "report:", TypePrefix(""))
	assert.Equal(t, "report:sales_summary:", TypePrefix("sales_summary"))

	key := Key("sales_summary", Params{}.Set("storeId", "store-1"))
	assert.Contains(t, key, TypePrefix("sales_summary"))
}

func TestFilterMatches(t *testing.T) {
	entry := &Entry{ReportType: "sales_summary", ScopeID: "user-7"}

	assert.True(t, Filter{}.Matches(entry))
	assert.True(t, Filter{ReportType: "sales_summary"}.Matches(entry))
	assert.True(t, Filter{ScopeID: "user-7"}.Matches(entry))
	assert.True(t, Filter{ReportType: "sales_summary", ScopeID: "user-7"}.Matches(entry))
	assert.False(t, Filter{ReportType: "low_stock"}.Matches(entry))
	assert.False(t, Filter{ReportType: "sales_summary", ScopeID: "user-8"}.Matches(entry))
}

func TestTTLConfigFor(t *testing.T) {
	cfg := TTLConfig{
		Default: 15 * time.Minute,
		PerType: map[string]time.Duration{"widget_sales_summary": 5 * time.Minute},
	}

	assert.Equal(t, 5*time.Minute, cfg.For("widget_sales_summary"))
	assert.Equal(t, 15*time.Minute, cfg.For("sales_summary"))
	assert.Equal(t, 15*time.Minute, TTLConfig{}.For("anything"))
}

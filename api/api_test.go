package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiryana/reporting/cache"
	"github.com/kiryana/reporting/cache/memory"
	"github.com/kiryana/reporting/httpx"
	"github.com/kiryana/reporting/report"
	"github.com/kiryana/reporting/upstream"
)

type fakeVerifier struct {
	user *upstream.User
	err  error
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*upstream.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if token != "good-token" {
		return nil, upstream.ErrInvalidToken
	}
	return f.user, nil
}

type fakeInventory struct {
	movements    []upstream.Movement
	items        []upstream.InventoryItem
	movementsErr error
}

func (f *fakeInventory) Movements(_ context.Context, _ upstream.MovementsQuery) (*upstream.MovementsPage, error) {
	if f.movementsErr != nil {
		return nil, f.movementsErr
	}
	return &upstream.MovementsPage{Data: f.movements}, nil
}

func (f *fakeInventory) Inventory(_ context.Context, _ upstream.InventoryQuery) (*upstream.InventoryPage, error) {
	return &upstream.InventoryPage{Data: f.items}, nil
}

type fakeDirectory struct{}

func (fakeDirectory) GetProduct(_ context.Context, id string) (*upstream.Product, error) {
	return &upstream.Product{ID: id, Name: "Product " + id}, nil
}

func (fakeDirectory) GetStore(_ context.Context, id string) (*upstream.StoreInfo, error) {
	return &upstream.StoreInfo{ID: id, Name: "Store " + id}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestAPI(t *testing.T, inv *fakeInventory, verifier TokenVerifier) *httptest.Server {
	t.Helper()
	log := quietLogger()

	store := memory.NewStore(
		memory.WithTTL(cache.TTLConfig{Default: time.Minute}),
		memory.WithLogger(log),
	)
	svc := report.NewService(store, report.Sources{
		Movements: inv,
		Inventory: inv,
		Products:  fakeDirectory{},
		Stores:    fakeDirectory{},
	}, report.WithLogger(log))

	srv := httpx.NewServer(httpx.WithErrorHandler(ErrorHandler(log)))
	srv.RegisterRoutes(func(a *httpx.App) {
		NewHandler(svc, log).Register(a, AuthMiddleware(verifier, log))
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload), "body: %s", body)
	require.NotEmpty(t, payload.Error.Message)
	return payload.Error.Code
}

func testVerifier() *fakeVerifier {
	return &fakeVerifier{user: &upstream.User{ID: "u1", Username: "siti", Roles: []string{"owner"}}}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestAuthRequired(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/reports/sales/summary", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/reports/sales/summary", "expired", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, body))
}

func TestUserFromCarriesVerifiedUser(t *testing.T) {
	log := quietLogger()
	srv := httpx.NewServer(httpx.WithErrorHandler(ErrorHandler(log)))
	srv.RegisterRoutes(func(a *httpx.App) {
		a.GET("/whoami", func(c httpx.Context) error {
			user, ok := UserFrom(c)
			require.True(t, ok)
			return c.JSON(httpx.StatusOK, map[string]string{"id": user.ID, "username": user.Username})
		}, AuthMiddleware(testVerifier(), log))
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/whoami", "good-token", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"u1","username":"siti"}`, string(body))
}

func TestAuthServiceDown(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, &fakeVerifier{err: errors.New("dial tcp: refused")})

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/widgets/sales-summary", "good-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "AUTH_UNAVAILABLE", errorCode(t, body))
}

func TestSalesSummaryEndpoint(t *testing.T) {
	inv := &fakeInventory{movements: []upstream.Movement{
		{ProductID: "p1", StoreID: "s1", MovementType: "sale", Quantity: 2, UnitPrice: 10,
			MovementDate: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
	}}
	ts := newTestAPI(t, inv, testVerifier())
	url := ts.URL + "/reports/sales/summary?startDate=2026-03-01&endDate=2026-03-17&groupBy=day"

	resp, body := doRequest(t, http.MethodGet, url, "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var payload struct {
		Data []report.GroupSummary   `json:"data"`
		Meta report.SalesSummaryMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Data, 1)
	assert.Equal(t, "2026-03-10", payload.Data[0].Group)
	assert.False(t, payload.Meta.Cached)
	assert.Equal(t, "day", payload.Meta.GroupBy)

	// Second fetch serves from cache.
	resp, body = doRequest(t, http.MethodGet, url, "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.True(t, payload.Meta.Cached)
	assert.NotNil(t, payload.Meta.GeneratedAt)
}

func TestSalesSummaryValidationResponses(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/reports/sales/summary", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_DATE_RANGE", errorCode(t, body))

	resp, body = doRequest(t, http.MethodGet,
		ts.URL+"/reports/sales/summary?startDate=yesterdayish&endDate=2026-03-17", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_DATE", errorCode(t, body))
}

func TestUpstreamFailureResponse(t *testing.T) {
	inv := &fakeInventory{movementsErr: errors.New("connection refused")}
	ts := newTestAPI(t, inv, testVerifier())

	resp, body := doRequest(t, http.MethodGet,
		ts.URL+"/reports/sales/summary?startDate=2026-03-01&endDate=2026-03-17", "good-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", errorCode(t, body))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "The inventory service is unavailable", payload.Error.Message)
}

func TestLowStockEndpoint(t *testing.T) {
	inv := &fakeInventory{items: []upstream.InventoryItem{
		{ProductID: "p1", CurrentQuantity: 0, ReorderLevel: 5},
	}}
	ts := newTestAPI(t, inv, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/reports/inventory/low-stock?storeId=s1", "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var payload struct {
		Meta report.LowStockMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 1, payload.Meta.Totals.CriticalItems)
	assert.Equal(t, "Store s1", payload.Meta.StoreName)
}

func TestWidgetEndpoint(t *testing.T) {
	inv := &fakeInventory{items: []upstream.InventoryItem{
		{ProductID: "p1", CurrentQuantity: 3, ReorderLevel: 10},
	}}
	ts := newTestAPI(t, inv, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/widgets/low-stock-alerts?storeId=s1", "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var payload struct {
		Data report.LowStockAlertsWidget `json:"data"`
		Meta report.WidgetMeta           `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Data.Alerts, 1)
	assert.Equal(t, int64(7), payload.Data.Alerts[0].Shortage)
	assert.Equal(t, "s1", payload.Meta.StoreID)
	assert.Equal(t, 5, payload.Meta.Limit)
}

func TestWidgetRejectsBadLimit(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/widgets/recent-movements?limit=lots", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PARAMETERS", errorCode(t, body))
}

func TestExportCSV(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())
	payload := `{"data":[{"group":"2026-03-10","totalSales":20}]}`

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/reports/export?format=csv", "good-token", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	assert.Equal(t, "attachment; filename=report.csv", resp.Header.Get("Content-Disposition"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Equal(t, "group,totalSales\n\"2026-03-10\",20\n", string(body))
}

func TestExportJSONDefault(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())
	payload := `{"data":[{"group":"2026-03-10"}]}`

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/reports/export", "good-token", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attachment; filename=report.json", resp.Header.Get("Content-Disposition"))
	assert.JSONEq(t, payload, string(body))
}

func TestExportRejections(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{}, testVerifier())

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/reports/export?format=xlsx", "good-token", `{"data":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_FORMAT", errorCode(t, body))

	resp, body = doRequest(t, http.MethodPost, ts.URL+"/reports/export", "good-token", `{"meta":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REPORT_DATA", errorCode(t, body))
}

func TestClearCacheEndpoint(t *testing.T) {
	inv := &fakeInventory{items: []upstream.InventoryItem{{ProductID: "p1"}}}
	ts := newTestAPI(t, inv, testVerifier())

	// Warm two report types.
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/reports/inventory/low-stock", "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/reports/inventory/status", "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/clear-cache", "good-token", `{"reportType":"low_stock"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)
	assert.JSONEq(t, `{"cleared":1}`, string(body))

	resp, body = doRequest(t, http.MethodPost, ts.URL+"/clear-cache", "good-token", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"cleared":1}`, string(body))
}

func TestUserScopeFromToken(t *testing.T) {
	ts := newTestAPI(t, &fakeInventory{items: []upstream.InventoryItem{{ProductID: "p1"}}}, testVerifier())

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/reports/inventory/status", "good-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The cache entry is scoped to the verified user's id.
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/clear-cache", "good-token", `{"scopeId":"u1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"cleared":1}`, string(body))
}

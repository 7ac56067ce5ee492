package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovementsQueryValues(t *testing.T) {
	full := MovementsQuery{
		StoreID:        "s1",
		ProductID:      "p1",
		MovementType:   "sale",
		StartDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
		Limit:          5000,
		SortByDateDesc: true,
	}
	assert.Equal(t, map[string]string{
		"storeId":      "s1",
		"productId":    "p1",
		"movementType": "sale",
		"startDate":    "2026-03-01T00:00:00Z",
		"endDate":      "2026-03-17T00:00:00Z",
		"limit":        "5000",
		"sort":         "-movementDate",
	}, full.values())

	assert.Empty(t, MovementsQuery{}.values())
}

func TestInventoryQueryValues(t *testing.T) {
	assert.Equal(t, map[string]string{
		"storeId":        "s1",
		"lowStock":       "true",
		"includeProduct": "true",
	}, InventoryQuery{StoreID: "s1", LowStock: true, IncludeProduct: true}.values())

	assert.Empty(t, InventoryQuery{}.values())
}

func TestMovementsDecodesEnvelope(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"id":           "m1",
				"productId":    "p1",
				"storeId":      "s1",
				"movementType": "sale",
				"quantity":     -3,
				"unitPrice":    12.5,
				"movementDate": "2026-03-16T09:00:00Z",
			}},
			"pagination": map[string]any{"page": 1, "limit": 100, "total": 1, "totalPages": 1},
		})
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	ctx := WithToken(context.Background(), "tok-123")

	page, err := client.Movements(ctx, MovementsQuery{StoreID: "s1", MovementType: "sale", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, gotQuery["storeId"])
	assert.Equal(t, []string{"10"}, gotQuery["limit"])
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.NotEmpty(t, gotRequestID)

	require.Len(t, page.Data, 1)
	assert.Equal(t, "m1", page.Data[0].ID)
	assert.Equal(t, int64(-3), page.Data[0].Quantity)
	assert.InDelta(t, 12.5, page.Data[0].UnitPrice, 1e-9)
	require.NotNil(t, page.Pagination)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestMovementsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	_, err := client.Movements(context.Background(), MovementsQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory movements")
}

func TestInventoryDecodesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("lowStock"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"productId":       "p1",
				"storeId":         "s1",
				"currentQuantity": 2,
				"reorderLevel":    10,
				"valueAtCost":     40.0,
				"isLowStock":      true,
				"product":         map[string]any{"id": "p1", "name": "Beras", "sku": "BR-1"},
			}},
		})
	}))
	defer srv.Close()

	client := NewInventoryClient(srv.URL, time.Second)
	page, err := client.Inventory(context.Background(), InventoryQuery{LowStock: true, IncludeProduct: true})
	require.NoError(t, err)

	require.Len(t, page.Data, 1)
	item := page.Data[0]
	assert.True(t, item.IsLowStock)
	require.NotNil(t, item.Product)
	assert.Equal(t, "Beras", item.Product.Name)
}

func TestGetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "p1",
			"name":     "Beras 5kg",
			"sku":      "BR-5",
			"category": map[string]any{"id": "c1", "name": "Staples"},
		})
	}))
	defer srv.Close()

	client := NewProductClient(srv.URL, time.Second)
	product, err := client.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Beras 5kg", product.Name)
	require.NotNil(t, product.Category)
	assert.Equal(t, "Staples", product.Category.Name)
}

func TestGetStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stores/s1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "s1",
			"name":    "Toko Sinar",
			"code":    "TS-01",
			"address": map[string]any{"city": "Bandung", "province": "Jawa Barat"},
		})
	}))
	defer srv.Close()

	client := NewStoreClient(srv.URL, time.Second)
	store, err := client.GetStore(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Toko Sinar", store.Name)
	assert.Equal(t, "Bandung", store.Address.City)
}

func TestVerifyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/verify", r.URL.Path)
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Token != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{"id": "u1", "username": "siti", "roles": []string{"owner"}},
		})
	}))
	defer srv.Close()

	client := NewAuthClient(srv.URL, time.Second)
	ctx := context.Background()

	user, err := client.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, []string{"owner"}, user.Roles)

	_, err = client.Verify(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewAuthClient(srv.URL, time.Second)
	_, err := client.Verify(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestTokenContext(t *testing.T) {
	assert.Empty(t, TokenFrom(context.Background()))
	ctx := WithToken(context.Background(), "tok")
	assert.Equal(t, "tok", TokenFrom(ctx))
}

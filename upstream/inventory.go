package upstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kiryana/reporting/httpx"
)

// InventoryClient talks to the inventory service.
type InventoryClient struct {
	http *httpx.Client
}

func NewInventoryClient(baseURL string, timeout time.Duration) *InventoryClient {
	return &InventoryClient{http: httpx.NewClient(
		httpx.WithBaseURL(baseURL),
		httpx.WithClientTimeout(timeout),
	)}
}

// MovementsQuery filters GET /movements. Zero values are omitted from
// the query string.
type MovementsQuery struct {
	StoreID        string
	ProductID      string
	MovementType   string
	StartDate      time.Time
	EndDate        time.Time
	Limit          int
	SortByDateDesc bool
}

func (q MovementsQuery) values() map[string]string {
	params := map[string]string{}
	if q.StoreID != "" {
		params["storeId"] = q.StoreID
	}
	if q.ProductID != "" {
		params["productId"] = q.ProductID
	}
	if q.MovementType != "" {
		params["movementType"] = q.MovementType
	}
	if !q.StartDate.IsZero() {
		params["startDate"] = q.StartDate.UTC().Format(time.RFC3339)
	}
	if !q.EndDate.IsZero() {
		params["endDate"] = q.EndDate.UTC().Format(time.RFC3339)
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	if q.SortByDateDesc {
		params["sort"] = "-movementDate"
	}
	return params
}

// Movements fetches stock movements matching the query.
func (c *InventoryClient) Movements(ctx context.Context, q MovementsQuery) (*MovementsPage, error) {
	var page MovementsPage
	opts := append(callOptions(ctx), httpx.WithQuery(q.values()))
	if _, err := c.http.Get(ctx, "/movements", &page, opts...); err != nil {
		return nil, fmt.Errorf("inventory movements: %w", err)
	}
	return &page, nil
}

// InventoryQuery filters GET /inventory.
type InventoryQuery struct {
	StoreID        string
	LowStock       bool
	IncludeProduct bool
}

func (q InventoryQuery) values() map[string]string {
	params := map[string]string{}
	if q.StoreID != "" {
		params["storeId"] = q.StoreID
	}
	if q.LowStock {
		params["lowStock"] = "true"
	}
	if q.IncludeProduct {
		params["includeProduct"] = "true"
	}
	return params
}

// Inventory fetches current stock levels matching the query.
func (c *InventoryClient) Inventory(ctx context.Context, q InventoryQuery) (*InventoryPage, error) {
	var page InventoryPage
	opts := append(callOptions(ctx), httpx.WithQuery(q.values()))
	if _, err := c.http.Get(ctx, "/inventory", &page, opts...); err != nil {
		return nil, fmt.Errorf("inventory levels: %w", err)
	}
	return &page, nil
}

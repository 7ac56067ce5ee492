package report

import (
	"time"

	"github.com/kiryana/reporting/upstream"
)

// Report and widget type identifiers. They name cache namespaces, so
// renaming one orphans its cached entries.
const (
	TypeSalesSummary       = "sales_summary"
	TypeSalesByProduct     = "sales_by_product"
	TypeSalesByStore       = "sales_by_store"
	TypeInventoryStatus    = "inventory_status"
	TypeInventoryMovements = "inventory_movements"
	TypeLowStock           = "low_stock"

	TypeWidgetSalesSummary    = "widget_sales_summary"
	TypeWidgetInventoryStatus = "widget_inventory_status"
	TypeWidgetLowStockAlerts  = "widget_low_stock_alerts"
	TypeWidgetRecentMovements = "widget_recent_movements"
	TypeWidgetTopProducts     = "widget_top_products"
)

// WidgetTypes lists the cache namespaces that carry the shorter widget
// TTL.
func WidgetTypes() []string {
	return []string{
		TypeWidgetSalesSummary,
		TypeWidgetInventoryStatus,
		TypeWidgetLowStockAlerts,
		TypeWidgetRecentMovements,
		TypeWidgetTopProducts,
	}
}

// CacheMeta is set on responses served from cache.
type CacheMeta struct {
	Cached      bool       `json:"cached,omitempty"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`
}

type DateRangeMeta struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GroupSummary is one bucket of a grouped sales summary.
type GroupSummary struct {
	Group            string  `json:"group"`
	Label            string  `json:"label"`
	Count            int     `json:"count"`
	TotalUnits       int64   `json:"totalUnits"`
	TotalSales       float64 `json:"totalSales"`
	AverageUnitPrice float64 `json:"averageUnitPrice"`
}

type SalesTotals struct {
	Transactions            int     `json:"transactions"`
	Units                   int64   `json:"units"`
	Sales                   float64 `json:"sales"`
	AverageUnitPrice        float64 `json:"averageUnitPrice"`
	AverageTransactionValue float64 `json:"averageTransactionValue"`
}

type SalesSummaryMeta struct {
	Timestamp time.Time     `json:"timestamp"`
	StoreName string        `json:"storeName"`
	DateRange DateRangeMeta `json:"dateRange"`
	GroupBy   string        `json:"groupBy"`
	Totals    SalesTotals   `json:"totals"`
	CacheMeta
}

type SalesSummaryReport struct {
	Data []GroupSummary   `json:"data"`
	Meta SalesSummaryMeta `json:"meta"`
}

// ProductRef is the flattened product identity attached to report rows.
type ProductRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Category string `json:"category,omitempty"`
}

type ProductSalesRow struct {
	ProductID        string      `json:"productId"`
	Transactions     int         `json:"transactions"`
	Quantity         int64       `json:"quantity"`
	TotalSales       float64     `json:"totalSales"`
	AverageUnitPrice float64     `json:"averageUnitPrice"`
	Product          *ProductRef `json:"product"`
}

type SalesByProductTotals struct {
	Products     int     `json:"products"`
	Transactions int     `json:"transactions"`
	Quantity     int64   `json:"quantity"`
	Sales        float64 `json:"sales"`
}

type SalesByProductMeta struct {
	Timestamp time.Time            `json:"timestamp"`
	StoreName string               `json:"storeName"`
	DateRange DateRangeMeta        `json:"dateRange"`
	TopN      int                  `json:"topN,omitempty"`
	Totals    SalesByProductTotals `json:"totals"`
	CacheMeta
}

type SalesByProductReport struct {
	Data []ProductSalesRow  `json:"data"`
	Meta SalesByProductMeta `json:"meta"`
}

// StoreRef is the flattened store identity attached to report rows.
type StoreRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Location string `json:"location"`
}

type StoreSalesRow struct {
	StoreID                 string    `json:"storeId"`
	Store                   *StoreRef `json:"store"`
	Transactions            int       `json:"transactions"`
	Quantity                int64     `json:"quantity"`
	TotalSales              float64   `json:"totalSales"`
	UniqueProducts          int       `json:"uniqueProducts"`
	AverageTransactionValue float64   `json:"averageTransactionValue"`
}

type SalesByStoreTotals struct {
	Stores         int     `json:"stores"`
	Transactions   int     `json:"transactions"`
	Quantity       int64   `json:"quantity"`
	Sales          float64 `json:"sales"`
	UniqueProducts int     `json:"uniqueProducts"`
}

type SalesByStoreMeta struct {
	Timestamp time.Time          `json:"timestamp"`
	DateRange DateRangeMeta      `json:"dateRange"`
	TopN      int                `json:"topN,omitempty"`
	Totals    SalesByStoreTotals `json:"totals"`
	CacheMeta
}

type SalesByStoreReport struct {
	Data []StoreSalesRow  `json:"data"`
	Meta SalesByStoreMeta `json:"meta"`
}

// InventoryRow is a stock level row, optionally enriched with its store.
type InventoryRow struct {
	upstream.InventoryItem
	Store *upstream.StoreInfo `json:"store,omitempty"`
}

type InventoryFilters struct {
	StoreID  string `json:"storeId"`
	LowStock bool   `json:"lowStock"`
}

type InventoryTotals struct {
	Items         int     `json:"items"`
	TotalValue    float64 `json:"totalValue"`
	LowStockItems int     `json:"lowStockItems"`
}

type InventoryStatusMeta struct {
	Timestamp time.Time        `json:"timestamp"`
	Filters   InventoryFilters `json:"filters"`
	Totals    InventoryTotals  `json:"totals"`
	CacheMeta
}

type InventoryStatusReport struct {
	Data       []InventoryRow       `json:"data"`
	Meta       InventoryStatusMeta  `json:"meta"`
	Pagination *upstream.Pagination `json:"pagination,omitempty"`
}

// MovementRow is a movement, optionally enriched with product and store.
type MovementRow struct {
	upstream.Movement
	Product *upstream.Product   `json:"product,omitempty"`
	Store   *upstream.StoreInfo `json:"store,omitempty"`
}

type MovementFilters struct {
	StoreID      string          `json:"storeId"`
	ProductID    string          `json:"productId"`
	MovementType string          `json:"movementType"`
	DateRange    StringDateRange `json:"dateRange"`
}

// StringDateRange keeps the "all" placeholder for unbounded ends.
type StringDateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type MovementBucket struct {
	Count int     `json:"count"`
	Value float64 `json:"value"`
	Units int64   `json:"units"`
}

type MovementTotals struct {
	Movements int            `json:"movements"`
	StockIn   MovementBucket `json:"stockIn"`
	Sales     MovementBucket `json:"sales"`
	Removals  MovementBucket `json:"removals"`
}

type MovementsMeta struct {
	Timestamp time.Time       `json:"timestamp"`
	Filters   MovementFilters `json:"filters"`
	Totals    MovementTotals  `json:"totals"`
	CacheMeta
}

type MovementsReport struct {
	Data       []MovementRow        `json:"data"`
	Meta       MovementsMeta        `json:"meta"`
	Pagination *upstream.Pagination `json:"pagination,omitempty"`
}

type LowStockFilters struct {
	StoreID string `json:"storeId"`
}

type LowStockTotals struct {
	LowStockItems      int   `json:"lowStockItems"`
	CriticalItems      int   `json:"criticalItems"`
	TotalRequiredUnits int64 `json:"totalRequiredUnits"`
}

type LowStockMeta struct {
	Timestamp time.Time       `json:"timestamp"`
	StoreName string          `json:"storeName"`
	Filters   LowStockFilters `json:"filters"`
	Totals    LowStockTotals  `json:"totals"`
	CacheMeta
}

type LowStockReport struct {
	Data       []upstream.InventoryItem `json:"data"`
	Meta       LowStockMeta             `json:"meta"`
	Pagination *upstream.Pagination     `json:"pagination,omitempty"`
}

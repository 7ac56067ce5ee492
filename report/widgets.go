package report

import (
	"context"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kiryana/reporting/cache"
	"github.com/kiryana/reporting/upstream"
)

// WidgetMeta is the metadata block attached to widget responses. Only
// the fields relevant to the particular widget are populated.
type WidgetMeta struct {
	Cached       bool           `json:"cached,omitempty"`
	GeneratedAt  *time.Time     `json:"generatedAt,omitempty"`
	Period       string         `json:"period,omitempty"`
	StoreID      string         `json:"storeId,omitempty"`
	ShowLowStock *bool          `json:"showLowStock,omitempty"`
	MovementType string         `json:"type,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	DateRange    *DateRangeMeta `json:"dateRange,omitempty"`
}

type WidgetSalesTotals struct {
	TotalSales              float64 `json:"totalSales"`
	TotalTransactions       int     `json:"totalTransactions"`
	TotalUnits              int64   `json:"totalUnits"`
	AverageTransactionValue float64 `json:"averageTransactionValue"`
}

type TrendPoint struct {
	Date  string  `json:"date"`
	Sales float64 `json:"sales"`
}

type SalesSummaryWidget struct {
	Summary WidgetSalesTotals `json:"summary"`
	Trend   []TrendPoint      `json:"trend"`
}

type InventoryWidgetSummary struct {
	TotalProducts int     `json:"totalProducts"`
	TotalValue    float64 `json:"totalValue"`
	LowStockItems int     `json:"lowStockItems"`
	CriticalItems int     `json:"criticalItems"`
}

type TopInventoryItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Quantity   int64   `json:"quantity"`
	Value      float64 `json:"value"`
	IsLowStock bool    `json:"isLowStock"`
}

type InventoryStatusWidget struct {
	Summary  InventoryWidgetSummary `json:"summary"`
	TopItems []TopInventoryItem     `json:"topItems"`
}

type StockAlert struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SKU             string `json:"sku"`
	CurrentQuantity int64  `json:"currentQuantity"`
	ReorderLevel    int64  `json:"reorderLevel"`
	Shortage        int64  `json:"shortage"`
	CriticalLevel   bool   `json:"criticalLevel"`
}

type AlertSummary struct {
	TotalLowStock int   `json:"totalLowStock"`
	CriticalItems int   `json:"criticalItems"`
	TotalRequired int64 `json:"totalRequired"`
}

type LowStockAlertsWidget struct {
	Alerts  []StockAlert `json:"alerts"`
	Summary AlertSummary `json:"summary"`
}

type MovementView struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Type        string    `json:"type"`
	Quantity    int64     `json:"quantity"`
	Direction   string    `json:"direction"`
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
}

type MovementCounts struct {
	StockIn  int `json:"stockIn"`
	Sales    int `json:"sales"`
	Removals int `json:"removals"`
}

type RecentMovementsWidget struct {
	Movements []MovementView `json:"movements"`
	Summary   MovementCounts `json:"summary"`
}

type TopProductEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	SalesValue   float64 `json:"salesValue"`
	Quantity     int64   `json:"quantity"`
	Transactions int     `json:"transactions"`
}

type TopProductsSummary struct {
	TotalProducts int     `json:"totalProducts"`
	TotalSales    float64 `json:"totalSales"`
	TotalQuantity int64   `json:"totalQuantity"`
}

type TopProductsWidget struct {
	Products []TopProductEntry  `json:"products"`
	Summary  TopProductsSummary `json:"summary"`
}

func storeOrAll(storeID string) string {
	if storeID == "" {
		return "all"
	}
	return storeID
}

func validPeriod(period string) error {
	return validation.Validate(period,
		validation.In("", PeriodToday, PeriodYesterday, PeriodLast7Days, PeriodThisMonth, PeriodLastMonth))
}

type WidgetSalesSummaryParams struct {
	StoreID string
	Period  string
}

func (p WidgetSalesSummaryParams) Validate() error {
	if err := validPeriod(p.Period); err != nil {
		return validationFailed(err)
	}
	return nil
}

// WidgetSalesSummary serves the dashboard sales headline: period totals
// plus a per-day trend. It rides on the sales summary report, so a warm
// report cache also speeds up cold widgets.
func (s *Service) WidgetSalesSummary(ctx context.Context, p WidgetSalesSummaryParams) (*SalesSummaryWidget, WidgetMeta, error) {
	if err := p.Validate(); err != nil {
		return nil, WidgetMeta{}, err
	}
	rng, ok := ResolvePeriod(p.Period, s.now())
	if !ok {
		rng = LastNDays(s.now(), 7)
	}

	params := cache.Params{}.
		Set("storeId", storeOrAll(p.StoreID)).
		Set("period", p.Period)

	meta := WidgetMeta{
		Period:    p.Period,
		StoreID:   storeOrAll(p.StoreID),
		DateRange: &DateRangeMeta{Start: rng.Start, End: rng.End},
	}

	var out SalesSummaryWidget
	hit, err := s.run(ctx, TypeWidgetSalesSummary, params, p.StoreID, &out, func(ctx context.Context) (any, error) {
		summary, err := s.SalesSummary(ctx, SalesSummaryParams{
			StoreID:   p.StoreID,
			StartDate: rng.Start,
			EndDate:   rng.End,
			GroupBy:   GroupByDay,
		})
		if err != nil {
			return nil, err
		}
		widget := SalesSummaryWidget{
			Summary: WidgetSalesTotals{
				TotalSales:              summary.Meta.Totals.Sales,
				TotalTransactions:       summary.Meta.Totals.Transactions,
				TotalUnits:              summary.Meta.Totals.Units,
				AverageTransactionValue: summary.Meta.Totals.AverageTransactionValue,
			},
			Trend: make([]TrendPoint, 0, len(summary.Data)),
		}
		for _, day := range summary.Data {
			widget.Trend = append(widget.Trend, TrendPoint{Date: day.Label, Sales: day.TotalSales})
		}
		return widget, nil
	})
	if err != nil {
		return nil, WidgetMeta{}, err
	}
	if hit != nil {
		meta.Cached = true
		meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, meta, nil
}

type WidgetInventoryStatusParams struct {
	StoreID      string
	ShowLowStock bool
}

// WidgetInventoryStatus serves the stock overview: headline counts plus
// the five most valuable items.
func (s *Service) WidgetInventoryStatus(ctx context.Context, p WidgetInventoryStatusParams) (*InventoryStatusWidget, WidgetMeta, error) {
	params := cache.Params{}.
		Set("storeId", storeOrAll(p.StoreID)).
		Set("showLowStock", p.ShowLowStock)

	meta := WidgetMeta{
		StoreID:      storeOrAll(p.StoreID),
		ShowLowStock: &p.ShowLowStock,
	}

	var out InventoryStatusWidget
	hit, err := s.run(ctx, TypeWidgetInventoryStatus, params, p.StoreID, &out, func(ctx context.Context) (any, error) {
		status, err := s.InventoryStatus(ctx, InventoryStatusParams{
			StoreID:  p.StoreID,
			LowStock: p.ShowLowStock,
		})
		if err != nil {
			return nil, err
		}

		critical := 0
		for _, item := range status.Data {
			if item.CurrentQuantity == 0 {
				critical++
			}
		}

		byValue := make([]InventoryRow, len(status.Data))
		copy(byValue, status.Data)
		sort.SliceStable(byValue, func(i, j int) bool { return byValue[i].ValueAtCost > byValue[j].ValueAtCost })
		byValue = TopN(byValue, 5)

		widget := InventoryStatusWidget{
			Summary: InventoryWidgetSummary{
				TotalProducts: len(status.Data),
				TotalValue:    status.Meta.Totals.TotalValue,
				LowStockItems: status.Meta.Totals.LowStockItems,
				CriticalItems: critical,
			},
			TopItems: make([]TopInventoryItem, 0, len(byValue)),
		}
		for _, item := range byValue {
			widget.TopItems = append(widget.TopItems, TopInventoryItem{
				ID:         item.ProductID,
				Name:       productNameOf(item.Product, item.ProductID),
				Quantity:   item.CurrentQuantity,
				Value:      item.ValueAtCost,
				IsLowStock: item.IsLowStock,
			})
		}
		return widget, nil
	})
	if err != nil {
		return nil, WidgetMeta{}, err
	}
	if hit != nil {
		meta.Cached = true
		meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, meta, nil
}

type WidgetLowStockAlertsParams struct {
	StoreID string
	Limit   int
}

// WidgetLowStockAlerts serves reorder alerts, critical items first and
// then by shortage, truncated to the limit (default 5).
func (s *Service) WidgetLowStockAlerts(ctx context.Context, p WidgetLowStockAlertsParams) (*LowStockAlertsWidget, WidgetMeta, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}

	params := cache.Params{}.
		Set("storeId", storeOrAll(p.StoreID)).
		Set("limit", limit)

	meta := WidgetMeta{StoreID: storeOrAll(p.StoreID), Limit: limit}

	var out LowStockAlertsWidget
	hit, err := s.run(ctx, TypeWidgetLowStockAlerts, params, p.StoreID, &out, func(ctx context.Context) (any, error) {
		lowStock, err := s.LowStock(ctx, LowStockParams{StoreID: p.StoreID})
		if err != nil {
			return nil, err
		}

		alerts := make([]StockAlert, 0, len(lowStock.Data))
		for _, item := range lowStock.Data {
			alerts = append(alerts, StockAlert{
				ID:              item.ProductID,
				Name:            productNameOf(item.Product, item.ProductID),
				SKU:             productSKUOf(item.Product),
				CurrentQuantity: item.CurrentQuantity,
				ReorderLevel:    item.ReorderLevel,
				Shortage:        item.ReorderLevel - item.CurrentQuantity,
				CriticalLevel:   item.CurrentQuantity == 0,
			})
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			if alerts[i].CriticalLevel != alerts[j].CriticalLevel {
				return alerts[i].CriticalLevel
			}
			return alerts[i].Shortage > alerts[j].Shortage
		})
		alerts = TopN(alerts, limit)

		return LowStockAlertsWidget{
			Alerts: alerts,
			Summary: AlertSummary{
				TotalLowStock: lowStock.Meta.Totals.LowStockItems,
				CriticalItems: lowStock.Meta.Totals.CriticalItems,
				TotalRequired: lowStock.Meta.Totals.TotalRequiredUnits,
			},
		}, nil
	})
	if err != nil {
		return nil, WidgetMeta{}, err
	}
	if hit != nil {
		meta.Cached = true
		meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, meta, nil
}

type WidgetRecentMovementsParams struct {
	StoreID string
	Limit   int
	Type    string
}

func (p WidgetRecentMovementsParams) Validate() error {
	err := validation.Validate(p.Type,
		validation.In("", "all", MovementStockIn, MovementSale, MovementRemoval))
	if err != nil {
		return validationFailed(err)
	}
	return nil
}

// WidgetRecentMovements serves the latest stock movements with product
// names joined in, default limit 10.
func (s *Service) WidgetRecentMovements(ctx context.Context, p WidgetRecentMovementsParams) (*RecentMovementsWidget, WidgetMeta, error) {
	if err := p.Validate(); err != nil {
		return nil, WidgetMeta{}, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = recentMovementsDefault
	}
	movementType := p.Type
	if movementType == "all" {
		movementType = ""
	}

	params := cache.Params{}.
		Set("storeId", storeOrAll(p.StoreID)).
		Set("limit", limit).
		Set("type", orAllType(movementType))

	meta := WidgetMeta{
		StoreID:      storeOrAll(p.StoreID),
		Limit:        limit,
		MovementType: orAllType(movementType),
	}

	var out RecentMovementsWidget
	hit, err := s.run(ctx, TypeWidgetRecentMovements, params, p.StoreID, &out, func(ctx context.Context) (any, error) {
		page, err := s.movements.Movements(ctx, upstream.MovementsQuery{
			StoreID:        p.StoreID,
			MovementType:   movementType,
			Limit:          limit,
			SortByDateDesc: true,
		})
		if err != nil {
			return nil, &UpstreamError{Service: "inventory", Err: err}
		}

		products := s.fetchProducts(ctx, uniqueProductIDs(page.Data))

		widget := RecentMovementsWidget{Movements: make([]MovementView, 0, len(page.Data))}
		for _, m := range page.Data {
			direction := "out"
			if m.MovementType == MovementStockIn {
				direction = "in"
			}
			units := abs64(m.Quantity)
			widget.Movements = append(widget.Movements, MovementView{
				ID:          m.ID,
				ProductID:   m.ProductID,
				ProductName: productNameOf(products[m.ProductID], m.ProductID),
				Type:        m.MovementType,
				Quantity:    units,
				Direction:   direction,
				Date:        m.MovementDate,
				Value:       float64(units) * m.UnitPrice,
			})
			switch m.MovementType {
			case MovementStockIn:
				widget.Summary.StockIn++
			case MovementSale:
				widget.Summary.Sales++
			case MovementRemoval:
				widget.Summary.Removals++
			}
		}
		return widget, nil
	})
	if err != nil {
		return nil, WidgetMeta{}, err
	}
	if hit != nil {
		meta.Cached = true
		meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, meta, nil
}

type WidgetTopProductsParams struct {
	StoreID string
	Period  string
	Limit   int
}

func (p WidgetTopProductsParams) Validate() error {
	if err := validPeriod(p.Period); err != nil {
		return validationFailed(err)
	}
	return nil
}

// WidgetTopProducts serves the best sellers for the period, default
// limit 5, default window the last 30 days.
func (s *Service) WidgetTopProducts(ctx context.Context, p WidgetTopProductsParams) (*TopProductsWidget, WidgetMeta, error) {
	if err := p.Validate(); err != nil {
		return nil, WidgetMeta{}, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}
	rng, ok := ResolvePeriod(p.Period, s.now())
	if !ok {
		rng = LastNDays(s.now(), 30)
	}

	params := cache.Params{}.
		Set("storeId", storeOrAll(p.StoreID)).
		Set("period", p.Period).
		Set("limit", limit)

	meta := WidgetMeta{
		Period:    p.Period,
		StoreID:   storeOrAll(p.StoreID),
		Limit:     limit,
		DateRange: &DateRangeMeta{Start: rng.Start, End: rng.End},
	}

	var out TopProductsWidget
	hit, err := s.run(ctx, TypeWidgetTopProducts, params, p.StoreID, &out, func(ctx context.Context) (any, error) {
		byProduct, err := s.SalesByProduct(ctx, SalesByProductParams{
			StoreID:   p.StoreID,
			StartDate: rng.Start,
			EndDate:   rng.End,
			TopN:      limit,
		})
		if err != nil {
			return nil, err
		}

		widget := TopProductsWidget{
			Products: make([]TopProductEntry, 0, len(byProduct.Data)),
			Summary: TopProductsSummary{
				TotalProducts: byProduct.Meta.Totals.Products,
				TotalSales:    byProduct.Meta.Totals.Sales,
				TotalQuantity: byProduct.Meta.Totals.Quantity,
			},
		}
		for _, row := range byProduct.Data {
			entry := TopProductEntry{
				ID:           row.ProductID,
				Name:         "Product " + row.ProductID,
				SalesValue:   row.TotalSales,
				Quantity:     row.Quantity,
				Transactions: row.Transactions,
			}
			if row.Product != nil {
				entry.Name = row.Product.Name
				entry.SKU = row.Product.SKU
			}
			widget.Products = append(widget.Products, entry)
		}
		return widget, nil
	})
	if err != nil {
		return nil, WidgetMeta{}, err
	}
	if hit != nil {
		meta.Cached = true
		meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, meta, nil
}

func orAllType(movementType string) string {
	if movementType == "" {
		return "all"
	}
	return movementType
}

func productNameOf(p *upstream.Product, id string) string {
	if p != nil {
		return p.Name
	}
	return "Product " + id
}

func productSKUOf(p *upstream.Product) string {
	if p != nil {
		return p.SKU
	}
	return ""
}

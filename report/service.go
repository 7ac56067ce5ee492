// Package report implements the reporting and dashboard widget engine:
// parameter validation, cached orchestration, aggregation over stock
// movements and inventory levels, and export.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/kiryana/reporting/cache"
	"github.com/kiryana/reporting/upstream"
)

// MovementSource fetches stock movements from the inventory service.
type MovementSource interface {
	Movements(ctx context.Context, q upstream.MovementsQuery) (*upstream.MovementsPage, error)
}

// InventorySource fetches current stock levels from the inventory service.
type InventorySource interface {
	Inventory(ctx context.Context, q upstream.InventoryQuery) (*upstream.InventoryPage, error)
}

// Sources bundles the upstream dependencies of the service.
type Sources struct {
	Movements MovementSource
	Inventory InventorySource
	Products  ProductDirectory
	Stores    StoreDirectory
}

// Movement fetch limits, matching what one report can reasonably chew.
const (
	reportFetchLimit       = 5000
	storeReportFetchLimit  = 10000
	movementsReportLimit   = 1000
	recentMovementsDefault = 10
)

type Service struct {
	store     cache.Store
	movements MovementSource
	inventory InventorySource
	products  ProductDirectory
	stores    StoreDirectory

	log   *logrus.Logger
	now   func() time.Time
	group singleflight.Group
}

type Option func(*Service)

func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store cache.Store, src Sources, opts ...Option) *Service {
	s := &Service{
		store:     store,
		movements: src.Movements,
		inventory: src.Inventory,
		products:  src.Products,
		stores:    src.Stores,
		log:       logrus.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type ctxKey int

const generatedByKey ctxKey = iota

// WithGeneratedBy records the authenticated user generating a report;
// their id becomes the cache entry's scope.
func WithGeneratedBy(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, generatedByKey, userID)
}

func generatedBy(ctx context.Context) string {
	id, _ := ctx.Value(generatedByKey).(string)
	return id
}

// cacheHit reports that run served a response from cache.
type cacheHit struct {
	GeneratedAt time.Time
}

// run is the shared orchestration path: probe the cache, and on a miss
// build the payload once per key (concurrent misses for the same key
// collapse), store it, and hand the bytes back. Cache failures on
// either side are logged and absorbed; only the build can fail the
// request.
func (s *Service) run(ctx context.Context, reportType string, params cache.Params, scopeID string, out any, build func(ctx context.Context) (any, error)) (*cacheHit, error) {
	entry, err := s.store.Get(ctx, reportType, params)
	if err == nil {
		if uerr := json.Unmarshal(entry.Data, out); uerr == nil {
			s.log.WithField("reportType", reportType).Debug("cache hit")
			return &cacheHit{GeneratedAt: entry.GeneratedAt}, nil
		}
		s.log.WithField("reportType", reportType).Warn("cache entry undecodable, rebuilding")
	} else if !errors.Is(err, cache.ErrNotFound) {
		s.log.WithError(err).WithField("reportType", reportType).Warn("cache read failed")
	} else {
		s.log.WithField("reportType", reportType).Debug("cache miss")
	}

	key := cache.Key(reportType, params)
	v, err, _ := s.group.Do(key, func() (any, error) {
		payload, err := build(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		// The write must not be torn by the caller hanging up
		// mid-request; it either lands whole or not at all.
		if _, perr := s.store.Put(context.WithoutCancel(ctx), reportType, params, data, scopeID); perr != nil {
			s.log.WithError(perr).WithField("reportType", reportType).Warn("cache write failed")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if uerr := json.Unmarshal(v.([]byte), out); uerr != nil {
		return nil, uerr
	}
	return nil, nil
}

// ClearCache drops cached entries matching the filter and reports how
// many were removed. An empty filter clears everything.
func (s *Service) ClearCache(ctx context.Context, reportType, scopeID string) (int, error) {
	n, err := s.store.Invalidate(ctx, cache.Filter{ReportType: reportType, ScopeID: scopeID})
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"reportType": reportType, "scopeId": scopeID, "cleared": n}).Info("cache cleared")
	return n, nil
}

// SalesSummary builds the grouped sales summary report.
func (s *Service) SalesSummary(ctx context.Context, p SalesSummaryParams) (*SalesSummaryReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out SalesSummaryReport
	hit, err := s.run(ctx, TypeSalesSummary, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildSalesSummary(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildSalesSummary(ctx context.Context, p SalesSummaryParams) (*SalesSummaryReport, error) {
	page, err := s.movements.Movements(ctx, upstream.MovementsQuery{
		StoreID:      p.StoreID,
		MovementType: MovementSale,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		Limit:        reportFetchLimit,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	summaries := SummarizeSales(page.Data, p.GroupBy)

	// Grouping by id dimensions reads better with names on the labels.
	switch p.GroupBy {
	case GroupByProduct:
		products := s.fetchProducts(ctx, uniqueProductIDs(page.Data))
		for i := range summaries {
			if product, ok := products[summaries[i].Group]; ok {
				summaries[i].Label = product.Name
			}
		}
	case GroupByStore:
		stores := s.fetchStores(ctx, uniqueStoreIDs(page.Data))
		for i := range summaries {
			if store, ok := stores[summaries[i].Group]; ok {
				summaries[i].Label = store.Name
			}
		}
	}

	groupBy := p.GroupBy
	if groupBy == GroupByNone {
		groupBy = "none"
	}
	return &SalesSummaryReport{
		Data: summaries,
		Meta: SalesSummaryMeta{
			Timestamp: s.now().UTC(),
			StoreName: s.storeName(ctx, p.StoreID),
			DateRange: DateRangeMeta{Start: p.StartDate, End: p.EndDate},
			GroupBy:   groupBy,
			Totals:    OverallSalesTotals(page.Data),
		},
	}, nil
}

// SalesByProduct builds the per-product sales report.
func (s *Service) SalesByProduct(ctx context.Context, p SalesByProductParams) (*SalesByProductReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out SalesByProductReport
	hit, err := s.run(ctx, TypeSalesByProduct, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildSalesByProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildSalesByProduct(ctx context.Context, p SalesByProductParams) (*SalesByProductReport, error) {
	page, err := s.movements.Movements(ctx, upstream.MovementsQuery{
		StoreID:      p.StoreID,
		MovementType: MovementSale,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		Limit:        reportFetchLimit,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	rows := AggregateByProduct(page.Data)
	products := s.fetchProducts(ctx, uniqueProductIDs(page.Data))
	for i := range rows {
		rows[i].Product = productRef(products[rows[i].ProductID])
	}
	rows = TopN(rows, p.TopN)

	totals := SalesByProductTotals{Products: len(rows), Transactions: len(page.Data)}
	for _, row := range rows {
		totals.Quantity += row.Quantity
		totals.Sales += row.TotalSales
	}

	return &SalesByProductReport{
		Data: rows,
		Meta: SalesByProductMeta{
			Timestamp: s.now().UTC(),
			StoreName: s.storeName(ctx, p.StoreID),
			DateRange: DateRangeMeta{Start: p.StartDate, End: p.EndDate},
			TopN:      p.TopN,
			Totals:    totals,
		},
	}, nil
}

// SalesByStore builds the per-store sales report.
func (s *Service) SalesByStore(ctx context.Context, p SalesByStoreParams) (*SalesByStoreReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out SalesByStoreReport
	hit, err := s.run(ctx, TypeSalesByStore, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildSalesByStore(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildSalesByStore(ctx context.Context, p SalesByStoreParams) (*SalesByStoreReport, error) {
	page, err := s.movements.Movements(ctx, upstream.MovementsQuery{
		MovementType: MovementSale,
		StartDate:    p.StartDate,
		EndDate:      p.EndDate,
		Limit:        storeReportFetchLimit,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	rows := AggregateByStore(page.Data)
	stores := s.fetchStores(ctx, uniqueStoreIDs(page.Data))
	for i := range rows {
		rows[i].Store = storeRef(stores[rows[i].StoreID])
	}
	rows = TopN(rows, p.TopN)

	totals := SalesByStoreTotals{
		Stores:         len(rows),
		Transactions:   len(page.Data),
		UniqueProducts: UniqueProductCount(page.Data),
	}
	for _, row := range rows {
		totals.Quantity += row.Quantity
		totals.Sales += row.TotalSales
	}

	return &SalesByStoreReport{
		Data: rows,
		Meta: SalesByStoreMeta{
			Timestamp: s.now().UTC(),
			DateRange: DateRangeMeta{Start: p.StartDate, End: p.EndDate},
			TopN:      p.TopN,
			Totals:    totals,
		},
	}, nil
}

// InventoryStatus builds the current stock levels report.
func (s *Service) InventoryStatus(ctx context.Context, p InventoryStatusParams) (*InventoryStatusReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out InventoryStatusReport
	hit, err := s.run(ctx, TypeInventoryStatus, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildInventoryStatus(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildInventoryStatus(ctx context.Context, p InventoryStatusParams) (*InventoryStatusReport, error) {
	page, err := s.inventory.Inventory(ctx, upstream.InventoryQuery{
		StoreID:        p.StoreID,
		LowStock:       p.LowStock,
		IncludeProduct: true,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	rows := make([]InventoryRow, len(page.Data))
	for i, item := range page.Data {
		rows[i] = InventoryRow{InventoryItem: item}
	}

	if p.IncludeStoreDetails && p.StoreID != "" {
		if store, err := s.stores.GetStore(ctx, p.StoreID); err != nil {
			s.log.WithError(err).WithField("storeId", p.StoreID).Warn("store lookup failed")
		} else {
			for i := range rows {
				rows[i].Store = store
			}
		}
	}

	storeFilter := p.StoreID
	if storeFilter == "" {
		storeFilter = "all"
	}
	return &InventoryStatusReport{
		Data: rows,
		Meta: InventoryStatusMeta{
			Timestamp: s.now().UTC(),
			Filters:   InventoryFilters{StoreID: storeFilter, LowStock: p.LowStock},
			Totals:    SummarizeInventory(rows),
		},
		Pagination: page.Pagination,
	}, nil
}

// InventoryMovements builds the raw movements report.
func (s *Service) InventoryMovements(ctx context.Context, p MovementsParams) (*MovementsReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out MovementsReport
	hit, err := s.run(ctx, TypeInventoryMovements, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildMovements(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildMovements(ctx context.Context, p MovementsParams) (*MovementsReport, error) {
	page, err := s.movements.Movements(ctx, upstream.MovementsQuery{
		StoreID:        p.StoreID,
		ProductID:      p.ProductID,
		MovementType:   p.MovementType,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		Limit:          movementsReportLimit,
		SortByDateDesc: true,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	rows := make([]MovementRow, len(page.Data))
	for i, m := range page.Data {
		rows[i] = MovementRow{Movement: m}
	}

	if p.IncludeProductDetails {
		products := s.fetchProducts(ctx, uniqueProductIDs(page.Data))
		for i := range rows {
			rows[i].Product = products[rows[i].ProductID]
		}
	}
	if p.IncludeStoreDetails {
		stores := s.fetchStores(ctx, uniqueStoreIDs(page.Data))
		for i := range rows {
			rows[i].Store = stores[rows[i].StoreID]
		}
	}

	return &MovementsReport{
		Data: rows,
		Meta: MovementsMeta{
			Timestamp: s.now().UTC(),
			Filters:   movementFilters(p),
			Totals:    SummarizeMovements(rows),
		},
		Pagination: page.Pagination,
	}, nil
}

func movementFilters(p MovementsParams) MovementFilters {
	orAll := func(s string) string {
		if s == "" {
			return "all"
		}
		return s
	}
	dateOrAll := func(t time.Time) string {
		if t.IsZero() {
			return "all"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return MovementFilters{
		StoreID:      orAll(p.StoreID),
		ProductID:    orAll(p.ProductID),
		MovementType: orAll(p.MovementType),
		DateRange: StringDateRange{
			Start: dateOrAll(p.StartDate),
			End:   dateOrAll(p.EndDate),
		},
	}
}

// LowStock builds the below-reorder-level report.
func (s *Service) LowStock(ctx context.Context, p LowStockParams) (*LowStockReport, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var out LowStockReport
	hit, err := s.run(ctx, TypeLowStock, p.cacheParams(), generatedBy(ctx), &out, func(ctx context.Context) (any, error) {
		return s.buildLowStock(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		out.Meta.Cached = true
		out.Meta.GeneratedAt = &hit.GeneratedAt
	}
	return &out, nil
}

func (s *Service) buildLowStock(ctx context.Context, p LowStockParams) (*LowStockReport, error) {
	page, err := s.inventory.Inventory(ctx, upstream.InventoryQuery{
		StoreID:        p.StoreID,
		LowStock:       true,
		IncludeProduct: true,
	})
	if err != nil {
		return nil, &UpstreamError{Service: "inventory", Err: err}
	}

	storeFilter := p.StoreID
	if storeFilter == "" {
		storeFilter = "all"
	}
	return &LowStockReport{
		Data: page.Data,
		Meta: LowStockMeta{
			Timestamp: s.now().UTC(),
			StoreName: s.storeName(ctx, p.StoreID),
			Filters:   LowStockFilters{StoreID: storeFilter},
			Totals:    SummarizeLowStock(page.Data),
		},
		Pagination: page.Pagination,
	}, nil
}

package report

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kiryana/reporting/cache"
)

// Grouping dimensions for sales summaries.
const (
	GroupByNone    = ""
	GroupByDay     = "day"
	GroupByWeek    = "week"
	GroupByMonth   = "month"
	GroupByProduct = "product"
	GroupByStore   = "store"
)

// Movement types used by the inventory service.
const (
	MovementStockIn = "stock_in"
	MovementSale    = "sale"
	MovementRemoval = "removal"
)

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseTime accepts the date formats API clients send and normalizes
// to UTC. Date-only values resolve to midnight.
func ParseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func validationFailed(err error) *ValidationError {
	if err == nil {
		return nil
	}
	return NewValidationError("INVALID_PARAMETERS", err.Error())
}

func requireDateRange(start, end time.Time) *ValidationError {
	if start.IsZero() || end.IsZero() {
		return NewValidationError("MISSING_DATE_RANGE", "Start date and end date are required for sales reports")
	}
	if !start.Before(end) {
		return NewValidationError("INVALID_DATE_RANGE", "Start date must be before end date")
	}
	return nil
}

type SalesSummaryParams struct {
	StoreID   string
	StartDate time.Time
	EndDate   time.Time
	GroupBy   string
}

func (p SalesSummaryParams) Validate() error {
	if err := requireDateRange(p.StartDate, p.EndDate); err != nil {
		return err
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.GroupBy, validation.In(GroupByNone, GroupByDay, GroupByWeek, GroupByMonth, GroupByProduct, GroupByStore)),
	)
	if err != nil {
		return validationFailed(err)
	}
	return nil
}

func (p SalesSummaryParams) cacheParams() cache.Params {
	return cache.Params{}.
		Set("storeId", p.StoreID).
		Set("startDate", p.StartDate).
		Set("endDate", p.EndDate).
		Set("groupBy", p.GroupBy)
}

type SalesByProductParams struct {
	StoreID   string
	StartDate time.Time
	EndDate   time.Time
	TopN      int
}

func (p SalesByProductParams) Validate() error {
	if err := requireDateRange(p.StartDate, p.EndDate); err != nil {
		return err
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.TopN, validation.Min(0)),
	)
	if err != nil {
		return validationFailed(err)
	}
	return nil
}

func (p SalesByProductParams) cacheParams() cache.Params {
	params := cache.Params{}.
		Set("storeId", p.StoreID).
		Set("startDate", p.StartDate).
		Set("endDate", p.EndDate)
	if p.TopN > 0 {
		params = params.Set("topN", p.TopN)
	}
	return params
}

type SalesByStoreParams struct {
	StartDate time.Time
	EndDate   time.Time
	TopN      int
}

func (p SalesByStoreParams) Validate() error {
	if err := requireDateRange(p.StartDate, p.EndDate); err != nil {
		return err
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.TopN, validation.Min(0)),
	)
	if err != nil {
		return validationFailed(err)
	}
	return nil
}

func (p SalesByStoreParams) cacheParams() cache.Params {
	params := cache.Params{}.
		Set("startDate", p.StartDate).
		Set("endDate", p.EndDate)
	if p.TopN > 0 {
		params = params.Set("topN", p.TopN)
	}
	return params
}

type InventoryStatusParams struct {
	StoreID             string
	LowStock            bool
	IncludeStoreDetails bool
}

func (p InventoryStatusParams) Validate() error { return nil }

func (p InventoryStatusParams) cacheParams() cache.Params {
	return cache.Params{}.
		Set("storeId", p.StoreID).
		Set("lowStock", p.LowStock).
		Set("includeStoreDetails", p.IncludeStoreDetails)
}

type MovementsParams struct {
	StoreID               string
	ProductID             string
	MovementType          string
	StartDate             time.Time
	EndDate               time.Time
	IncludeProductDetails bool
	IncludeStoreDetails   bool
}

func (p MovementsParams) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.MovementType, validation.In("", MovementStockIn, MovementSale, MovementRemoval)),
	)
	if err != nil {
		return validationFailed(err)
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && !p.StartDate.Before(p.EndDate) {
		return NewValidationError("INVALID_DATE_RANGE", "Start date must be before end date")
	}
	return nil
}

func (p MovementsParams) cacheParams() cache.Params {
	return cache.Params{}.
		Set("storeId", p.StoreID).
		Set("productId", p.ProductID).
		Set("movementType", p.MovementType).
		Set("startDate", p.StartDate).
		Set("endDate", p.EndDate).
		Set("includeProductDetails", p.IncludeProductDetails).
		Set("includeStoreDetails", p.IncludeStoreDetails)
}

type LowStockParams struct {
	StoreID string
}

func (p LowStockParams) Validate() error { return nil }

func (p LowStockParams) cacheParams() cache.Params {
	return cache.Params{}.Set("storeId", p.StoreID)
}

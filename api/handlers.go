// Package api exposes the reporting and dashboard widget engine over
// HTTP: report routes, widget routes, export, cache maintenance, and
// the bearer-token middleware guarding them.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kiryana/reporting/httpx"
	"github.com/kiryana/reporting/report"
)

type Handler struct {
	reports *report.Service
	log     *logrus.Logger
}

func NewHandler(reports *report.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{reports: reports, log: log}
}

// Register wires every route. The auth middleware guards everything
// except the health probe.
func (h *Handler) Register(a *httpx.App, auth httpx.MiddlewareFunc) {
	a.GET("/health", h.Health)

	reports := httpx.NewRouter(a, "/reports", auth)
	reports.GET("/sales/summary", h.SalesSummary)
	reports.GET("/sales/by-product", h.SalesByProduct)
	reports.GET("/sales/by-store", h.SalesByStore)
	reports.GET("/inventory/status", h.InventoryStatus)
	reports.GET("/inventory/movements", h.InventoryMovements)
	reports.GET("/inventory/low-stock", h.LowStock)
	reports.POST("/export", h.Export)

	widgets := httpx.NewRouter(a, "/widgets", auth)
	widgets.GET("/sales-summary", h.WidgetSalesSummary)
	widgets.GET("/inventory-status", h.WidgetInventoryStatus)
	widgets.GET("/low-stock-alerts", h.WidgetLowStockAlerts)
	widgets.GET("/recent-movements", h.WidgetRecentMovements)
	widgets.GET("/top-products", h.WidgetTopProducts)

	a.POST("/clear-cache", h.ClearCache, auth)
}

func (h *Handler) Health(c httpx.Context) error {
	return c.JSON(httpx.StatusOK, map[string]string{"status": "ok"})
}

func dateParam(c httpx.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := report.ParseTime(raw)
	if err != nil {
		return time.Time{}, report.NewValidationError("INVALID_DATE", fmt.Sprintf("Parameter %q is not a valid date", name))
	}
	return t, nil
}

func intParam(c httpx.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, report.NewValidationError("INVALID_PARAMETERS", fmt.Sprintf("Parameter %q must be a non-negative integer", name))
	}
	return n, nil
}

func boolParam(c httpx.Context, name string) bool {
	return c.QueryParam(name) == "true"
}

func (h *Handler) SalesSummary(c httpx.Context) error {
	start, err := dateParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := dateParam(c, "endDate")
	if err != nil {
		return err
	}
	rep, err := h.reports.SalesSummary(c.Request().Context(), report.SalesSummaryParams{
		StoreID:   c.QueryParam("storeId"),
		StartDate: start,
		EndDate:   end,
		GroupBy:   c.QueryParam("groupBy"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

func (h *Handler) SalesByProduct(c httpx.Context) error {
	start, err := dateParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := dateParam(c, "endDate")
	if err != nil {
		return err
	}
	topN, err := intParam(c, "topN")
	if err != nil {
		return err
	}
	rep, err := h.reports.SalesByProduct(c.Request().Context(), report.SalesByProductParams{
		StoreID:   c.QueryParam("storeId"),
		StartDate: start,
		EndDate:   end,
		TopN:      topN,
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

func (h *Handler) SalesByStore(c httpx.Context) error {
	start, err := dateParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := dateParam(c, "endDate")
	if err != nil {
		return err
	}
	topN, err := intParam(c, "topN")
	if err != nil {
		return err
	}
	rep, err := h.reports.SalesByStore(c.Request().Context(), report.SalesByStoreParams{
		StartDate: start,
		EndDate:   end,
		TopN:      topN,
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

func (h *Handler) InventoryStatus(c httpx.Context) error {
	rep, err := h.reports.InventoryStatus(c.Request().Context(), report.InventoryStatusParams{
		StoreID:             c.QueryParam("storeId"),
		LowStock:            boolParam(c, "lowStock"),
		IncludeStoreDetails: boolParam(c, "includeStoreDetails"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

func (h *Handler) InventoryMovements(c httpx.Context) error {
	start, err := dateParam(c, "startDate")
	if err != nil {
		return err
	}
	end, err := dateParam(c, "endDate")
	if err != nil {
		return err
	}
	rep, err := h.reports.InventoryMovements(c.Request().Context(), report.MovementsParams{
		StoreID:               c.QueryParam("storeId"),
		ProductID:             c.QueryParam("productId"),
		MovementType:          c.QueryParam("movementType"),
		StartDate:             start,
		EndDate:               end,
		IncludeProductDetails: boolParam(c, "includeProductDetails"),
		IncludeStoreDetails:   boolParam(c, "includeStoreDetails"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

func (h *Handler) LowStock(c httpx.Context) error {
	rep, err := h.reports.LowStock(c.Request().Context(), report.LowStockParams{
		StoreID: c.QueryParam("storeId"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, rep)
}

type widgetResponse struct {
	Data any               `json:"data"`
	Meta report.WidgetMeta `json:"meta"`
}

func (h *Handler) WidgetSalesSummary(c httpx.Context) error {
	widget, meta, err := h.reports.WidgetSalesSummary(c.Request().Context(), report.WidgetSalesSummaryParams{
		StoreID: c.QueryParam("storeId"),
		Period:  c.QueryParam("period"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, widgetResponse{Data: widget, Meta: meta})
}

func (h *Handler) WidgetInventoryStatus(c httpx.Context) error {
	widget, meta, err := h.reports.WidgetInventoryStatus(c.Request().Context(), report.WidgetInventoryStatusParams{
		StoreID:      c.QueryParam("storeId"),
		ShowLowStock: boolParam(c, "showLowStock"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, widgetResponse{Data: widget, Meta: meta})
}

func (h *Handler) WidgetLowStockAlerts(c httpx.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	widget, meta, err := h.reports.WidgetLowStockAlerts(c.Request().Context(), report.WidgetLowStockAlertsParams{
		StoreID: c.QueryParam("storeId"),
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, widgetResponse{Data: widget, Meta: meta})
}

func (h *Handler) WidgetRecentMovements(c httpx.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	widget, meta, err := h.reports.WidgetRecentMovements(c.Request().Context(), report.WidgetRecentMovementsParams{
		StoreID: c.QueryParam("storeId"),
		Limit:   limit,
		Type:    c.QueryParam("type"),
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, widgetResponse{Data: widget, Meta: meta})
}

func (h *Handler) WidgetTopProducts(c httpx.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	widget, meta, err := h.reports.WidgetTopProducts(c.Request().Context(), report.WidgetTopProductsParams{
		StoreID: c.QueryParam("storeId"),
		Period:  c.QueryParam("period"),
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(httpx.StatusOK, widgetResponse{Data: widget, Meta: meta})
}

// Export re-serializes a previously fetched report body as a CSV or
// JSON attachment.
func (h *Handler) Export(c httpx.Context) error {
	format, err := report.ValidateExportFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return report.NewValidationError("INVALID_REPORT_DATA", "No valid report data provided for export")
	}

	switch format {
	case report.FormatCSV:
		out, err := report.CSVFromReport(body)
		if err != nil {
			return err
		}
		c.Response().Header().Set("Content-Disposition", "attachment; filename=report.csv")
		return c.Blob(httpx.StatusOK, "text/csv", []byte(out))
	default:
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
			return report.NewValidationError("INVALID_REPORT_DATA", "No valid report data provided for export")
		}
		c.Response().Header().Set("Content-Disposition", "attachment; filename=report.json")
		return c.JSONBlob(httpx.StatusOK, body)
	}
}

type clearCacheRequest struct {
	ReportType string `json:"reportType"`
	ScopeID    string `json:"scopeId"`
}

// ClearCache drops cached report entries matching the optional filters.
func (h *Handler) ClearCache(c httpx.Context) error {
	var req clearCacheRequest
	if err := c.Bind(&req); err != nil {
		return report.NewValidationError("INVALID_PARAMETERS", "Request body must be a JSON object")
	}
	cleared, err := h.reports.ClearCache(c.Request().Context(), req.ReportType, req.ScopeID)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"reportType": req.ReportType, "scopeId": req.ScopeID, "cleared": cleared}
	if user, ok := UserFrom(c); ok {
		fields["userId"] = user.ID
	}
	h.log.WithFields(fields).Info("cache cleared")
	return c.JSON(httpx.StatusOK, map[string]int{"cleared": cleared})
}

package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/kiryana/reporting/upstream"
)

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// weekOf returns the Sunday-to-Saturday week containing t.
func weekOf(t time.Time) (start, end time.Time) {
	day := startOfDay(t)
	start = day.AddDate(0, 0, -int(day.Weekday()))
	end = start.AddDate(0, 0, 6)
	return start, end
}

// groupKey buckets a movement for the requested dimension and returns
// the bucket key plus a human label. For product and store groupings
// the label starts out as the raw id; enrichment replaces it.
func groupKey(m upstream.Movement, groupBy string) (key, label string) {
	switch groupBy {
	case GroupByDay:
		d := m.MovementDate.UTC().Format("2006-01-02")
		return d, d
	case GroupByWeek:
		start, end := weekOf(m.MovementDate)
		key = start.Format("2006-01-02") + "_" + end.Format("2006-01-02")
		return key, "Week of " + start.Format("2006-01-02")
	case GroupByMonth:
		mo := m.MovementDate.UTC().Format("2006-01")
		return mo, mo
	case GroupByProduct:
		return m.ProductID, m.ProductID
	case GroupByStore:
		return m.StoreID, m.StoreID
	default:
		return "all", "All Sales"
	}
}

// SummarizeSales buckets sales movements along the given dimension and
// computes per-bucket totals, ordered by bucket key.
func SummarizeSales(movements []upstream.Movement, groupBy string) []GroupSummary {
	buckets := make(map[string]*GroupSummary)
	for _, m := range movements {
		key, label := groupKey(m, groupBy)
		b := buckets[key]
		if b == nil {
			b = &GroupSummary{Group: key, Label: label}
			buckets[key] = b
		}
		units := abs64(m.Quantity)
		b.Count++
		b.TotalUnits += units
		b.TotalSales += float64(units) * m.UnitPrice
	}

	out := make([]GroupSummary, 0, len(buckets))
	for _, b := range buckets {
		if b.TotalUnits > 0 {
			b.AverageUnitPrice = b.TotalSales / float64(b.TotalUnits)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// OverallSalesTotals computes the totals block of a sales summary.
func OverallSalesTotals(movements []upstream.Movement) SalesTotals {
	t := SalesTotals{Transactions: len(movements)}
	for _, m := range movements {
		units := abs64(m.Quantity)
		t.Units += units
		t.Sales += float64(units) * m.UnitPrice
	}
	if t.Units > 0 {
		t.AverageUnitPrice = t.Sales / float64(t.Units)
	}
	if t.Transactions > 0 {
		t.AverageTransactionValue = t.Sales / float64(t.Transactions)
	}
	return t
}

// AggregateByProduct rolls sales up per product, ordered by total sales
// descending with first-seen order breaking ties.
func AggregateByProduct(movements []upstream.Movement) []ProductSalesRow {
	index := make(map[string]int)
	rows := make([]ProductSalesRow, 0)
	for _, m := range movements {
		i, ok := index[m.ProductID]
		if !ok {
			i = len(rows)
			index[m.ProductID] = i
			rows = append(rows, ProductSalesRow{ProductID: m.ProductID})
		}
		units := abs64(m.Quantity)
		rows[i].Transactions++
		rows[i].Quantity += units
		rows[i].TotalSales += float64(units) * m.UnitPrice
	}
	for i := range rows {
		if rows[i].Quantity > 0 {
			rows[i].AverageUnitPrice = rows[i].TotalSales / float64(rows[i].Quantity)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalSales > rows[j].TotalSales })
	return rows
}

// AggregateByStore rolls sales up per store, ordered by total sales
// descending with first-seen order breaking ties.
func AggregateByStore(movements []upstream.Movement) []StoreSalesRow {
	index := make(map[string]int)
	rows := make([]StoreSalesRow, 0)
	products := make(map[string]map[string]struct{})
	for _, m := range movements {
		i, ok := index[m.StoreID]
		if !ok {
			i = len(rows)
			index[m.StoreID] = i
			rows = append(rows, StoreSalesRow{StoreID: m.StoreID})
			products[m.StoreID] = make(map[string]struct{})
		}
		units := abs64(m.Quantity)
		rows[i].Transactions++
		rows[i].Quantity += units
		rows[i].TotalSales += float64(units) * m.UnitPrice
		products[m.StoreID][m.ProductID] = struct{}{}
	}
	for i := range rows {
		rows[i].UniqueProducts = len(products[rows[i].StoreID])
		if rows[i].Transactions > 0 {
			rows[i].AverageTransactionValue = rows[i].TotalSales / float64(rows[i].Transactions)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalSales > rows[j].TotalSales })
	return rows
}

// UniqueProductCount counts distinct products across movements.
func UniqueProductCount(movements []upstream.Movement) int {
	seen := make(map[string]struct{}, len(movements))
	for _, m := range movements {
		seen[m.ProductID] = struct{}{}
	}
	return len(seen)
}

// SummarizeMovements totals movements per type bucket.
func SummarizeMovements(rows []MovementRow) MovementTotals {
	t := MovementTotals{Movements: len(rows)}
	for _, r := range rows {
		units := abs64(r.Quantity)
		value := float64(units) * r.UnitPrice
		switch r.MovementType {
		case MovementStockIn:
			t.StockIn.Count++
			t.StockIn.Units += units
			t.StockIn.Value += value
		case MovementSale:
			t.Sales.Count++
			t.Sales.Units += units
			t.Sales.Value += value
		case MovementRemoval:
			t.Removals.Count++
			t.Removals.Units += units
			t.Removals.Value += value
		}
	}
	return t
}

// SummarizeLowStock totals a low-stock item set. Shortage never goes
// negative even if a row slipped past the upstream lowStock filter.
func SummarizeLowStock(items []upstream.InventoryItem) LowStockTotals {
	t := LowStockTotals{LowStockItems: len(items)}
	for _, item := range items {
		if item.CurrentQuantity == 0 {
			t.CriticalItems++
		}
		if shortage := item.ReorderLevel - item.CurrentQuantity; shortage > 0 {
			t.TotalRequiredUnits += shortage
		}
	}
	return t
}

// SummarizeInventory totals an inventory status row set.
func SummarizeInventory(rows []InventoryRow) InventoryTotals {
	t := InventoryTotals{Items: len(rows)}
	for _, r := range rows {
		t.TotalValue += r.ValueAtCost
		if r.IsLowStock {
			t.LowStockItems++
		}
	}
	return t
}

// TopN truncates a sorted row set to its first n entries. Zero or
// negative n leaves the set untouched.
func TopN[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func productRef(p *upstream.Product) *ProductRef {
	if p == nil {
		return nil
	}
	ref := &ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU}
	if p.Category != nil {
		ref.Category = p.Category.Name
	}
	return ref
}

func storeRef(s *upstream.StoreInfo) *StoreRef {
	if s == nil {
		return nil
	}
	return &StoreRef{
		ID:       s.ID,
		Name:     s.Name,
		Code:     s.Code,
		Location: fmt.Sprintf("%s, %s", s.Address.City, s.Address.Province),
	}
}

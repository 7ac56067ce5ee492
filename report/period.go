package report

import "time"

// Symbolic period names accepted by the dashboard widgets.
const (
	PeriodToday     = "today"
	PeriodYesterday = "yesterday"
	PeriodLast7Days = "last7days"
	PeriodThisMonth = "thisMonth"
	PeriodLastMonth = "lastMonth"
)

// DateRange is a half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ResolvePeriod maps a symbolic period to a concrete date range
// relative to now. Completed periods end on a calendar boundary;
// ongoing periods end at now. Unknown periods return ok=false so the
// caller can apply its own default.
func ResolvePeriod(period string, now time.Time) (DateRange, bool) {
	now = now.UTC()
	switch period {
	case PeriodToday:
		return DateRange{Start: startOfDay(now), End: now}, true
	case PeriodYesterday:
		today := startOfDay(now)
		return DateRange{Start: startOfDay(now.AddDate(0, 0, -1)), End: today}, true
	case PeriodLast7Days:
		return DateRange{Start: startOfDay(now.AddDate(0, 0, -7)), End: now}, true
	case PeriodThisMonth:
		return DateRange{Start: startOfMonth(now), End: now}, true
	case PeriodLastMonth:
		first := startOfMonth(now)
		return DateRange{Start: first.AddDate(0, -1, 0), End: first}, true
	default:
		return DateRange{}, false
	}
}

// LastNDays is the widget fallback range when no period is given.
func LastNDays(now time.Time, n int) DateRange {
	now = now.UTC()
	return DateRange{Start: startOfDay(now.AddDate(0, 0, -n)), End: now}
}

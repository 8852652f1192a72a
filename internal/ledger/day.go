package ledger

import (
	"time"

	"github.com/tinoosan/tillbook/internal/errs"
)

// DayLayout formats shop-local calendar days.
const DayLayout = "2006-01-02"

// Day returns the calendar day of t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, errs.Invalid("date", "expected YYYY-MM-DD")
	}
	return t, nil
}

// DayBounds returns [start, end) of the day in loc.
func DayBounds(day string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DayLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, errs.Invalid("date", "expected YYYY-MM-DD")
	}
	return t, t.AddDate(0, 0, 1), nil
}

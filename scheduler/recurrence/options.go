package recurrence

import (
	"fmt"
	"time"
)

// MonthlyOption is a display-only monthly pattern choice offered for a
// given anchor start date. Options are recomputed whenever the anchor
// changes and are never persisted.
type MonthlyOption struct {
	Pattern MonthlyPattern
	Label   string
}

// DeriveMonthlyOptions returns the monthly pattern choices valid for the
// given anchor start date, in a fixed order: day-of-month, Nth weekday,
// and (only when the date is the last occurrence of its weekday in the
// month) last weekday.
func DeriveMonthlyOptions(start time.Time) []MonthlyOption {
	day := start.Day()
	week := WeekOfMonth(start)
	weekday := WeekdayCode(start)

	options := []MonthlyOption{
		{
			Pattern: MonthlyPattern{Kind: MonthlyOnDay, Day: day},
			Label:   fmt.Sprintf("On day %d", day),
		},
		{
			Pattern: MonthlyPattern{Kind: MonthlyOnNthWeekday, Week: week, Weekday: weekday},
			Label:   fmt.Sprintf("On the %s %s", Ordinal(week), weekday.Name()),
		},
	}

	if IsLastWeekdayOccurrence(start) {
		options = append(options, MonthlyOption{
			Pattern: MonthlyPattern{Kind: MonthlyOnLastWeekday, Weekday: weekday},
			Label:   fmt.Sprintf("On the last %s", weekday.Name()),
		})
	}

	return options
}

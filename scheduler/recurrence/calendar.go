package recurrence

import (
	"strconv"
	"time"
)

// weekdayCodes maps time.Weekday (Sunday == 0) to iCalendar codes.
var weekdayCodes = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

var weekdayNames = map[Weekday]string{
	Sunday:    "Sunday",
	Monday:    "Monday",
	Tuesday:   "Tuesday",
	Wednesday: "Wednesday",
	Thursday:  "Thursday",
	Friday:    "Friday",
	Saturday:  "Saturday",
}

// WeekdayCode returns the two-letter code for t's day of the week.
func WeekdayCode(t time.Time) Weekday {
	return weekdayCodes[int(t.Weekday())]
}

// Name returns the full English weekday name, or the raw code if w is
// not a recognized weekday.
func (w Weekday) Name() string {
	if name, ok := weekdayNames[w]; ok {
		return name
	}
	return string(w)
}

// Valid reports whether w is one of the seven weekday codes.
func (w Weekday) Valid() bool {
	_, ok := weekdayNames[w]
	return ok
}

// WeekOfMonth returns the ordinal position of t's week within its month,
// ceil(day/7), in the range 1-5.
func WeekOfMonth(t time.Time) int {
	return (t.Day() + 6) / 7
}

// IsLastWeekdayOccurrence reports whether t is the last occurrence of
// its weekday within its month, i.e. the same weekday seven days later
// falls in the following month.
func IsLastWeekdayOccurrence(t time.Time) bool {
	return t.AddDate(0, 0, 7).Month() != t.Month()
}

// Ordinal renders n with its English ordinal suffix: 1st, 2nd, 3rd,
// 4th, ... with 11, 12 and 13 taking "th". The same rule is used for
// option labels and summaries so the two never diverge.
func Ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 == 11, n%100 == 12, n%100 == 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

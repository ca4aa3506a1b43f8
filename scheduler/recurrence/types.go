package recurrence

import (
	"fmt"
	"time"
)

// Period is the base repetition unit of a recurring schedule.
type Period string

const (
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
	PeriodYearly  Period = "YEARLY"
)

// Valid reports whether p is one of the supported periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodYearly:
		return true
	}
	return false
}

// Weekday is a two-letter iCalendar weekday code, Sunday-first.
type Weekday string

const (
	Sunday    Weekday = "SU"
	Monday    Weekday = "MO"
	Tuesday   Weekday = "TU"
	Wednesday Weekday = "WE"
	Thursday  Weekday = "TH"
	Friday    Weekday = "FR"
	Saturday  Weekday = "SA"
)

// MonthlyPatternKind discriminates the monthly recurrence variants.
type MonthlyPatternKind string

const (
	MonthlyOnDay         MonthlyPatternKind = "DayOfMonth"
	MonthlyOnNthWeekday  MonthlyPatternKind = "NthWeekdayOfMonth"
	MonthlyOnLastWeekday MonthlyPatternKind = "LastWeekdayOfMonth"
)

// MonthlyPattern selects which day of the month a monthly series falls on.
// Exactly the fields relevant to Kind are meaningful:
//
//   - MonthlyOnDay: Day (1..31)
//   - MonthlyOnNthWeekday: Week (1..5) and Weekday
//   - MonthlyOnLastWeekday: Weekday
type MonthlyPattern struct {
	Kind    MonthlyPatternKind
	Day     int
	Week    int
	Weekday Weekday
}

// TerminationKind discriminates how a series ends.
type TerminationKind string

const (
	EndAfterCount TerminationKind = "After"
	EndOnDate     TerminationKind = "OnDate"
)

// Termination describes when a recurring series stops. Exactly one
// variant is set: Count for EndAfterCount, Date for EndOnDate.
type Termination struct {
	Kind  TerminationKind
	Count int
	Date  time.Time
}

// Config is the user-facing, editable recurrence configuration collected
// by a scheduling form. It never carries the anchor start time; monthly
// selectors are recomputed from the anchor at construction time.
type Config struct {
	// Interval is the repetition multiplier ("every 2 weeks"). Must be
	// positive.
	Interval int

	Period Period

	// WeeklyDays is required and non-empty iff Period is PeriodWeekly.
	WeeklyDays []Weekday

	// Monthly is required iff Period is PeriodMonthly.
	Monthly *MonthlyPattern

	// End is the termination condition. Exactly one variant is set.
	End Termination
}

// ValidationError reports a structurally incomplete Config handed to
// Construct. It is recoverable; callers surface Field as a form-level
// message and block submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recurrence config: %s: %s", e.Field, e.Reason)
}

// ParseError reports a stored descriptor that is missing a required
// component for its declared frequency, or is otherwise malformed.
// Parse never guesses; a bad descriptor errors loudly rather than
// producing a config with a wrong pattern.
type ParseError struct {
	Component string
	Reason    string
}

func (e *ParseError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("invalid recurrence descriptor: %s", e.Reason)
	}
	return fmt.Sprintf("invalid recurrence descriptor: %s: %s", e.Component, e.Reason)
}

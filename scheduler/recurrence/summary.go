package recurrence

import (
	"fmt"
	"strings"
)

// Summary is the two-line human-readable rendering of a descriptor.
type Summary struct {
	// Cadence is the first line, e.g. "Every 2 weeks on Tuesday, Thursday".
	Cadence string
	// Termination is the second line, e.g. "Ends after 10 events".
	Termination string
}

// String joins the two lines for display.
func (s Summary) String() string {
	return s.Cadence + "\n" + s.Termination
}

var periodNouns = map[Period]string{
	PeriodWeekly:  "week",
	PeriodMonthly: "month",
	PeriodYearly:  "year",
}

// Summarize renders a stored descriptor as display text. It reads the
// descriptor grammar directly and never mutates it; identical input
// yields identical text. A BYSETPOS of -1 renders as the word "last",
// matching the option label for the same pattern.
func Summarize(descriptor string) (Summary, error) {
	comps, err := splitComponents(descriptor)
	if err != nil {
		return Summary{}, err
	}

	freq, ok := comps.get(keyFreq).Get()
	if !ok {
		return Summary{}, &ParseError{Component: keyFreq, Reason: "missing"}
	}
	noun, ok := periodNouns[Period(freq)]
	if !ok {
		return Summary{}, &ParseError{Component: keyFreq, Reason: fmt.Sprintf("unrecognized frequency %q", freq)}
	}

	interval, err := parsePositiveInt(keyInterval, comps.get(keyInterval).OrElse("1"))
	if err != nil {
		return Summary{}, err
	}

	cadence := cadenceLine(Period(freq), noun, interval, comps)

	termination, err := terminationLine(comps)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Cadence: cadence, Termination: termination}, nil
}

func cadenceLine(period Period, noun string, interval int, comps components) string {
	var b strings.Builder
	if interval == 1 {
		fmt.Fprintf(&b, "Every %s", noun)
	} else {
		fmt.Fprintf(&b, "Every %d %ss", interval, noun)
	}

	switch period {
	case PeriodWeekly:
		if byday, ok := comps.get(keyByDay).Get(); ok {
			names := make([]string, 0, 7)
			for _, code := range strings.Split(byday, ",") {
				names = append(names, Weekday(code).Name())
			}
			fmt.Fprintf(&b, " on %s", strings.Join(names, ", "))
		}
	case PeriodMonthly:
		if monthDay, ok := comps.get(keyMonthDay).Get(); ok {
			fmt.Fprintf(&b, " on day %s", monthDay)
			break
		}
		byday, hasByDay := comps.get(keyByDay).Get()
		setpos, hasSetPos := comps.get(keySetPos).Get()
		if hasByDay && hasSetPos {
			if setpos == "-1" {
				fmt.Fprintf(&b, " on the last %s", Weekday(byday).Name())
			} else if week, err := parsePositiveInt(keySetPos, setpos); err == nil {
				fmt.Fprintf(&b, " on the %s %s", Ordinal(week), Weekday(byday).Name())
			}
		}
	}

	return b.String()
}

func terminationLine(comps components) (string, error) {
	if count, ok := comps.get(keyCount).Get(); ok {
		n, err := parsePositiveInt(keyCount, count)
		if err != nil {
			return "", err
		}
		if n == 1 {
			return "Ends after 1 event", nil
		}
		return fmt.Sprintf("Ends after %d events", n), nil
	}

	if until, ok := comps.get(keyUntil).Get(); ok {
		date, err := parseUntilDate(until)
		if err != nil {
			return "", err
		}
		return "Ends on " + date.Format("January 2, 2006"), nil
	}

	return "", &ParseError{Component: keyCount, Reason: "missing COUNT or UNTIL"}
}

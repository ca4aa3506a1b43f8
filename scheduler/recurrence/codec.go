package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
)

// Descriptor component keys. The descriptor is a semicolon-delimited
// KEY=VALUE sequence; component order carries no meaning, but Construct
// emits a fixed order so stored rules diff cleanly.
const (
	keyFreq     = "FREQ"
	keyInterval = "INTERVAL"
	keyByDay    = "BYDAY"
	keyMonthDay = "BYMONTHDAY"
	keySetPos   = "BYSETPOS"
	keyCount    = "COUNT"
	keyUntil    = "UNTIL"
	keyDTStart  = "DTSTART"
)

const timestampLayout = "20060102T150405Z"

// Construct converts a Config plus the series' anchor start time into
// the canonical descriptor string. Monthly selectors are recomputed from
// the anchor, not taken from cached form state, so the stored rule is
// always consistent with the start date. Construction is all-or-nothing:
// on any *ValidationError nothing is emitted.
func Construct(cfg Config, start time.Time) (string, error) {
	if cfg.Interval < 1 {
		return "", &ValidationError{Field: "interval", Reason: "must be a positive integer"}
	}
	if !cfg.Period.Valid() {
		return "", &ValidationError{Field: "period", Reason: fmt.Sprintf("unsupported period %q", string(cfg.Period))}
	}

	parts := []string{
		keyFreq + "=" + string(cfg.Period),
		keyInterval + "=" + strconv.Itoa(cfg.Interval),
	}

	switch cfg.Period {
	case PeriodWeekly:
		days, err := normalizeWeekdays(cfg.WeeklyDays)
		if err != nil {
			return "", err
		}
		parts = append(parts, keyByDay+"="+strings.Join(days, ","))

	case PeriodMonthly:
		if cfg.Monthly == nil {
			return "", &ValidationError{Field: "monthlyPattern", Reason: "required for monthly recurrence"}
		}
		switch cfg.Monthly.Kind {
		case MonthlyOnDay:
			parts = append(parts, fmt.Sprintf("%s=%d", keyMonthDay, start.Day()))
		case MonthlyOnNthWeekday:
			parts = append(parts,
				keyByDay+"="+string(WeekdayCode(start)),
				fmt.Sprintf("%s=%d", keySetPos, WeekOfMonth(start)))
		case MonthlyOnLastWeekday:
			parts = append(parts,
				keyByDay+"="+string(WeekdayCode(start)),
				keySetPos+"=-1")
		default:
			return "", &ValidationError{Field: "monthlyPattern", Reason: fmt.Sprintf("unknown pattern kind %q", string(cfg.Monthly.Kind))}
		}

	case PeriodYearly:
		// Yearly carries no day selectors.
	}

	switch cfg.End.Kind {
	case EndAfterCount:
		if cfg.End.Count < 1 {
			return "", &ValidationError{Field: "termination", Reason: "occurrence count must be positive"}
		}
		parts = append(parts, fmt.Sprintf("%s=%d", keyCount, cfg.End.Count))
	case EndOnDate:
		if cfg.End.Date.IsZero() {
			return "", &ValidationError{Field: "termination", Reason: "end date is required"}
		}
		parts = append(parts, keyUntil+"="+endOfDayUTC(cfg.End.Date).Format(timestampLayout))
	default:
		return "", &ValidationError{Field: "termination", Reason: "either an occurrence count or an end date is required"}
	}

	parts = append(parts, keyDTStart+"="+start.UTC().Format(timestampLayout))

	return strings.Join(parts, ";"), nil
}

// Parse reconstructs an editable Config from a stored descriptor. The
// INTERVAL component defaults to 1 when absent, a deliberate allowance
// for hand-edited rules; every other required component errors when
// missing or malformed.
func Parse(descriptor string) (Config, error) {
	comps, err := splitComponents(descriptor)
	if err != nil {
		return Config{}, err
	}

	freq, ok := comps.get(keyFreq).Get()
	if !ok {
		return Config{}, &ParseError{Component: keyFreq, Reason: "missing"}
	}
	period := Period(freq)
	if !period.Valid() {
		return Config{}, &ParseError{Component: keyFreq, Reason: fmt.Sprintf("unrecognized frequency %q", freq)}
	}

	interval, err := parsePositiveInt(keyInterval, comps.get(keyInterval).OrElse("1"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Interval: interval, Period: period}

	switch period {
	case PeriodWeekly:
		byday, ok := comps.get(keyByDay).Get()
		if !ok {
			return Config{}, &ParseError{Component: keyByDay, Reason: "required for weekly frequency"}
		}
		if comps.get(keySetPos).IsPresent() {
			return Config{}, &ParseError{Component: keySetPos, Reason: "not allowed for weekly frequency"}
		}
		for _, code := range strings.Split(byday, ",") {
			day := Weekday(code)
			if !day.Valid() {
				return Config{}, &ParseError{Component: keyByDay, Reason: fmt.Sprintf("unknown weekday code %q", code)}
			}
			cfg.WeeklyDays = append(cfg.WeeklyDays, day)
		}

	case PeriodMonthly:
		pattern, err := parseMonthlyPattern(comps)
		if err != nil {
			return Config{}, err
		}
		cfg.Monthly = pattern

	case PeriodYearly:
		for _, key := range []string{keyByDay, keyMonthDay, keySetPos} {
			if comps.get(key).IsPresent() {
				return Config{}, &ParseError{Component: key, Reason: "not allowed for yearly frequency"}
			}
		}
	}

	end, err := parseTermination(comps)
	if err != nil {
		return Config{}, err
	}
	cfg.End = end

	return cfg, nil
}

// components indexes a descriptor's KEY=VALUE pairs.
type components map[string]string

func (c components) get(key string) mo.Option[string] {
	if v, ok := c[key]; ok {
		return mo.Some(v)
	}
	return mo.None[string]()
}

func splitComponents(descriptor string) (components, error) {
	if strings.TrimSpace(descriptor) == "" {
		return nil, &ParseError{Reason: "empty descriptor"}
	}

	comps := make(components)
	for _, part := range strings.Split(descriptor, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found || key == "" || value == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("malformed component %q", part)}
		}
		comps[strings.ToUpper(key)] = value
	}
	return comps, nil
}

func parseMonthlyPattern(comps components) (*MonthlyPattern, error) {
	if monthDay, ok := comps.get(keyMonthDay).Get(); ok {
		day, err := parsePositiveInt(keyMonthDay, monthDay)
		if err != nil {
			return nil, err
		}
		if day > 31 {
			return nil, &ParseError{Component: keyMonthDay, Reason: fmt.Sprintf("day %d out of range", day)}
		}
		return &MonthlyPattern{Kind: MonthlyOnDay, Day: day}, nil
	}

	byday, hasByDay := comps.get(keyByDay).Get()
	setpos, hasSetPos := comps.get(keySetPos).Get()
	if !hasByDay || !hasSetPos {
		return nil, &ParseError{Component: keyMonthDay, Reason: "monthly frequency requires BYMONTHDAY or BYDAY with BYSETPOS"}
	}

	weekday := Weekday(byday)
	if !weekday.Valid() {
		return nil, &ParseError{Component: keyByDay, Reason: fmt.Sprintf("unknown weekday code %q", byday)}
	}

	pos, err := strconv.Atoi(setpos)
	if err != nil {
		return nil, &ParseError{Component: keySetPos, Reason: fmt.Sprintf("not an integer: %q", setpos)}
	}
	if pos == -1 {
		return &MonthlyPattern{Kind: MonthlyOnLastWeekday, Weekday: weekday}, nil
	}
	if pos < 1 || pos > 5 {
		return nil, &ParseError{Component: keySetPos, Reason: fmt.Sprintf("week position %d out of range", pos)}
	}
	return &MonthlyPattern{Kind: MonthlyOnNthWeekday, Week: pos, Weekday: weekday}, nil
}

func parseTermination(comps components) (Termination, error) {
	if count, ok := comps.get(keyCount).Get(); ok {
		n, err := parsePositiveInt(keyCount, count)
		if err != nil {
			return Termination{}, err
		}
		return Termination{Kind: EndAfterCount, Count: n}, nil
	}

	if until, ok := comps.get(keyUntil).Get(); ok {
		date, err := parseUntilDate(until)
		if err != nil {
			return Termination{}, err
		}
		return Termination{Kind: EndOnDate, Date: date}, nil
	}

	return Termination{}, &ParseError{Component: keyCount, Reason: "missing COUNT or UNTIL"}
}

// parseUntilDate accepts both the full end-of-day timestamp Construct
// emits and a bare YYYYMMDD, truncating either to the calendar date.
func parseUntilDate(value string) (time.Time, error) {
	digits := strings.NewReplacer("T", "", "Z", "").Replace(value)
	if len(digits) < 8 {
		return time.Time{}, &ParseError{Component: keyUntil, Reason: fmt.Sprintf("malformed timestamp %q", value)}
	}
	date, err := time.ParseInLocation("20060102", digits[:8], time.UTC)
	if err != nil {
		return time.Time{}, &ParseError{Component: keyUntil, Reason: fmt.Sprintf("malformed timestamp %q", value)}
	}
	return date, nil
}

func parsePositiveInt(component, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ParseError{Component: component, Reason: fmt.Sprintf("not an integer: %q", value)}
	}
	if n < 1 {
		return 0, &ParseError{Component: component, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}

// normalizeWeekdays validates, de-duplicates and orders a weekly day set
// Sunday-first.
func normalizeWeekdays(days []Weekday) ([]string, error) {
	if len(days) == 0 {
		return nil, &ValidationError{Field: "weeklyDays", Reason: "select at least one day of the week"}
	}

	order := make(map[Weekday]int, len(weekdayCodes))
	for i, code := range weekdayCodes {
		order[code] = i
	}

	seen := make(map[Weekday]bool, len(days))
	var out []string
	for _, day := range days {
		if !day.Valid() {
			return nil, &ValidationError{Field: "weeklyDays", Reason: fmt.Sprintf("unknown weekday code %q", string(day))}
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, string(day))
	}
	sort.Slice(out, func(i, j int) bool {
		return order[Weekday(out[i])] < order[Weekday(out[j])]
	})
	return out, nil
}

func endOfDayUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

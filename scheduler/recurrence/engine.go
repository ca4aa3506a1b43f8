package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps expansion so a damaged rule cannot produce
// an unbounded series.
const DefaultMaxOccurrences = 1000

// Engine expands stored descriptors into concrete occurrence times. The
// descriptor grammar is RRULE-compatible apart from the inline DTSTART
// component, which the engine lifts out into a proper DTSTART line
// before handing the rule to rrule-go.
type Engine struct {
	// MaxOccurrences limits how many occurrences Expand returns.
	// Zero means DefaultMaxOccurrences.
	MaxOccurrences int
}

// NewEngine creates an engine with default limits.
func NewEngine() *Engine {
	return &Engine{}
}

// Expand lists every occurrence of the series described by descriptor,
// up to the engine's cap. The anchor argument overrides the descriptor's
// own DTSTART component when non-zero.
func (e *Engine) Expand(descriptor string, anchor time.Time) ([]time.Time, error) {
	set, err := e.ruleSet(descriptor, anchor)
	if err != nil {
		return nil, err
	}

	limit := e.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	var occurrences []time.Time
	next := set.Iterator()
	for {
		t, ok := next()
		if !ok || len(occurrences) >= limit {
			break
		}
		occurrences = append(occurrences, t)
	}
	return occurrences, nil
}

// ExpandRange lists occurrences within [rangeStart, rangeEnd], inclusive
// of the range start.
func (e *Engine) ExpandRange(descriptor string, anchor, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	if rangeEnd.Before(rangeStart) {
		return nil, fmt.Errorf("recurrence: range end %v before range start %v", rangeEnd, rangeStart)
	}
	set, err := e.ruleSet(descriptor, anchor)
	if err != nil {
		return nil, err
	}
	return set.Between(rangeStart, rangeEnd, true), nil
}

// HasOccurrenceAt reports whether the series produces an occurrence at
// exactly the given time.
func (e *Engine) HasOccurrenceAt(descriptor string, anchor, at time.Time) (bool, error) {
	occurrences, err := e.ExpandRange(descriptor, anchor, at, at)
	if err != nil {
		return false, err
	}
	for _, t := range occurrences {
		if t.Equal(at) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) ruleSet(descriptor string, anchor time.Time) (*rrule.Set, error) {
	rule, dtstart, err := SplitAnchor(descriptor)
	if err != nil {
		return nil, err
	}
	if !anchor.IsZero() {
		dtstart = anchor
	}
	if dtstart.IsZero() {
		return nil, &ParseError{Component: keyDTStart, Reason: "no anchor start time available"}
	}

	full := fmt.Sprintf("DTSTART:%s\nRRULE:%s", dtstart.UTC().Format(timestampLayout), rule)
	set, err := rrule.StrToRRuleSet(full)
	if err != nil {
		return nil, fmt.Errorf("recurrence: parsing rule %q: %w", rule, err)
	}
	return set, nil
}

// JoinAnchor appends an inline DTSTART component to a pure RRULE text,
// producing the descriptor form this system stores. It is the inverse
// of SplitAnchor.
func JoinAnchor(rule string, anchor time.Time) string {
	return rule + ";" + keyDTStart + "=" + anchor.UTC().Format(timestampLayout)
}

// SplitAnchor separates a descriptor into its pure RRULE text and the
// anchor start time carried by the inline DTSTART component. The
// returned rule is suitable for an iCalendar RRULE property; the anchor
// is zero when the descriptor has no DTSTART.
func SplitAnchor(descriptor string) (rule string, anchor time.Time, err error) {
	comps, err := splitComponents(descriptor)
	if err != nil {
		return "", time.Time{}, err
	}

	if raw, ok := comps.get(keyDTStart).Get(); ok {
		anchor, err = time.Parse(timestampLayout, raw)
		if err != nil {
			return "", time.Time{}, &ParseError{Component: keyDTStart, Reason: fmt.Sprintf("malformed timestamp %q", raw)}
		}
	}

	var parts []string
	for _, part := range strings.Split(descriptor, ";") {
		if part == "" || strings.HasPrefix(strings.ToUpper(part), keyDTStart+"=") {
			continue
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ";"), anchor, nil
}

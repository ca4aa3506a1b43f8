package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineExpand(t *testing.T) {
	engine := NewEngine()

	t.Run("weekly count-bounded series", func(t *testing.T) {
		descriptor := "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10;DTSTART=20250107T100000Z"

		occurrences, err := engine.Expand(descriptor, time.Time{})
		require.NoError(t, err)
		require.Len(t, occurrences, 10)

		assert.Equal(t, time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC), occurrences[0])
		assert.Equal(t, time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC), occurrences[1])
		// Interval 2 skips the following week entirely.
		assert.Equal(t, time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC), occurrences[2])
	})

	t.Run("anchor argument overrides inline DTSTART", func(t *testing.T) {
		descriptor := "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO;COUNT=2;DTSTART=20250106T090000Z"
		anchor := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC) // a Monday

		occurrences, err := engine.Expand(descriptor, anchor)
		require.NoError(t, err)
		require.Len(t, occurrences, 2)
		assert.Equal(t, anchor, occurrences[0])
	})

	t.Run("descriptor without anchor errors", func(t *testing.T) {
		_, err := engine.Expand("FREQ=WEEKLY;BYDAY=MO;COUNT=2", time.Time{})
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("cap limits runaway rules", func(t *testing.T) {
		capped := &Engine{MaxOccurrences: 3}
		occurrences, err := capped.Expand("FREQ=WEEKLY;BYDAY=MO;COUNT=50;DTSTART=20250106T090000Z", time.Time{})
		require.NoError(t, err)
		assert.Len(t, occurrences, 3)
	})
}

func TestEngineExpandRange(t *testing.T) {
	engine := NewEngine()
	descriptor := "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO;COUNT=10;DTSTART=20250106T090000Z"

	occurrences, err := engine.ExpandRange(descriptor, time.Time{},
		time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 27, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, occurrences, 3)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC), occurrences[0])
	assert.Equal(t, time.Date(2025, 1, 27, 9, 0, 0, 0, time.UTC), occurrences[2])

	_, err = engine.ExpandRange(descriptor, time.Time{},
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestEngineHasOccurrenceAt(t *testing.T) {
	engine := NewEngine()
	descriptor := "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10;DTSTART=20250107T100000Z"

	ok, err := engine.HasOccurrenceAt(descriptor, time.Time{}, time.Date(2025, 1, 21, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	// Off-week Tuesday.
	ok, err = engine.HasOccurrenceAt(descriptor, time.Time{}, time.Date(2025, 1, 14, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSplitAnchor(t *testing.T) {
	rule, anchor, err := SplitAnchor("FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10;DTSTART=20250107T100000Z")
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10", rule)
	assert.Equal(t, time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC), anchor)

	rule, anchor, err = SplitAnchor("FREQ=YEARLY;COUNT=3")
	require.NoError(t, err)
	assert.Equal(t, "FREQ=YEARLY;COUNT=3", rule)
	assert.True(t, anchor.IsZero())

	_, _, err = SplitAnchor("FREQ=YEARLY;DTSTART=soon")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/practicekit/libsched/scheduler/recurrence"
	"github.com/practicekit/libsched/scheduler/storage"
)

const prodID = "-//practicekit//libsched//EN"

// ExportICalendar renders a stored record as a VCALENDAR with a single
// VEVENT. The recurrence descriptor's inline DTSTART component is lifted
// out so the RRULE property stays standard iCalendar; excluded
// occurrences become EXDATE properties.
func ExportICalendar(rec *storage.EventRecord) (*ical.Calendar, error) {
	comp, err := eventComponent(rec)
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, prodID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, comp)
	return cal, nil
}

func eventComponent(rec *storage.EventRecord) (*ical.Component, error) {
	if rec.ID == "" {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "record has no ID"}
	}

	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, rec.ID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, rec.Modified.UTC())
	comp.Props.SetDateTime(ical.PropDateTimeStart, rec.Start.UTC())
	comp.Props.SetDateTime(ical.PropDateTimeEnd, rec.End.UTC())
	if rec.Title != "" {
		comp.Props.SetText(ical.PropSummary, rec.Title)
	}
	comp.Props.SetText("X-EVENT-TYPE", string(rec.Type))

	if rec.Recurring() {
		rule, _, err := recurrence.SplitAnchor(rec.RecurrenceRule)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", rec.ID, err)
		}
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.SetValueType(ical.ValueRecurrence)
		prop.Value = rule
		comp.Props.Set(prop)
	}

	for _, excluded := range rec.ExcludedDates {
		prop := ical.NewProp(ical.PropExceptionDates)
		prop.SetDateTime(excluded.UTC())
		comp.Props.Add(prop)
	}

	return comp, nil
}

// ImportComponent reconstructs an EventRecord from a VEVENT component,
// re-attaching the DTSTART anchor to the RRULE so the stored descriptor
// round-trips through export and import.
func ImportComponent(comp *ical.Component) (*storage.EventRecord, error) {
	if comp.Name != ical.CompEvent {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: fmt.Sprintf("unsupported component %s", comp.Name)}
	}

	rec := &storage.EventRecord{Type: storage.TypeEvent}

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		rec.ID = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		rec.Title = prop.Value
	}
	if prop := comp.Props.Get("X-EVENT-TYPE"); prop != nil && storage.EventType(prop.Value).Valid() {
		rec.Type = storage.EventType(prop.Value)
	}

	if comp.Props.Get(ical.PropDateTimeStart) == nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "missing DTSTART"}
	}
	start, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "malformed DTSTART", Err: err}
	}
	rec.Start = start

	if end, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil && !end.IsZero() {
		rec.End = end
	} else {
		rec.End = start
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		rec.RecurrenceRule = recurrence.JoinAnchor(prop.Value, rec.Start)
	}

	for _, prop := range comp.Props.Values(ical.PropExceptionDates) {
		if t, err := prop.DateTime(time.UTC); err == nil {
			rec.ExcludedDates = append(rec.ExcludedDates, t)
		}
	}

	return rec, nil
}

package storage

import (
	"fmt"
	"time"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a storage not-found error.
func IsNotFound(err error) bool {
	serr, ok := err.(*Error)
	return ok && serr.Type == ErrNotFound
}

// EventType distinguishes the three kinds of schedulable record.
type EventType string

const (
	TypeAppointment EventType = "APPOINTMENT"
	TypeEvent       EventType = "EVENT"
	TypeOutOfOffice EventType = "OUT_OF_OFFICE"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case TypeAppointment, TypeEvent, TypeOutOfOffice:
		return true
	}
	return false
}

// ServiceLine is one billable service attached to an appointment.
type ServiceLine struct {
	ServiceID string
	Fee       float64
	Modifiers []string
}

// EventRecord is a stored appointment, generic calendar event, or
// out-of-office block. The recurrence descriptor is opaque to storage;
// it is written whole by the scheduler and never edited in place.
type EventRecord struct {
	ID    string
	Type  EventType
	Title string

	ClinicianID string
	ClientID    string
	LocationID  string

	Start  time.Time
	End    time.Time
	AllDay bool

	// RecurrenceRule is the serialized recurrence descriptor. Empty for
	// one-off records and detached occurrences.
	RecurrenceRule string

	// ParentID links a detached occurrence back to its series parent.
	ParentID string

	// ExcludedDates are series occurrence starts removed by
	// occurrence-scoped deletes.
	ExcludedDates []time.Time

	// Appointment fields.
	AppointmentTotal float64
	Services         []ServiceLine

	// Out-of-office fields.
	CancelAppointments bool
	NotifyClients      bool

	Created  time.Time
	Modified time.Time
}

// Recurring reports whether the record carries its own recurrence rule.
func (e *EventRecord) Recurring() bool {
	return e.RecurrenceRule != ""
}

// Excluded reports whether the given occurrence start has been removed
// from the series.
func (e *EventRecord) Excluded(at time.Time) bool {
	for _, d := range e.ExcludedDates {
		if d.Equal(at) {
			return true
		}
	}
	return false
}

// ListOptions filters ListEvents results.
type ListOptions struct {
	// Time range filter: records overlapping [Start, End].
	Start *time.Time
	End   *time.Time

	Types       []EventType
	ClinicianID string
}

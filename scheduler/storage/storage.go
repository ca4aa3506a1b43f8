package storage

import (
	"context"
)

// Storage is the interface that must be implemented by persistence
// backends. Please use the error types provided.
type Storage interface {
	// GetEvent retrieves a single record by ID.
	GetEvent(ctx context.Context, id string) (*EventRecord, error)
	// ListEvents retrieves records matching the options. A nil opts
	// lists everything.
	ListEvents(ctx context.Context, opts *ListOptions) ([]*EventRecord, error)
	// CreateEvent stores a new record. Implementations assign an ID
	// when the record has none.
	CreateEvent(ctx context.Context, rec *EventRecord) error
	// UpdateEvent replaces a stored record.
	UpdateEvent(ctx context.Context, rec *EventRecord) error
	// DeleteEvent removes a record by ID.
	DeleteEvent(ctx context.Context, id string) error
	// ListChildren retrieves the detached occurrences of a series.
	ListChildren(ctx context.Context, parentID string) ([]*EventRecord, error)
}

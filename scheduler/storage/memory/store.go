// memory based implementation for testing and single-process deployments
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/practicekit/libsched/scheduler/storage"
)

// Store implements storage.Storage using in-memory maps
type Store struct {
	mu     sync.RWMutex
	events map[string]*storage.EventRecord
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		events: make(map[string]*storage.EventRecord),
	}
}

func (s *Store) GetEvent(_ context.Context, id string) (*storage.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.events[id]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	clone := cloneRecord(rec)
	return &clone, nil
}

func (s *Store) ListEvents(_ context.Context, opts *storage.ListOptions) ([]*storage.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.EventRecord
	for _, rec := range s.events {
		if !matches(rec, opts) {
			continue
		}
		clone := cloneRecord(rec)
		out = append(out, &clone)
	}
	return out, nil
}

func (s *Store) CreateEvent(_ context.Context, rec *storage.EventRecord) error {
	if rec == nil || !rec.Type.Valid() {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "event type is required",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, exists := s.events[rec.ID]; exists {
		return &storage.Error{
			Type:    storage.ErrAlreadyExists,
			Message: "event already exists",
		}
	}

	now := time.Now()
	rec.Created = now
	rec.Modified = now

	clone := cloneRecord(rec)
	s.events[rec.ID] = &clone
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, rec *storage.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.events[rec.ID]
	if !ok {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	rec.Created = stored.Created
	rec.Modified = time.Now()

	clone := cloneRecord(rec)
	s.events[rec.ID] = &clone
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "event not found",
		}
	}

	delete(s.events, id)
	return nil
}

func (s *Store) ListChildren(_ context.Context, parentID string) ([]*storage.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.EventRecord
	for _, rec := range s.events {
		if rec.ParentID == parentID {
			clone := cloneRecord(rec)
			out = append(out, &clone)
		}
	}
	return out, nil
}

func matches(rec *storage.EventRecord, opts *storage.ListOptions) bool {
	if opts == nil {
		return true
	}
	// Time range overlap: start <= rangeEnd AND end >= rangeStart.
	if opts.End != nil && rec.Start.After(*opts.End) {
		return false
	}
	if opts.Start != nil && rec.End.Before(*opts.Start) {
		return false
	}
	if opts.ClinicianID != "" && rec.ClinicianID != opts.ClinicianID {
		return false
	}
	if len(opts.Types) > 0 {
		found := false
		for _, t := range opts.Types {
			if rec.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func cloneRecord(rec *storage.EventRecord) storage.EventRecord {
	clone := *rec
	clone.ExcludedDates = append([]time.Time(nil), rec.ExcludedDates...)
	clone.Services = make([]storage.ServiceLine, len(rec.Services))
	for i, svc := range rec.Services {
		clone.Services[i] = svc
		clone.Services[i].Modifiers = append([]string(nil), svc.Modifiers...)
	}
	return clone
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/practicekit/libsched/scheduler/recurrence"
	"github.com/practicekit/libsched/scheduler/storage"
)

// Dispatcher-level errors.
var (
	// ErrScopeRequired is returned when a mutation targets a recurring
	// record without a resolved scope. There is no silent default.
	ErrScopeRequired = errors.New("scheduler: mutation on a recurring series requires a resolved scope")
	// ErrNotRecurring is returned when a series operation targets a
	// one-off record.
	ErrNotRecurring = errors.New("scheduler: record does not repeat")
	// ErrNotInSeries is returned when an occurrence-scoped mutation
	// names a time the series never produces.
	ErrNotInSeries = errors.New("scheduler: occurrence is not part of the series")
)

// Config configures a Scheduler.
type Config struct {
	// Storage is the persistence backend. Required.
	Storage storage.Storage
	// Engine expands recurrence descriptors. Defaults to a fresh engine.
	Engine *recurrence.Engine
	// Logger receives mutation logs. Defaults to a discard logger.
	Logger *slog.Logger
}

// Scheduler is the mutation dispatcher behind the scheduling forms. It
// attaches constructed recurrence descriptors on create and applies
// scope-tagged edits and deletes to recurring series.
type Scheduler struct {
	store  storage.Storage
	engine *recurrence.Engine
	logger *slog.Logger
}

// New creates a Scheduler from the given configuration.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("scheduler: storage is required")
	}
	if cfg.Engine == nil {
		cfg.Engine = recurrence.NewEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{
		store:  cfg.Storage,
		engine: cfg.Engine,
		logger: cfg.Logger,
	}, nil
}

// Create stores a new record. When rcfg is non-nil the record becomes a
// series: the descriptor is constructed from the config and the record's
// own start time before anything is written.
func (s *Scheduler) Create(ctx context.Context, rec *storage.EventRecord, rcfg *recurrence.Config) (*storage.EventRecord, error) {
	if rec == nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "record is required"}
	}
	if !rec.End.After(rec.Start) {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: "end time must be after start time"}
	}

	if rcfg != nil {
		descriptor, err := recurrence.Construct(*rcfg, rec.Start)
		if err != nil {
			return nil, err
		}
		rec.RecurrenceRule = descriptor
	}

	if err := s.store.CreateEvent(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("created event",
		"id", rec.ID,
		"type", string(rec.Type),
		"recurring", rec.Recurring())
	return rec, nil
}

// Get fetches a stored record by ID.
func (s *Scheduler) Get(ctx context.Context, id string) (*storage.EventRecord, error) {
	return s.store.GetEvent(ctx, id)
}

// List fetches stored records matching the given filter. A nil filter
// lists everything.
func (s *Scheduler) List(ctx context.Context, opts *storage.ListOptions) ([]*storage.EventRecord, error) {
	return s.store.ListEvents(ctx, opts)
}

// Update applies an edit. One-off records update directly and ignore
// req. Recurring records require a resolved edit request: series scope
// rewrites the parent (adopting a freshly constructed descriptor when
// the recurrence configuration changed); occurrence scope detaches the
// targeted occurrence into a child record and vacates its original slot.
func (s *Scheduler) Update(ctx context.Context, updated *storage.EventRecord, req *recurrence.MutationRequest) (*storage.EventRecord, error) {
	stored, err := s.store.GetEvent(ctx, updated.ID)
	if err != nil {
		return nil, err
	}

	if !stored.Recurring() {
		updated.RecurrenceRule = stored.RecurrenceRule
		updated.ParentID = stored.ParentID
		if err := s.store.UpdateEvent(ctx, updated); err != nil {
			return nil, err
		}
		s.logger.Info("updated event", "id", updated.ID)
		return updated, nil
	}

	if req == nil {
		return nil, ErrScopeRequired
	}
	if req.Action != recurrence.ActionEdit {
		return nil, fmt.Errorf("scheduler: %s request passed to Update", string(req.Action))
	}

	switch req.Scope {
	case recurrence.ScopeSeries:
		updated.ParentID = stored.ParentID
		updated.ExcludedDates = stored.ExcludedDates
		updated.RecurrenceRule = stored.RecurrenceRule
		if req.Descriptor != "" {
			updated.RecurrenceRule = req.Descriptor
		}
		if err := s.store.UpdateEvent(ctx, updated); err != nil {
			return nil, err
		}
		s.logger.Info("updated series", "id", updated.ID, "rule_changed", req.Descriptor != "")
		return updated, nil

	case recurrence.ScopeOccurrence:
		return s.detachOccurrence(ctx, stored, updated, req.Occurrence)

	default:
		return nil, fmt.Errorf("scheduler: scope %q not valid for edit", string(req.Scope))
	}
}

// detachOccurrence materializes one occurrence of a series as a child
// record carrying the edited fields and no rule of its own, and excludes
// the original slot from the parent.
func (s *Scheduler) detachOccurrence(ctx context.Context, parent, edited *storage.EventRecord, occurrence time.Time) (*storage.EventRecord, error) {
	if err := s.requireOccurrence(parent, occurrence); err != nil {
		return nil, err
	}

	child := *edited
	child.ID = ""
	child.ParentID = parent.ID
	child.RecurrenceRule = ""
	child.ExcludedDates = nil
	if err := s.store.CreateEvent(ctx, &child); err != nil {
		return nil, err
	}

	parent.ExcludedDates = append(parent.ExcludedDates, occurrence)
	if err := s.store.UpdateEvent(ctx, parent); err != nil {
		return nil, err
	}

	s.logger.Info("detached occurrence",
		"series_id", parent.ID,
		"child_id", child.ID,
		"occurrence", occurrence)
	return &child, nil
}

// Delete removes a record. One-off records delete directly. Recurring
// records require a resolved delete request: occurrence scope excludes
// one slot, series scope ends the series before the targeted occurrence
// and removes detached children from it onward, and all scope erases the
// series with its entire history.
func (s *Scheduler) Delete(ctx context.Context, id string, req *recurrence.MutationRequest) error {
	stored, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}

	if !stored.Recurring() {
		if err := s.store.DeleteEvent(ctx, id); err != nil {
			return err
		}
		s.logger.Info("deleted event", "id", id)
		return nil
	}

	if req == nil {
		return ErrScopeRequired
	}
	if req.Action != recurrence.ActionDelete {
		return fmt.Errorf("scheduler: %s request passed to Delete", string(req.Action))
	}

	switch req.Scope {
	case recurrence.ScopeOccurrence:
		if err := s.requireOccurrence(stored, req.Occurrence); err != nil {
			return err
		}
		stored.ExcludedDates = append(stored.ExcludedDates, req.Occurrence)
		if err := s.store.UpdateEvent(ctx, stored); err != nil {
			return err
		}
		s.logger.Info("excluded occurrence", "id", id, "occurrence", req.Occurrence)
		return nil

	case recurrence.ScopeSeries:
		return s.deleteSeriesFrom(ctx, stored, req.Occurrence)

	case recurrence.ScopeAll:
		return s.deleteAll(ctx, stored)

	default:
		return fmt.Errorf("scheduler: scope %q not valid for delete", string(req.Scope))
	}
}

// deleteSeriesFrom ends the series before the given occurrence. When the
// cut point is the series start (or unset) nothing would remain, so the
// whole series goes.
func (s *Scheduler) deleteSeriesFrom(ctx context.Context, rec *storage.EventRecord, from time.Time) error {
	if from.IsZero() || !from.After(rec.Start) {
		return s.deleteAll(ctx, rec)
	}

	cfg, err := recurrence.Parse(rec.RecurrenceRule)
	if err != nil {
		return err
	}
	cfg.End = recurrence.Termination{
		Kind: recurrence.EndOnDate,
		Date: from.AddDate(0, 0, -1),
	}
	descriptor, err := recurrence.Construct(cfg, rec.Start)
	if err != nil {
		return err
	}
	rec.RecurrenceRule = descriptor
	if err := s.store.UpdateEvent(ctx, rec); err != nil {
		return err
	}

	children, err := s.store.ListChildren(ctx, rec.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.Start.Before(from) {
			continue
		}
		if err := s.store.DeleteEvent(ctx, child.ID); err != nil {
			return err
		}
	}

	s.logger.Info("truncated series", "id", rec.ID, "from", from)
	return nil
}

func (s *Scheduler) deleteAll(ctx context.Context, rec *storage.EventRecord) error {
	children, err := s.store.ListChildren(ctx, rec.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := s.store.DeleteEvent(ctx, child.ID); err != nil {
			return err
		}
	}
	if err := s.store.DeleteEvent(ctx, rec.ID); err != nil {
		return err
	}
	s.logger.Info("deleted series", "id", rec.ID, "children", len(children))
	return nil
}

// requireOccurrence checks that the given time is an occurrence the
// series actually produces and has not already been excluded.
func (s *Scheduler) requireOccurrence(rec *storage.EventRecord, at time.Time) error {
	if at.IsZero() {
		return ErrNotInSeries
	}
	if rec.Excluded(at) {
		return ErrNotInSeries
	}
	ok, err := s.engine.HasOccurrenceAt(rec.RecurrenceRule, rec.Start, at)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInSeries
	}
	return nil
}

// Summary renders the stored recurrence rule of a record as the two-line
// display text.
func (s *Scheduler) Summary(ctx context.Context, id string) (recurrence.Summary, error) {
	rec, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return recurrence.Summary{}, err
	}
	if !rec.Recurring() {
		return recurrence.Summary{}, ErrNotRecurring
	}
	return recurrence.Summarize(rec.RecurrenceRule)
}

// Occurrences lists the concrete occurrence times of a recurring record
// within the given range, with excluded slots removed.
func (s *Scheduler) Occurrences(ctx context.Context, id string, from, to time.Time) ([]time.Time, error) {
	rec, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Recurring() {
		return nil, ErrNotRecurring
	}

	expanded, err := s.engine.ExpandRange(rec.RecurrenceRule, rec.Start, from, to)
	if err != nil {
		return nil, err
	}

	occurrences := expanded[:0]
	for _, t := range expanded {
		if !rec.Excluded(t) {
			occurrences = append(occurrences, t)
		}
	}
	return occurrences, nil
}

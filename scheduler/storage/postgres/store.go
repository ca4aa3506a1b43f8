// Package postgres provides a pgx-backed storage.Storage implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practicekit/libsched/scheduler/metrics"
	"github.com/practicekit/libsched/scheduler/storage"
)

func observe(operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveStorageLatency(operation, start)
	}
}

// Store implements storage.Storage on a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and returns a Store. The caller owns the
// pool lifetime via Close.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, mainly for tests.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// HealthCheck verifies that the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_events (
	id                  TEXT PRIMARY KEY,
	event_type          TEXT NOT NULL,
	title               TEXT NOT NULL DEFAULT '',
	clinician_id        TEXT NOT NULL DEFAULT '',
	client_id           TEXT NOT NULL DEFAULT '',
	location_id         TEXT NOT NULL DEFAULT '',
	start_at            TIMESTAMPTZ NOT NULL,
	end_at              TIMESTAMPTZ NOT NULL,
	all_day             BOOLEAN NOT NULL DEFAULT FALSE,
	recurrence_rule     TEXT NOT NULL DEFAULT '',
	parent_id           TEXT NOT NULL DEFAULT '',
	excluded_dates      TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
	appointment_total   DOUBLE PRECISION NOT NULL DEFAULT 0,
	services            JSONB NOT NULL DEFAULT '[]',
	cancel_appointments BOOLEAN NOT NULL DEFAULT FALSE,
	notify_clients      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL,
	modified_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scheduled_events_parent_idx ON scheduled_events (parent_id) WHERE parent_id <> '';
CREATE INDEX IF NOT EXISTS scheduled_events_range_idx ON scheduled_events (start_at, end_at);
`

// EnsureSchema creates the events table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensuring schema: %w", err)
	}
	return nil
}

const recordColumns = `id, event_type, title, clinician_id, client_id, location_id,
	start_at, end_at, all_day, recurrence_rule, parent_id, excluded_dates,
	appointment_total, services, cancel_appointments, notify_clients, created_at, modified_at`

func (s *Store) GetEvent(ctx context.Context, id string) (*storage.EventRecord, error) {
	defer observe("get_event")()
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM scheduled_events WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &storage.Error{Type: storage.ErrNotFound, Message: "event not found"}
	}
	return rec, err
}

func (s *Store) ListEvents(ctx context.Context, opts *storage.ListOptions) ([]*storage.EventRecord, error) {
	defer observe("list_events")()
	query := `SELECT ` + recordColumns + ` FROM scheduled_events WHERE TRUE`
	var args []any

	if opts != nil {
		if opts.End != nil {
			args = append(args, *opts.End)
			query += fmt.Sprintf(" AND start_at <= $%d", len(args))
		}
		if opts.Start != nil {
			args = append(args, *opts.Start)
			query += fmt.Sprintf(" AND end_at >= $%d", len(args))
		}
		if opts.ClinicianID != "" {
			args = append(args, opts.ClinicianID)
			query += fmt.Sprintf(" AND clinician_id = $%d", len(args))
		}
		if len(opts.Types) > 0 {
			types := make([]string, len(opts.Types))
			for i, t := range opts.Types {
				types[i] = string(t)
			}
			args = append(args, types)
			query += fmt.Sprintf(" AND event_type = ANY($%d)", len(args))
		}
	}
	query += " ORDER BY start_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing events: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (s *Store) CreateEvent(ctx context.Context, rec *storage.EventRecord) error {
	defer observe("create_event")()
	if rec == nil || !rec.Type.Valid() {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "event type is required"}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	rec.Created = now
	rec.Modified = now

	services, err := json.Marshal(serviceLines(rec.Services))
	if err != nil {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "encoding services", Err: err}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scheduled_events (`+recordColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Type, rec.Title, rec.ClinicianID, rec.ClientID, rec.LocationID,
		rec.Start, rec.End, rec.AllDay, rec.RecurrenceRule, rec.ParentID, rec.ExcludedDates,
		rec.AppointmentTotal, services, rec.CancelAppointments, rec.NotifyClients,
		rec.Created, rec.Modified)
	if err != nil {
		return fmt.Errorf("postgres: creating event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &storage.Error{Type: storage.ErrAlreadyExists, Message: "event already exists"}
	}
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, rec *storage.EventRecord) error {
	defer observe("update_event")()
	services, err := json.Marshal(serviceLines(rec.Services))
	if err != nil {
		return &storage.Error{Type: storage.ErrInvalidInput, Message: "encoding services", Err: err}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_events SET
			event_type = $2, title = $3, clinician_id = $4, client_id = $5, location_id = $6,
			start_at = $7, end_at = $8, all_day = $9, recurrence_rule = $10, parent_id = $11,
			excluded_dates = $12, appointment_total = $13, services = $14,
			cancel_appointments = $15, notify_clients = $16, modified_at = now()
		 WHERE id = $1`,
		rec.ID, rec.Type, rec.Title, rec.ClinicianID, rec.ClientID, rec.LocationID,
		rec.Start, rec.End, rec.AllDay, rec.RecurrenceRule, rec.ParentID,
		rec.ExcludedDates, rec.AppointmentTotal, services,
		rec.CancelAppointments, rec.NotifyClients)
	if err != nil {
		return fmt.Errorf("postgres: updating event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &storage.Error{Type: storage.ErrNotFound, Message: "event not found"}
	}
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	defer observe("delete_event")()
	tag, err := s.pool.Exec(ctx, `DELETE FROM scheduled_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &storage.Error{Type: storage.ErrNotFound, Message: "event not found"}
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*storage.EventRecord, error) {
	defer observe("list_children")()
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM scheduled_events WHERE parent_id = $1 ORDER BY start_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing children: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// serviceLine mirrors storage.ServiceLine with JSON tags for the jsonb
// column.
type serviceLine struct {
	ServiceID string   `json:"service_id"`
	Fee       float64  `json:"fee"`
	Modifiers []string `json:"modifiers,omitempty"`
}

func serviceLines(in []storage.ServiceLine) []serviceLine {
	out := make([]serviceLine, len(in))
	for i, svc := range in {
		out[i] = serviceLine(svc)
	}
	return out
}

func scanRecord(row pgx.Row) (*storage.EventRecord, error) {
	var rec storage.EventRecord
	var services []byte

	err := row.Scan(
		&rec.ID, &rec.Type, &rec.Title, &rec.ClinicianID, &rec.ClientID, &rec.LocationID,
		&rec.Start, &rec.End, &rec.AllDay, &rec.RecurrenceRule, &rec.ParentID, &rec.ExcludedDates,
		&rec.AppointmentTotal, &services, &rec.CancelAppointments, &rec.NotifyClients,
		&rec.Created, &rec.Modified)
	if err != nil {
		return nil, err
	}

	var lines []serviceLine
	if err := json.Unmarshal(services, &lines); err != nil {
		return nil, fmt.Errorf("postgres: decoding services for %s: %w", rec.ID, err)
	}
	for _, line := range lines {
		rec.Services = append(rec.Services, storage.ServiceLine(line))
	}

	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*storage.EventRecord, error) {
	var out []*storage.EventRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning event: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: reading events: %w", err)
	}
	return out, nil
}

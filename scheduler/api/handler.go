package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/go-chi/chi/v5"

	"github.com/practicekit/libsched/scheduler"
	"github.com/practicekit/libsched/scheduler/metrics"
	"github.com/practicekit/libsched/scheduler/recurrence"
	"github.com/practicekit/libsched/scheduler/storage"
)

// Handler serves the scheduling endpoints.
type Handler struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger discards logs.
func NewHandler(sched *scheduler.Scheduler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{sched: sched, logger: logger}
}

type recurrencePayload struct {
	Interval int      `json:"interval"`
	Period   string   `json:"period"`
	Weekdays []string `json:"weekdays,omitempty"`
	// MonthlyPattern selects how a monthly series repeats:
	// "DayOfMonth", "NthWeekdayOfMonth" or "LastWeekdayOfMonth". The
	// concrete day or weekday always derives from the start time.
	MonthlyPattern string `json:"monthly_pattern,omitempty"`
	EndAfter       int    `json:"end_after,omitempty"`
	EndOn          string `json:"end_on,omitempty"`
}

type eventPayload struct {
	Type        string             `json:"type"`
	Title       string             `json:"title,omitempty"`
	ClinicianID string             `json:"clinician_id,omitempty"`
	ClientID    string             `json:"client_id,omitempty"`
	LocationID  string             `json:"location_id,omitempty"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	AllDay      bool               `json:"all_day,omitempty"`
	Recurrence  *recurrencePayload `json:"recurrence,omitempty"`
}

type eventResponse struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title,omitempty"`
	ClinicianID    string    `json:"clinician_id,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	LocationID     string    `json:"location_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	AllDay         bool      `json:"all_day,omitempty"`
	RecurrenceRule string    `json:"recurrence_rule,omitempty"`
	ParentID       string    `json:"parent_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// CreateEvent handles POST /events.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}

	rec, rcfg, err := payload.toRecord()
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	created, err := h.sched.Create(r.Context(), rec, rcfg)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	metrics.CountMutation("create", "")
	h.writeJSON(w, http.StatusCreated, toResponse(created))
}

// ListEvents handles GET /events with optional from, to, type and
// clinician query parameters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := &storage.ListOptions{ClinicianID: r.URL.Query().Get("clinician")}

	from, err := queryTime(r, "from")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !from.IsZero() {
		opts.Start = &from
	}
	to, err := queryTime(r, "to")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if !to.IsZero() {
		opts.End = &to
	}
	if value := r.URL.Query().Get("type"); value != "" {
		eventType := storage.EventType(value)
		if !eventType.Valid() {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown event type %q", value))
			return
		}
		opts.Types = []storage.EventType{eventType}
	}

	records, err := h.sched.List(r.Context(), opts)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	responses := make([]eventResponse, 0, len(records))
	for _, rec := range records {
		responses = append(responses, toResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": responses})
}

// GetEvent handles GET /events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sched.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeJSONError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(rec))
}

// UpdateEvent handles PATCH /events/{id}. Edits on recurring records
// require scope (and, for occurrence scope, occurrence) query
// parameters.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var payload eventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
		return
	}

	rec, rcfg, err := payload.toRecord()
	if err != nil {
		h.writeJSONError(w, err)
		return
	}
	rec.ID = chi.URLParam(r, "id")

	req, err := mutationRequest(r, recurrence.ActionEdit, rcfg, rec.Start)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	updated, err := h.sched.Update(r.Context(), rec, req)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	metrics.CountMutation("edit", scopeLabel(req))
	h.writeJSON(w, http.StatusOK, toResponse(updated))
}

// DeleteEvent handles DELETE /events/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	req, err := mutationRequest(r, recurrence.ActionDelete, nil, time.Time{})
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	if err := h.sched.Delete(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		h.writeJSONError(w, err)
		return
	}

	metrics.CountMutation("delete", scopeLabel(req))
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary handles GET /events/{id}/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sched.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeJSONError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"cadence":     summary.Cadence,
		"termination": summary.Termination,
	})
}

// GetOccurrences handles GET /events/{id}/occurrences?from=&to=.
func (h *Handler) GetOccurrences(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if from.IsZero() || to.IsZero() {
		h.writeError(w, http.StatusBadRequest, errors.New("from and to query parameters are required"))
		return
	}

	occurrences, err := h.sched.Occurrences(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}
	if occurrences == nil {
		occurrences = []time.Time{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"occurrences": occurrences})
}

// ExportEvent handles GET /events/{id}/ics.
func (h *Handler) ExportEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sched.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	cal, err := scheduler.ExportICalendar(rec)
	if err != nil {
		h.writeJSONError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar")
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		h.logger.Error("encoding calendar", "id", rec.ID, "error", err)
	}
}

// MonthlyOptions handles GET /recurrence/monthly-options?start=. It
// returns the monthly pattern choices a form should offer for the given
// start date.
func (h *Handler) MonthlyOptions(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if start.IsZero() {
		h.writeError(w, http.StatusBadRequest, errors.New("start query parameter is required"))
		return
	}

	type option struct {
		Kind  string `json:"kind"`
		Label string `json:"label"`
	}
	var options []option
	for _, opt := range recurrence.DeriveMonthlyOptions(start) {
		options = append(options, option{Kind: string(opt.Pattern.Kind), Label: opt.Label})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

func (p *eventPayload) toRecord() (*storage.EventRecord, *recurrence.Config, error) {
	eventType := storage.EventType(p.Type)
	if !eventType.Valid() {
		return nil, nil, &storage.Error{Type: storage.ErrInvalidInput, Message: fmt.Sprintf("unknown event type %q", p.Type)}
	}

	rec := &storage.EventRecord{
		Type:        eventType,
		Title:       p.Title,
		ClinicianID: p.ClinicianID,
		ClientID:    p.ClientID,
		LocationID:  p.LocationID,
		Start:       p.Start,
		End:         p.End,
		AllDay:      p.AllDay,
	}

	if p.Recurrence == nil {
		return rec, nil, nil
	}
	rcfg, err := p.Recurrence.toConfig()
	if err != nil {
		return nil, nil, err
	}
	return rec, rcfg, nil
}

func (p *recurrencePayload) toConfig() (*recurrence.Config, error) {
	cfg := &recurrence.Config{
		Interval: p.Interval,
		Period:   recurrence.Period(strings.ToUpper(p.Period)),
	}
	for _, code := range p.Weekdays {
		cfg.WeeklyDays = append(cfg.WeeklyDays, recurrence.Weekday(strings.ToUpper(code)))
	}
	if p.MonthlyPattern != "" {
		cfg.Monthly = &recurrence.MonthlyPattern{Kind: recurrence.MonthlyPatternKind(p.MonthlyPattern)}
	}

	switch {
	case p.EndAfter > 0 && p.EndOn != "":
		return nil, &recurrence.ValidationError{Field: "termination", Reason: "end_after and end_on are mutually exclusive"}
	case p.EndAfter > 0:
		cfg.End = recurrence.Termination{Kind: recurrence.EndAfterCount, Count: p.EndAfter}
	case p.EndOn != "":
		date, err := time.ParseInLocation("2006-01-02", p.EndOn, time.UTC)
		if err != nil {
			return nil, &recurrence.ValidationError{Field: "termination", Reason: fmt.Sprintf("malformed end_on date %q", p.EndOn)}
		}
		cfg.End = recurrence.Termination{Kind: recurrence.EndOnDate, Date: date}
	}
	return cfg, nil
}

// mutationRequest resolves the scope and occurrence query parameters
// into a MutationRequest. Absent scope yields nil, which the dispatcher
// accepts for one-off records only.
func mutationRequest(r *http.Request, action recurrence.Action, edited *recurrence.Config, editedStart time.Time) (*recurrence.MutationRequest, error) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		return nil, nil
	}

	occurrence, err := queryTime(r, "occurrence")
	if err != nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: err.Error()}
	}

	resolver, err := recurrence.NewScopeResolver(action)
	if err != nil {
		return nil, err
	}
	resolver.RequestChoice()
	if err := resolver.Resolve(recurrence.Scope(scope)); err != nil {
		return nil, &storage.Error{Type: storage.ErrInvalidInput, Message: err.Error(), Err: err}
	}
	return resolver.BuildRequest(occurrence, edited, editedStart)
}

func scopeLabel(req *recurrence.MutationRequest) string {
	if req == nil {
		return "none"
	}
	return string(req.Scope)
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %s parameter %q", key, value)
	}
	return t.UTC(), nil
}

func toResponse(rec *storage.EventRecord) eventResponse {
	return eventResponse{
		ID:             rec.ID,
		Type:           string(rec.Type),
		Title:          rec.Title,
		ClinicianID:    rec.ClinicianID,
		ClientID:       rec.ClientID,
		LocationID:     rec.LocationID,
		Start:          rec.Start,
		End:            rec.End,
		AllDay:         rec.AllDay,
		RecurrenceRule: rec.RecurrenceRule,
		ParentID:       rec.ParentID,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSONError maps domain errors onto HTTP statuses. Validation and
// parse failures carry their field or component so forms can attach the
// message to the right input.
func (h *Handler) writeJSONError(w http.ResponseWriter, err error) {
	var verr *recurrence.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	var perr *recurrence.ParseError
	if errors.As(err, &perr) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: perr.Error(), Field: perr.Component})
		return
	}

	switch {
	case storage.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, scheduler.ErrScopeRequired),
		errors.Is(err, scheduler.ErrNotRecurring):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, scheduler.ErrNotInSeries):
		h.writeError(w, http.StatusConflict, err)
	default:
		var serr *storage.Error
		if errors.As(err, &serr) && serr.Type == storage.ErrInvalidInput {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Session errors.
var (
	// ErrSelectionSuperseded is returned when a newer selection
	// invalidated the lookup before it finished.
	ErrSelectionSuperseded = errors.New("directory: selection superseded by a newer one")
	// ErrNoUpstreamSelection is returned when a selection is attempted
	// before the one it depends on.
	ErrNoUpstreamSelection = errors.New("directory: upstream selection required first")
	// ErrUnknownID is returned when a selected ID is not among the
	// candidates the upstream selection produced.
	ErrUnknownID = errors.New("directory: id not among current candidates")
)

// Session is the per-dialog selection state of one scheduling form. It
// is constructed when the dialog opens and discarded when it closes.
// Each selection resets everything downstream of it and cancels any
// lookup still in flight for the old selection.
type Session struct {
	dir    Directory
	logger *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc

	client     *Client
	clinician  *Clinician
	location   *Location
	clients    []Client
	clinicians []Clinician
	locations  []Location
	available  []Service
	selected   []Service
}

// NewSession opens a session over the given directory. A nil logger
// discards logs.
func NewSession(dir Directory, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{dir: dir, logger: logger}
}

// Start loads the client list. It must be called before any selection.
func (s *Session) Start(ctx context.Context) ([]Client, error) {
	ctx, gen := s.begin(ctx)
	clients, err := s.dir.Clients(ctx)
	if err != nil {
		return nil, s.lookupErr(ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrSelectionSuperseded
	}
	s.clients = clients
	return clients, nil
}

// SelectClient picks a client and loads the clinicians who can see
// them. Any clinician, location or service selection is cleared.
func (s *Session) SelectClient(ctx context.Context, id string) ([]Clinician, error) {
	s.mu.Lock()
	client := findClient(s.clients, id)
	s.mu.Unlock()
	if client == nil {
		return nil, ErrUnknownID
	}

	ctx, gen := s.begin(ctx)
	clinicians, err := s.dir.Clinicians(ctx, id)
	if err != nil {
		return nil, s.lookupErr(ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, ErrSelectionSuperseded
	}
	s.client = client
	s.clinician = nil
	s.location = nil
	s.clinicians = clinicians
	s.locations = nil
	s.available = nil
	s.selected = nil
	s.logger.Debug("selected client", "id", id, "clinicians", len(clinicians))
	return clinicians, nil
}

// SelectClinician picks a clinician and loads their locations and
// billable services. Location and service selections are cleared.
func (s *Session) SelectClinician(ctx context.Context, id string) ([]Location, []Service, error) {
	s.mu.Lock()
	if s.client == nil {
		s.mu.Unlock()
		return nil, nil, ErrNoUpstreamSelection
	}
	clinician := findClinician(s.clinicians, id)
	s.mu.Unlock()
	if clinician == nil {
		return nil, nil, ErrUnknownID
	}

	ctx, gen := s.begin(ctx)
	locations, err := s.dir.Locations(ctx, id)
	if err != nil {
		return nil, nil, s.lookupErr(ctx, err)
	}
	services, err := s.dir.Services(ctx, id)
	if err != nil {
		return nil, nil, s.lookupErr(ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil, nil, ErrSelectionSuperseded
	}
	s.clinician = clinician
	s.location = nil
	s.locations = locations
	s.available = services
	s.selected = nil
	s.logger.Debug("selected clinician", "id", id,
		"locations", len(locations), "services", len(services))
	return locations, services, nil
}

// SelectLocation picks one of the current clinician's locations.
func (s *Session) SelectLocation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clinician == nil {
		return ErrNoUpstreamSelection
	}
	for i := range s.locations {
		if s.locations[i].ID == id {
			s.location = &s.locations[i]
			return nil
		}
	}
	return ErrUnknownID
}

// SetServices replaces the selected services with the named ones. Every
// ID must be among the current clinician's services.
func (s *Session) SetServices(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clinician == nil {
		return ErrNoUpstreamSelection
	}

	selected := make([]Service, 0, len(ids))
	for _, id := range ids {
		var found *Service
		for i := range s.available {
			if s.available[i].ID == id {
				found = &s.available[i]
				break
			}
		}
		if found == nil {
			return ErrUnknownID
		}
		selected = append(selected, *found)
	}
	s.selected = selected
	return nil
}

// FeeTotal sums the fees of the selected services, in cents.
func (s *Session) FeeTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, svc := range s.selected {
		total += svc.Fee
	}
	return total
}

// Selection is a snapshot of the session's current choices, ready to be
// copied into an event record.
type Selection struct {
	Client    *Client
	Clinician *Clinician
	Location  *Location
	Services  []Service
	FeeTotal  int64
}

// Snapshot returns the current selections.
func (s *Session) Snapshot() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := Selection{
		Client:    s.client,
		Clinician: s.clinician,
		Location:  s.location,
		Services:  append([]Service(nil), s.selected...),
	}
	for _, svc := range sel.Services {
		sel.FeeTotal += svc.Fee
	}
	return sel
}

// Close cancels any lookup still in flight. The session must not be
// used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// begin starts a new selection generation, cancelling whatever lookup
// the previous generation still has running.
func (s *Session) begin(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.generation++
	return ctx, s.generation
}

// lookupErr maps a cancelled lookup onto ErrSelectionSuperseded so the
// caller can tell an abandoned fetch from a directory failure.
func (s *Session) lookupErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ErrSelectionSuperseded
	}
	return err
}

func findClient(clients []Client, id string) *Client {
	for i := range clients {
		if clients[i].ID == id {
			return &clients[i]
		}
	}
	return nil
}

func findClinician(clinicians []Clinician, id string) *Clinician {
	for i := range clinicians {
		if clinicians[i].ID == id {
			return &clinicians[i]
		}
	}
	return nil
}

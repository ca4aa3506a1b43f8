package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Action is the kind of mutation being applied to a series member.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Scope selects which occurrences of a series a mutation affects.
type Scope string

const (
	ScopeOccurrence Scope = "occurrence"
	ScopeSeries     Scope = "series"
	ScopeAll        Scope = "all"
)

// Resolver lifecycle errors.
var (
	ErrScopeNotResolved = errors.New("recurrence: no scope chosen for mutation on a recurring series")
	ErrResolverConsumed = errors.New("recurrence: scope resolver already used; create a new one per action")
)

type resolverState int

const (
	stateIdle resolverState = iota
	stateAwaitingChoice
	stateResolved
)

// ScopeResolver is the per-mutation state machine that gates edits and
// deletes on recurring records behind an explicit scope choice. There is
// no silent default: a mutation request cannot be built until Resolve
// has been called with a legal scope. One resolver serves exactly one
// action; the dispatcher discards it once the request is built.
type ScopeResolver struct {
	action   Action
	state    resolverState
	scope    Scope
	consumed bool
}

// NewScopeResolver creates an idle resolver for the given action kind.
func NewScopeResolver(action Action) (*ScopeResolver, error) {
	switch action {
	case ActionEdit, ActionDelete:
		return &ScopeResolver{action: action}, nil
	}
	return nil, fmt.Errorf("recurrence: unknown action %q", string(action))
}

// RequestChoice moves the resolver into the awaiting state and returns
// the legal scope options for its action: edit offers occurrence and
// series; delete additionally offers the entire history.
func (r *ScopeResolver) RequestChoice() []Scope {
	if r.state == stateIdle {
		r.state = stateAwaitingChoice
	}
	return r.Options()
}

// Options returns the scopes legal for this resolver's action.
func (r *ScopeResolver) Options() []Scope {
	if r.action == ActionDelete {
		return []Scope{ScopeOccurrence, ScopeSeries, ScopeAll}
	}
	return []Scope{ScopeOccurrence, ScopeSeries}
}

// Resolve records the user's choice. It is only valid while awaiting a
// choice, and only for a scope offered by Options.
func (r *ScopeResolver) Resolve(scope Scope) error {
	if r.state != stateAwaitingChoice {
		return fmt.Errorf("recurrence: resolve called in state %d", r.state)
	}
	for _, legal := range r.Options() {
		if scope == legal {
			r.state = stateResolved
			r.scope = scope
			return nil
		}
	}
	return fmt.Errorf("recurrence: scope %q not offered for %s", string(scope), string(r.action))
}

// Resolved returns the chosen scope, if one has been chosen.
func (r *ScopeResolver) Resolved() (Scope, bool) {
	if r.state != stateResolved {
		return "", false
	}
	return r.scope, true
}

// MutationRequest is the scope-tagged request handed to the mutation
// dispatcher. Descriptor is non-empty only for a series edit whose
// recurrence configuration changed.
type MutationRequest struct {
	Action     Action
	Scope      Scope
	Occurrence time.Time
	Descriptor string
}

// BuildRequest produces the outgoing mutation request. occurrence is the
// start time of the targeted occurrence. For a series edit whose
// recurrence configuration was changed, edited and editedStart trigger a
// fresh Construct so the stored rule reflects the edit; an occurrence
// edit never re-constructs, since a single occurrence carries no rule of
// its own.
func (r *ScopeResolver) BuildRequest(occurrence time.Time, edited *Config, editedStart time.Time) (*MutationRequest, error) {
	if r.state != stateResolved {
		return nil, ErrScopeNotResolved
	}
	if r.consumed {
		return nil, ErrResolverConsumed
	}

	req := &MutationRequest{
		Action:     r.action,
		Scope:      r.scope,
		Occurrence: occurrence,
	}

	if r.action == ActionEdit && r.scope == ScopeSeries && edited != nil {
		descriptor, err := Construct(*edited, editedStart)
		if err != nil {
			return nil, err
		}
		req.Descriptor = descriptor
	}

	r.consumed = true
	return req, nil
}

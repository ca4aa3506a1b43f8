// Package directory models the cascading lookups behind the scheduling
// form: selecting a client narrows the clinicians, a clinician narrows
// the locations and billable services, and the fee total follows the
// selected services.
package directory

import "context"

// Client is someone appointments are booked for.
type Client struct {
	ID   string
	Name string
}

// Clinician is a provider a client can be booked with.
type Clinician struct {
	ID   string
	Name string
}

// Location is a place a clinician sees clients.
type Location struct {
	ID   string
	Name string
}

// Service is a billable service a clinician offers. Fee is in cents.
type Service struct {
	ID   string
	Code string
	Name string
	Fee  int64
}

// Directory answers the lookups the scheduling form cascades through.
// Implementations are expected to honor context cancellation; the
// session cancels a lookup as soon as the selection it depends on
// changes.
type Directory interface {
	Clients(ctx context.Context) ([]Client, error)
	Clinicians(ctx context.Context, clientID string) ([]Clinician, error)
	Locations(ctx context.Context, clinicianID string) ([]Location, error)
	Services(ctx context.Context, clinicianID string) ([]Service, error)
}

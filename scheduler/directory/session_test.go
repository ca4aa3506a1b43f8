package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory serves fixed data and optionally blocks a lookup until
// its context is cancelled, to exercise supersession.
type fakeDirectory struct {
	mu          sync.Mutex
	delayOnce   chan struct{}
	cliniciansN int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{}
}

func (d *fakeDirectory) Clients(ctx context.Context) ([]Client, error) {
	return []Client{
		{ID: "cl-1", Name: "Jordan Reyes"},
		{ID: "cl-2", Name: "Sam Okafor"},
	}, nil
}

func (d *fakeDirectory) Clinicians(ctx context.Context, clientID string) ([]Clinician, error) {
	d.mu.Lock()
	blocked := d.delayOnce
	d.delayOnce = nil
	d.cliniciansN++
	d.mu.Unlock()

	if blocked != nil {
		select {
		case <-blocked:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if clientID == "cl-2" {
		return []Clinician{{ID: "dr-2", Name: "Dr. Patel"}}, nil
	}
	return []Clinician{
		{ID: "dr-1", Name: "Dr. Lindqvist"},
		{ID: "dr-2", Name: "Dr. Patel"},
	}, nil
}

func (d *fakeDirectory) Locations(ctx context.Context, clinicianID string) ([]Location, error) {
	return []Location{{ID: "loc-1", Name: "Main Street Office"}}, nil
}

func (d *fakeDirectory) Services(ctx context.Context, clinicianID string) ([]Service, error) {
	return []Service{
		{ID: "svc-1", Code: "90834", Name: "Psychotherapy, 45 min", Fee: 15000},
		{ID: "svc-2", Code: "90837", Name: "Psychotherapy, 60 min", Fee: 20000},
	}, nil
}

func TestSessionCascade(t *testing.T) {
	ctx := context.Background()
	session := NewSession(newFakeDirectory(), nil)
	defer session.Close()

	clients, err := session.Start(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)

	clinicians, err := session.SelectClient(ctx, "cl-1")
	require.NoError(t, err)
	require.Len(t, clinicians, 2)

	locations, services, err := session.SelectClinician(ctx, "dr-1")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	require.Len(t, services, 2)

	require.NoError(t, session.SelectLocation("loc-1"))
	require.NoError(t, session.SetServices("svc-1", "svc-2"))
	assert.Equal(t, int64(35000), session.FeeTotal())

	snap := session.Snapshot()
	require.NotNil(t, snap.Client)
	assert.Equal(t, "Jordan Reyes", snap.Client.Name)
	assert.Equal(t, "Main Street Office", snap.Location.Name)
	assert.Equal(t, int64(35000), snap.FeeTotal)
}

func TestSessionOrderEnforced(t *testing.T) {
	ctx := context.Background()
	session := NewSession(newFakeDirectory(), nil)
	defer session.Close()

	_, _, err := session.SelectClinician(ctx, "dr-1")
	assert.ErrorIs(t, err, ErrNoUpstreamSelection)
	assert.ErrorIs(t, session.SelectLocation("loc-1"), ErrNoUpstreamSelection)
	assert.ErrorIs(t, session.SetServices("svc-1"), ErrNoUpstreamSelection)

	_, err = session.Start(ctx)
	require.NoError(t, err)
	_, err = session.SelectClient(ctx, "no-such-client")
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestSessionDownstreamResetOnReselect(t *testing.T) {
	ctx := context.Background()
	session := NewSession(newFakeDirectory(), nil)
	defer session.Close()

	_, err := session.Start(ctx)
	require.NoError(t, err)
	_, err = session.SelectClient(ctx, "cl-1")
	require.NoError(t, err)
	_, _, err = session.SelectClinician(ctx, "dr-1")
	require.NoError(t, err)
	require.NoError(t, session.SetServices("svc-2"))
	require.Equal(t, int64(20000), session.FeeTotal())

	// Re-selecting the client clears clinician, location and services.
	_, err = session.SelectClient(ctx, "cl-2")
	require.NoError(t, err)

	snap := session.Snapshot()
	assert.Nil(t, snap.Clinician)
	assert.Nil(t, snap.Location)
	assert.Empty(t, snap.Services)
	assert.Zero(t, session.FeeTotal())

	assert.ErrorIs(t, session.SelectLocation("loc-1"), ErrNoUpstreamSelection)
}

func TestSessionSupersedesInFlightLookup(t *testing.T) {
	ctx := context.Background()
	dir := newFakeDirectory()
	session := NewSession(dir, nil)
	defer session.Close()

	_, err := session.Start(ctx)
	require.NoError(t, err)

	// Block the first clinician lookup until its context is cancelled.
	release := make(chan struct{})
	dir.mu.Lock()
	dir.delayOnce = release
	dir.mu.Unlock()

	slowErr := make(chan error, 1)
	go func() {
		_, err := session.SelectClient(ctx, "cl-1")
		slowErr <- err
	}()

	// Wait until the slow lookup is actually running.
	require.Eventually(t, func() bool {
		dir.mu.Lock()
		defer dir.mu.Unlock()
		return dir.cliniciansN == 1
	}, time.Second, time.Millisecond)

	// A newer selection cancels the old lookup.
	clinicians, err := session.SelectClient(ctx, "cl-2")
	require.NoError(t, err)
	require.Len(t, clinicians, 1)

	assert.ErrorIs(t, <-slowErr, ErrSelectionSuperseded)

	snap := session.Snapshot()
	require.NotNil(t, snap.Client)
	assert.Equal(t, "cl-2", snap.Client.ID)
}

package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/ports"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
	"github.com/samirrijal/ghostnotes/internal/pkg/geospatial"
)

type mockPublisher struct {
	locations []*ports.LocationEvent
	err       error
}

func (p *mockPublisher) PublishLocation(ctx context.Context, ev *ports.LocationEvent) error {
	p.locations = append(p.locations, ev)
	return p.err
}

func (p *mockPublisher) PublishNotification(ctx context.Context, userID string, intent domain.NotificationIntent) error {
	return p.err
}

func TestLocationService_Evaluate(t *testing.T) {
	repo := &mockNoteRepo{}
	for _, n := range nearbyNotes() {
		n := n
		require.NoError(t, repo.Upsert(context.Background(), &n))
	}
	disp := &mockDispatcher{}
	notifier := usecases.NewProximityNotifier(newMockStore(), disp, usecases.WithNotifierClock(clockwork.NewFakeClock()))
	svc := usecases.NewLocationService(repo, notifier, nil, usecases.ProximityConfig{RadiusM: 100, Cooldown: time.Minute})

	intents, err := svc.Evaluate(context.Background(), "u1", fixAt(bilbao))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "a", intents[0].NoteID)

	notifier.Wait()
	assert.Equal(t, 1, disp.count())
}

func TestLocationService_Evaluate_UnknownLocation(t *testing.T) {
	repo := &mockNoteRepo{
		findNearbyFn: func(ctx context.Context, center domain.Coordinate, radius float64, limit int) ([]domain.NearbyNote, error) {
			t.Error("repo must not be queried without a location")
			return nil, nil
		},
	}
	svc := usecases.NewLocationService(repo, usecases.NewProximityNotifier(newMockStore(), &mockDispatcher{}), nil, usecases.ProximityConfig{})

	intents, err := svc.Evaluate(context.Background(), "u1", domain.LocationFix{Available: false})
	assert.NoError(t, err)
	assert.Empty(t, intents)

	intents, err = svc.Evaluate(context.Background(), "u1", fixAt(domain.Coordinate{Lat: math.Inf(1)}))
	assert.NoError(t, err)
	assert.Empty(t, intents)
}

func TestLocationService_Evaluate_RepoError(t *testing.T) {
	repo := &mockNoteRepo{
		findNearbyFn: func(ctx context.Context, center domain.Coordinate, radius float64, limit int) ([]domain.NearbyNote, error) {
			return nil, errors.New("db down")
		},
	}
	svc := usecases.NewLocationService(repo, usecases.NewProximityNotifier(newMockStore(), &mockDispatcher{}), nil, usecases.ProximityConfig{})

	_, err := svc.Evaluate(context.Background(), "u1", fixAt(bilbao))
	assert.Error(t, err)
}

func TestLocationService_Report(t *testing.T) {
	pub := &mockPublisher{}
	svc := usecases.NewLocationService(&mockNoteRepo{}, nil, pub, usecases.ProximityConfig{})

	require.NoError(t, svc.Report(context.Background(), "u1", fixAt(bilbao)))
	require.Len(t, pub.locations, 1)
	assert.Equal(t, "u1", pub.locations[0].UserID)
	assert.False(t, pub.locations[0].Fix.At.IsZero())

	noPub := usecases.NewLocationService(&mockNoteRepo{}, nil, nil, usecases.ProximityConfig{})
	assert.Error(t, noPub.Report(context.Background(), "u1", fixAt(bilbao)))
}

func TestFrameService_Project(t *testing.T) {
	svc := usecases.NewFrameService()
	targets := []usecases.FrameTarget{
		{ID: "north", Location: domain.Coordinate{Lat: bilbao.Lat + 0.0001, Lng: bilbao.Lng}},
		{ID: "broken", Location: domain.Coordinate{Lat: math.NaN()}},
		{ID: "east", Location: domain.Coordinate{Lat: bilbao.Lat, Lng: bilbao.Lng + 0.0001}},
	}

	placed, err := svc.Project(bilbao, targets)
	require.NoError(t, err)
	require.Len(t, placed, 2)

	assert.Equal(t, "north", placed[0].ID)
	assert.Less(t, placed[0].Point.Z, 0.0)
	assert.InDelta(t, 0, placed[0].BearingDeg, 1e-6)

	assert.Equal(t, "east", placed[1].ID)
	assert.Greater(t, placed[1].Point.X, 0.0)

	back, err := svc.Unproject(bilbao, placed[1].Point)
	require.NoError(t, err)
	assert.InDelta(t, targets[2].Location.Lng, back.Lng, 1e-9)
}

func TestFrameService_Project_BadOrigin(t *testing.T) {
	svc := usecases.NewFrameService()

	_, err := svc.Project(domain.Coordinate{Lat: 91}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	_, err = svc.Project(domain.Coordinate{Lat: -90}, nil)
	assert.ErrorIs(t, err, geospatial.ErrPolarOrigin)

	_, err = svc.Unproject(bilbao, domain.LocalPoint{X: math.NaN()})
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
}

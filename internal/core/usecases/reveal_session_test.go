package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
)

func waitForState(t *testing.T, states <-chan domain.RevealState, match func(domain.RevealState) bool) domain.RevealState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if match(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for reveal state")
			return domain.RevealState{}
		}
	}
}

func phaseIs(p domain.RevealPhase) func(domain.RevealState) bool {
	return func(st domain.RevealState) bool { return st.Phase == p }
}

func TestRevealSession_RevealsAfterSustainedAlignment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	counter := &revealCounter{}
	gate := usecases.NewRevealGate(testNote(), usecases.RevealGateConfig{RequireSightline: true},
		usecases.WithClock(clock), usecases.WithOnReveal(counter.fn))

	locations := make(chan domain.LocationFix, 1)
	headings := make(chan domain.HeadingReading, 1)
	states := make(chan domain.RevealState, 64)

	done := make(chan error, 1)
	go func() {
		done <- usecases.NewRevealSession(gate, func(st domain.RevealState) { states <- st }).Run(ctx, locations, headings)
	}()

	locations <- fixAt(southOf(bilbao, 34))
	waitForState(t, states, phaseIs(domain.PhaseInRange))

	headings <- heading(5)
	waitForState(t, states, phaseIs(domain.PhaseAligning))

	for i := 1; i <= 10; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(usecases.DefaultTickInterval)
		want := i * 10
		waitForState(t, states, func(st domain.RevealState) bool { return st.AlignmentProgress == want })
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("session did not finish after reveal")
	}
	assert.Equal(t, 1, counter.get())
	assert.False(t, gate.Ticking())
}

func TestRevealSession_CancelReleasesTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gate := usecases.NewRevealGate(testNote(), usecases.RevealGateConfig{}, usecases.WithClock(clockwork.NewFakeClock()))
	locations := make(chan domain.LocationFix, 1)
	states := make(chan domain.RevealState, 16)

	done := make(chan error, 1)
	go func() {
		done <- usecases.NewRevealSession(gate, func(st domain.RevealState) { states <- st }).Run(ctx, locations, nil)
	}()

	locations <- fixAt(bilbao)
	waitForState(t, states, phaseIs(domain.PhaseAligning))
	require.True(t, gate.Ticking())

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.False(t, gate.Ticking())
}

func TestRevealSession_ClosedHeadingStreamBlocksAlignment(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gate := usecases.NewRevealGate(testNote(), usecases.RevealGateConfig{RequireSightline: true}, usecases.WithClock(clockwork.NewFakeClock()))
	locations := make(chan domain.LocationFix, 1)
	headings := make(chan domain.HeadingReading, 1)
	states := make(chan domain.RevealState, 16)

	go func() {
		_ = usecases.NewRevealSession(gate, func(st domain.RevealState) { states <- st }).Run(ctx, locations, headings)
	}()

	headings <- heading(0)
	locations <- fixAt(southOf(bilbao, 10))
	waitForState(t, states, phaseIs(domain.PhaseAligning))

	close(headings)
	st := waitForState(t, states, phaseIs(domain.PhaseInRange))
	assert.Equal(t, domain.BlockerHeadingUnavailable, st.Blocker)
}

func TestSessionRegistry_RetargetCancelsPrevious(t *testing.T) {
	reg := usecases.NewSessionRegistry()
	ctx := context.Background()

	first, releaseFirst, err := reg.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Active())

	// the first holder releases once its context is cancelled
	go func() {
		<-first.Done()
		releaseFirst()
	}()

	second, releaseSecond, err := reg.Acquire(ctx, "u1")
	require.NoError(t, err)
	assert.Error(t, first.Err())
	assert.NoError(t, second.Err())
	assert.Equal(t, 1, reg.Active())

	other, releaseOther, err := reg.Acquire(ctx, "u2")
	require.NoError(t, err)
	assert.NoError(t, other.Err())
	assert.Equal(t, 2, reg.Active())

	releaseSecond()
	releaseSecond()
	releaseOther()
	assert.Equal(t, 0, reg.Active())
}

func TestSessionRegistry_AcquireHonoursContext(t *testing.T) {
	reg := usecases.NewSessionRegistry()

	_, release, err := reg.Acquire(context.Background(), "u1")
	require.NoError(t, err)
	defer release()

	// previous holder never releases
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = reg.Acquire(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRevealService_UnknownNote(t *testing.T) {
	repo := &mockNoteRepo{}
	svc := usecases.NewRevealService(repo, nil, usecases.RevealGateConfig{})

	err := svc.Run(context.Background(), "u1", "missing", nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoteNotFound)
	assert.Equal(t, 0, svc.Registry().Active())
}

func TestRevealService_RunsUntilReveal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	note := testNote()
	repo := &mockNoteRepo{notes: map[string]domain.Note{note.ID: note}}
	svc := usecases.NewRevealService(repo, nil, usecases.RevealGateConfig{ProgressStep: 100})

	clock := clockwork.NewFakeClock()
	locations := make(chan domain.LocationFix, 1)
	var last domain.RevealState
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx, "u1", note.ID, locations, nil, func(st domain.RevealState) { last = st }, usecases.WithClock(clock))
	}()

	locations <- fixAt(bilbao)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(usecases.DefaultTickInterval)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("reveal service did not finish")
	}
	assert.True(t, last.Revealed)
	assert.Equal(t, 0, svc.Registry().Active())
}

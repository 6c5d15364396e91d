package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ghostnotes/internal/adapters/memory"
	"github.com/samirrijal/ghostnotes/internal/adapters/notify"
	"github.com/samirrijal/ghostnotes/internal/bootstrap"
	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/pkg/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Reveal: config.RevealConfig{
			DefaultRadiusM:   40,
			DefaultAngleDeg:  30,
			TickInterval:     100 * time.Millisecond,
			ProgressStep:     20,
			RequireSightline: true,
		},
		Proximity: config.ProximityConfig{RadiusM: 80, Cooldown: time.Minute, DispatchTimeout: time.Second},
	}
}

func TestOpen_Memory(t *testing.T) {
	infra, err := bootstrap.Open(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &memory.NoteIndex{}, infra.Notes)
	assert.IsType(t, &memory.NotifiedSetStore{}, infra.History)
	assert.Nil(t, infra.Cache, "cache must be a nil interface when valkey is off")
	assert.Nil(t, infra.DB)
	assert.Nil(t, infra.PoolStat())
}

func TestConfigConversions(t *testing.T) {
	cfg := memoryConfig()

	gate := bootstrap.RevealGateConfig(cfg.Reveal)
	assert.True(t, gate.RequireSightline)
	assert.Equal(t, 40.0, gate.DefaultRadiusM)
	assert.Equal(t, 20, gate.ProgressStep)

	prox := bootstrap.ProximityConfig(cfg.Proximity)
	assert.Equal(t, 80.0, prox.RadiusM)
	assert.Equal(t, time.Minute, prox.Cooldown)
}

func TestNewNotifier_DispatchesThroughDirect(t *testing.T) {
	cfg := memoryConfig()
	direct := notify.NewDirectDispatcher()
	ch, cancel := direct.Subscribe("u1", 1)
	defer cancel()

	n := bootstrap.NewNotifier(cfg.Proximity, memory.NewNotifiedSetStore(), direct, nil)
	note := domain.Note{ID: "n1", Location: domain.Coordinate{Lat: 43.263, Lng: -2.935}}
	fix := domain.LocationFix{Coordinate: note.Location, Available: true}

	intents := n.Evaluate(context.Background(), "u1", []domain.Note{note}, fix, cfg.Proximity.RadiusM, cfg.Proximity.Cooldown)
	require.Len(t, intents, 1)
	n.Wait()

	select {
	case got := <-ch:
		assert.Equal(t, "n1", got.NoteID)
	default:
		t.Fatal("intent not delivered")
	}
}

package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

func TestNotifiedSet_Merge(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	local := &domain.NotifiedSet{NoteIDs: []string{"a", "b"}, LastNotifiedAt: t0}
	stored := &domain.NotifiedSet{NoteIDs: []string{"b", "c"}, LastNotifiedAt: t0.Add(time.Minute)}

	local.Merge(stored)
	assert.Equal(t, []string{"a", "b", "c"}, local.NoteIDs)
	assert.Equal(t, t0.Add(time.Minute), local.LastNotifiedAt)

	// an older copy never moves the timestamp back
	local.Merge(&domain.NotifiedSet{LastNotifiedAt: t0})
	assert.Equal(t, t0.Add(time.Minute), local.LastNotifiedAt)

	local.Merge(nil)
	assert.Len(t, local.NoteIDs, 3)
}

func TestNotifiedSet_Index(t *testing.T) {
	var empty *domain.NotifiedSet
	assert.Empty(t, empty.Index())

	idx := (&domain.NotifiedSet{NoteIDs: []string{"a", "b"}}).Index()
	assert.Contains(t, idx, "a")
	assert.Contains(t, idx, "b")
	assert.NotContains(t, idx, "c")
}

package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for expander tests.
type fakeStore struct {
	checkpoints map[string]Checkpoint
	failInsert  map[string]bool
	inserts     int
	updates     int
}

func newFakeStore(seed ...Checkpoint) *fakeStore {
	s := &fakeStore{
		checkpoints: make(map[string]Checkpoint),
		failInsert:  make(map[string]bool),
	}
	for _, cp := range seed {
		s.checkpoints[cp.ID] = cp
	}
	return s
}

func (s *fakeStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.checkpoints[id]
	return ok, nil
}

func (s *fakeStore) Insert(_ context.Context, cp Checkpoint) error {
	if s.failInsert[cp.ID] {
		return errors.New("write refused")
	}
	s.inserts++
	s.checkpoints[cp.ID] = cp
	return nil
}

func (s *fakeStore) UpdateWindow(_ context.Context, id string, start, end, lastRecurrence time.Time) error {
	cp, ok := s.checkpoints[id]
	if !ok {
		return errors.New("not found")
	}
	cp.StartTime = start
	cp.EndTime = end
	cp.LastRecurrence = &lastRecurrence
	s.checkpoints[id] = cp
	s.updates++
	return nil
}

func (s *fakeStore) ListRecurringTemplates(_ context.Context) ([]Checkpoint, error) {
	var out []Checkpoint
	for _, cp := range s.checkpoints {
		if cp.IsRecurring && !cp.IsRecurringInstance && cp.Lifecycle == LifecycleActive {
			out = append(out, cp)
		}
	}
	return out, nil
}

func TestMaterializeIdempotent(t *testing.T) {
	cp := recurring(4)
	store := newFakeStore(cp)
	exp := NewExpander(store)
	ctx := context.Background()

	created, err := exp.Materialize(ctx, cp, cp.StartTime)
	require.NoError(t, err)
	assert.Equal(t, 6, created)

	// Second run with the same base is a no-op per period index.
	created, err = exp.Materialize(ctx, cp, cp.StartTime)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 6, store.inserts)
}

func TestMaterializeSkipsFailedWrites(t *testing.T) {
	cp := recurring(4)
	store := newFakeStore(cp)
	store.failInsert[OccurrenceID(cp.ID, 3)] = true
	exp := NewExpander(store)

	created, err := exp.Materialize(context.Background(), cp, cp.StartTime)
	require.NoError(t, err)
	assert.Equal(t, 5, created)

	// The failure did not abort the later period indexes.
	_, ok := store.checkpoints[OccurrenceID(cp.ID, 6)]
	assert.True(t, ok)
}

func TestRollPass(t *testing.T) {
	lapsed := recurring(6) // window ended long before now
	fresh := recurring(6)
	fresh.ID = "CP_2"
	fresh.StartTime = winStart.Add(48 * time.Hour)
	fresh.EndTime = winEnd.Add(48 * time.Hour)
	plain := window()
	plain.ID = "CP_3"

	store := newFakeStore(lapsed, fresh, plain)
	exp := NewExpander(store)
	now := winEnd.Add(7 * time.Hour)

	rolled, err := exp.RollPass(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, rolled)
	assert.Equal(t, 1, store.updates)

	got := store.checkpoints[lapsed.ID]
	assert.True(t, got.StartTime.After(winStart))
	require.NotNil(t, got.LastRecurrence)
	assert.Equal(t, now, *got.LastRecurrence)

	// Immediately re-running is throttled by the fresh lastRecurrence.
	rolled, err = exp.RollPass(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, rolled)
}

package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patroltrack/internal/checkpoint"
	"patroltrack/internal/geo"
)

// fakeRecords is an in-memory RecordStore.
type fakeRecords struct {
	byID      map[string]Record
	inserts   int
	failGet   bool
	dropOnGet bool // insert succeeds but confirm-read sees nothing
	insertErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: make(map[string]Record)}
}

func (f *fakeRecords) Insert(_ context.Context, rec Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.byID {
		if existing.CheckpointID == rec.CheckpointID && existing.GuardID == rec.GuardID &&
			existing.WindowStart.Equal(rec.WindowStart) {
			return ErrAlreadyVerified
		}
	}
	f.inserts++
	f.byID[rec.ID] = rec
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id string) (*Record, error) {
	if f.failGet {
		return nil, errors.New("store unavailable")
	}
	if f.dropOnGet {
		return nil, nil
	}
	rec, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeRecords) GetForGuard(_ context.Context, checkpointID, guardID string, windowStart time.Time) (*Record, error) {
	for _, rec := range f.byID {
		if rec.CheckpointID == checkpointID && rec.GuardID == guardID &&
			rec.WindowStart.Equal(windowStart) {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

var (
	day      = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	winStart = day.Add(10 * time.Hour)                // 10:00
	winEnd   = day.Add(10*time.Hour + 30*time.Minute) // 10:30
)

func occurrence() checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		ID:        "CP_1",
		CompanyID: "co1",
		Name:      "front gate",
		Latitude:  0,
		Longitude: 0,
		StartTime: winStart,
		EndTime:   winEnd,
		Lifecycle: checkpoint.LifecycleActive,
	}
}

const lateWindow = 15 * time.Minute

func TestVerifyTimeWindows(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0.0001} // ~11m

	cases := []struct {
		name       string
		now        time.Time
		wantStatus checkpoint.Status
		wantErr    error
	}{
		{"on time near end", day.Add(10*time.Hour + 29*time.Minute), checkpoint.StatusVerifiedOnTime, nil},
		{"late inside grace", day.Add(10*time.Hour + 40*time.Minute), checkpoint.StatusVerifiedLate, nil},
		{"past late window", day.Add(10*time.Hour + 46*time.Minute), "", ErrWindowExpired},
		{"before window", day.Add(9*time.Hour + 59*time.Minute), "", ErrTooEarly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeRecords()
			svc := NewService(store, 50)

			rec, err := svc.Verify(context.Background(), occurrence(), "guard1", inRange, tc.now, lateWindow)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Zero(t, store.inserts, "validation failure must not write")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, rec.Status)
			assert.Equal(t, tc.now, rec.VerifiedAt)
			assert.Equal(t, 1, store.inserts)
		})
	}
}

func TestVerifyOutOfRangeWritesNothing(t *testing.T) {
	store := newFakeRecords()
	svc := NewService(store, 50)

	// ~1113m from the checkpoint, far outside the 50m fence.
	far := geo.Position{Latitude: 0, Longitude: 0.01}
	_, err := svc.Verify(context.Background(), occurrence(), "guard1", far, winStart.Add(5*time.Minute), lateWindow)

	var oor *OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.InDelta(t, 1113, oor.DistanceMeters, 2)
	assert.Equal(t, 50.0, oor.RequiredMeters)
	assert.Zero(t, store.inserts)
}

func TestVerifyGeofenceFailureTakesPrecedence(t *testing.T) {
	// Out of range and too early at once: the geofence reason is reported.
	store := newFakeRecords()
	svc := NewService(store, 50)

	far := geo.Position{Latitude: 0, Longitude: 0.01}
	_, err := svc.Verify(context.Background(), occurrence(), "guard1", far, winStart.Add(-time.Hour), lateWindow)

	var oor *OutOfRangeError
	assert.ErrorAs(t, err, &oor)
	assert.Zero(t, store.inserts)
}

func TestVerifyInvalidCoordinate(t *testing.T) {
	store := newFakeRecords()
	svc := NewService(store, 50)

	_, err := svc.Verify(context.Background(), occurrence(), "guard1",
		geo.Position{Latitude: 91, Longitude: 0}, winStart, lateWindow)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
	assert.Zero(t, store.inserts)
}

func TestVerifyBoundaryInstants(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0}
	store := newFakeRecords()
	svc := NewService(store, 50)

	// Exactly at start: allowed, on time.
	rec, err := svc.Verify(context.Background(), occurrence(), "g-start", inRange, winStart, lateWindow)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusVerifiedOnTime, rec.Status)

	// Exactly at end: still on time.
	rec, err = svc.Verify(context.Background(), occurrence(), "g-end", inRange, winEnd, lateWindow)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusVerifiedOnTime, rec.Status)

	// Exactly at the late-window end: accepted as late.
	rec, err = svc.Verify(context.Background(), occurrence(), "g-late", inRange, winEnd.Add(lateWindow), lateWindow)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusVerifiedLate, rec.Status)
}

func TestVerifyDuplicateRejected(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0}
	store := newFakeRecords()
	svc := NewService(store, 50)
	ctx := context.Background()

	_, err := svc.Verify(ctx, occurrence(), "guard1", inRange, winStart.Add(time.Minute), lateWindow)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, occurrence(), "guard1", inRange, winStart.Add(2*time.Minute), lateWindow)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, 1, store.inserts)

	// A different guard may still verify the same occurrence; both records
	// remain as audit entries.
	_, err = svc.Verify(ctx, occurrence(), "guard2", inRange, winStart.Add(3*time.Minute), lateWindow)
	assert.NoError(t, err)
	assert.Equal(t, 2, store.inserts)
}

func TestVerifyAfterTemplateRolls(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0}
	store := newFakeRecords()
	svc := NewService(store, 50)
	ctx := context.Background()

	tpl := occurrence()
	tpl.IsRecurring = true
	tpl.RecurringHours = 6

	rec, err := svc.Verify(ctx, tpl, "guard1", inRange, winStart.Add(5*time.Minute), lateWindow)
	require.NoError(t, err)
	assert.True(t, rec.WindowStart.Equal(winStart))

	// The maintenance pass advances the template to its next window; the
	// checkpoint id stays the same.
	rolled, ok := checkpoint.RollForward(tpl, day.Add(12*time.Hour))
	require.True(t, ok)
	require.True(t, rolled.StartTime.Equal(winStart.Add(6*time.Hour)))

	// The same guard verifies the new window; the earlier window's record
	// must not block it.
	rec, err = svc.Verify(ctx, rolled, "guard1", inRange, rolled.StartTime.Add(5*time.Minute), lateWindow)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusVerifiedOnTime, rec.Status)
	assert.True(t, rec.WindowStart.Equal(rolled.StartTime))
	assert.Equal(t, 2, store.inserts)

	// Within one window at-most-once still holds.
	_, err = svc.Verify(ctx, rolled, "guard1", inRange, rolled.StartTime.Add(10*time.Minute), lateWindow)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, 2, store.inserts)
}

func TestVerifyCommitUnconfirmed(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0}

	t.Run("confirm read errors", func(t *testing.T) {
		store := newFakeRecords()
		store.failGet = true
		svc := NewService(store, 50)

		_, err := svc.Verify(context.Background(), occurrence(), "guard1", inRange, winStart, lateWindow)
		assert.ErrorIs(t, err, ErrCommitUnconfirmed)
		// The write itself was issued exactly once; no retry happened.
		assert.Equal(t, 1, store.inserts)
	})

	t.Run("confirm read finds nothing", func(t *testing.T) {
		store := newFakeRecords()
		store.dropOnGet = true
		svc := NewService(store, 50)

		_, err := svc.Verify(context.Background(), occurrence(), "guard1", inRange, winStart, lateWindow)
		assert.ErrorIs(t, err, ErrCommitUnconfirmed)
		assert.Equal(t, 1, store.inserts)
	})
}

func TestVerifiedRecordPinsClassifier(t *testing.T) {
	inRange := geo.Position{Latitude: 0, Longitude: 0}
	store := newFakeRecords()
	svc := NewService(store, 50)

	rec, err := svc.Verify(context.Background(), occurrence(), "guard1", inRange, winStart.Add(10*time.Minute), lateWindow)
	require.NoError(t, err)

	// Classification now returns the stored status regardless of later now.
	for _, now := range []time.Time{winEnd, winEnd.Add(lateWindow + time.Hour), winEnd.Add(240 * time.Hour)} {
		got := checkpoint.Classify(occurrence(), lateWindow, rec.Info(), now)
		assert.Equal(t, checkpoint.StatusVerifiedOnTime, got)
	}
}

func TestDistance(t *testing.T) {
	svc := NewService(newFakeRecords(), 50)
	d, in, err := svc.Distance(occurrence(), geo.Position{Latitude: 0, Longitude: 0.0001})
	require.NoError(t, err)
	assert.True(t, in)
	assert.InDelta(t, 11.1, d, 0.5)

	d, in, err = svc.Distance(occurrence(), geo.Position{Latitude: 0, Longitude: 0.01})
	require.NoError(t, err)
	assert.False(t, in)
	assert.Greater(t, d, 1000.0)
}

package verification

import (
	"context"
	"fmt"
	"time"

	"patroltrack/internal/checkpoint"
	"patroltrack/internal/geo"
)

// RecordStore persists verification records. Insert must behave as a
// conditional write: when a record for the same (checkpoint, guard, window
// start) already exists it returns ErrAlreadyVerified and writes nothing.
// Keying on the window start keeps each window of a rolling template
// independently verifiable.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	GetForGuard(ctx context.Context, checkpointID, guardID string, windowStart time.Time) (*Record, error)
}

// Service implements the verification commit protocol.
type Service struct {
	records      RecordStore
	radiusMeters float64
}

// NewService creates a service. radiusMeters is the deployment-wide geofence
// radius shared by all checkpoints.
func NewService(records RecordStore, radiusMeters float64) *Service {
	if radiusMeters <= 0 {
		radiusMeters = 50
	}
	return &Service{records: records, radiusMeters: radiusMeters}
}

// RadiusMeters returns the geofence radius the service enforces.
func (s *Service) RadiusMeters() float64 {
	return s.radiusMeters
}

// Distance measures how far a reported position is from the occurrence and
// whether it is inside the geofence. Read-only; used by the location
// pre-check.
func (s *Service) Distance(occ checkpoint.Checkpoint, reported geo.Position) (float64, bool, error) {
	center := geo.Position{Latitude: occ.Latitude, Longitude: occ.Longitude}
	d, err := geo.DistanceMeters(reported, center)
	if err != nil {
		return 0, false, err
	}
	return d, d <= s.radiusMeters, nil
}

// Verify validates a guard's on-site verification attempt and durably records
// it. The geofence check runs first and its failure takes precedence over any
// time-window failure. On success exactly one write plus one confirm-read
// happen; every validation failure performs zero writes.
func (s *Service) Verify(ctx context.Context, occ checkpoint.Checkpoint, guardID string, reported geo.Position, now time.Time, lateWindow time.Duration) (Record, error) {
	d, in, err := s.Distance(occ, reported)
	if err != nil {
		return Record{}, err
	}
	if !in {
		return Record{}, &OutOfRangeError{DistanceMeters: d, RequiredMeters: s.radiusMeters}
	}

	switch {
	case now.Before(occ.StartTime):
		return Record{}, ErrTooEarly
	case now.After(occ.LateWindowEnd(lateWindow)):
		return Record{}, ErrWindowExpired
	}
	status := checkpoint.StatusVerifiedOnTime
	if now.After(occ.EndTime) {
		status = checkpoint.StatusVerifiedLate
	}

	// Double-submission pre-check, scoped to this occurrence window. The
	// store's conditional insert is the backstop for the race between two
	// concurrent attempts by the same guard.
	if existing, err := s.records.GetForGuard(ctx, occ.ID, guardID, occ.StartTime); err != nil {
		return Record{}, err
	} else if existing != nil {
		return Record{}, ErrAlreadyVerified
	}

	rec := Record{
		ID:                NewRecordID(guardID, now),
		CheckpointID:      occ.ID,
		GuardID:           guardID,
		CompanyID:         occ.CompanyID,
		WindowStart:       occ.StartTime,
		VerifiedAt:        now,
		Status:            status,
		VerifiedLatitude:  reported.Latitude,
		VerifiedLongitude: reported.Longitude,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return Record{}, err
	}

	// Confirm durability before reporting success. A failed read-back is not
	// a validation failure: the record may well exist, so the caller must
	// re-query instead of retrying the write.
	confirmed, err := s.records.Get(ctx, rec.ID)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCommitUnconfirmed, err)
	}
	if confirmed == nil {
		return Record{}, ErrCommitUnconfirmed
	}
	return *confirmed, nil
}

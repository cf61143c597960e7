package verification

import (
	"fmt"
	"time"

	"patroltrack/internal/checkpoint"
)

// Record is an immutable proof that a guard was in range during (or shortly
// after) an occurrence's window. Records are never edited or deleted; the
// status is decided once at commit time and never recomputed.
type Record struct {
	ID           string `json:"id"`
	CheckpointID string `json:"checkpoint_id"`
	GuardID      string `json:"guard_id"`
	CompanyID    string `json:"company_id"`
	// WindowStart identifies the occurrence window the record belongs to.
	// A rolling template reuses its checkpoint id across windows, so
	// at-most-once is keyed on (checkpoint, guard, window start), not on
	// (checkpoint, guard) alone.
	WindowStart       time.Time         `json:"window_start"`
	VerifiedAt        time.Time         `json:"verified_at"`
	Status            checkpoint.Status `json:"status"` // verified_ontime or verified_late
	VerifiedLatitude  float64           `json:"verified_latitude"`
	VerifiedLongitude float64           `json:"verified_longitude"`
	CreatedAt         time.Time         `json:"created_at"`
}

// NewRecordID builds a record id embedding guard identity and the commit
// timestamp, keeping accidental collisions detectable.
func NewRecordID(guardID string, at time.Time) string {
	return fmt.Sprintf("VERIF_%s_%d", guardID, at.UnixMilli())
}

// Info exposes the slice of the record the status classifier consumes.
func (r *Record) Info() *checkpoint.VerifiedInfo {
	if r == nil {
		return nil
	}
	return &checkpoint.VerifiedInfo{At: r.VerifiedAt, Status: r.Status}
}

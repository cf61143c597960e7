package checkpoint

import (
	"fmt"
	"time"
)

// Checkpoint is a patrol checkpoint. A template and the occurrences
// materialized from it share the same shape; children carry a back-reference
// to the template in OriginalCheckpointID and IsRecurringInstance=true.
// A non-recurring template is its own sole occurrence.
type Checkpoint struct {
	ID                   string     `json:"id"`
	CompanyID            string     `json:"company_id"`
	CreatorID            string     `json:"creator_id,omitempty"`
	Name                 string     `json:"name"`
	Latitude             float64    `json:"latitude"`
	Longitude            float64    `json:"longitude"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              time.Time  `json:"end_time"`
	IsRecurring          bool       `json:"is_recurring"`
	RecurringHours       int        `json:"recurring_hours"`
	LastRecurrence       *time.Time `json:"last_recurrence,omitempty"`
	Lifecycle            string     `json:"lifecycle"` // "active" or "disabled"
	OriginalCheckpointID string     `json:"original_checkpoint_id,omitempty"`
	IsRecurringInstance  bool       `json:"is_recurring_instance"`
	CreatedAt            time.Time  `json:"created_at"`
}

// LifecycleActive is the normal lifecycle tag; disabled templates are kept
// but excluded from guard rounds.
const (
	LifecycleActive   = "active"
	LifecycleDisabled = "disabled"
)

// NewID builds a checkpoint id from a creation timestamp, following the
// CP_<millis> convention used for stored checkpoints.
func NewID(t time.Time) string {
	return fmt.Sprintf("CP_%d", t.UnixMilli())
}

// OccurrenceID derives the deterministic id of the idx-th materialized
// occurrence of a template. Re-running materialization yields the same ids,
// which is what makes the existence check effective.
func OccurrenceID(templateID string, idx int) string {
	return fmt.Sprintf("%s_R%d", templateID, idx)
}

// Validate checks the invariants an admin-created template must satisfy.
func (c Checkpoint) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("checkpoint name required")
	}
	if c.CompanyID == "" {
		return fmt.Errorf("company id required")
	}
	if !c.StartTime.Before(c.EndTime) {
		return fmt.Errorf("start time must be before end time")
	}
	if c.IsRecurring && c.RecurringHours <= 0 {
		return fmt.Errorf("recurring checkpoints need positive recurrence hours")
	}
	return nil
}

// Window returns the occurrence window as [start, end).
func (c Checkpoint) Window() (time.Time, time.Time) {
	return c.StartTime, c.EndTime
}

// LateWindowEnd returns the last instant at which a late verification is
// still accepted.
func (c Checkpoint) LateWindowEnd(lateWindow time.Duration) time.Time {
	return c.EndTime.Add(lateWindow)
}

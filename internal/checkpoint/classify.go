package checkpoint

import "time"

// Status is the closed set of per-occurrence states shown to guards.
type Status string

const (
	StatusUpcoming       Status = "upcoming"
	StatusActive         Status = "active"
	StatusLateVerifiable Status = "late_verifiable"
	StatusMissed         Status = "missed"
	StatusVerifiedOnTime Status = "verified_ontime"
	StatusVerifiedLate   Status = "verified_late"
)

// Verified reports whether s is one of the terminal verified states.
func (s Status) Verified() bool {
	return s == StatusVerifiedOnTime || s == StatusVerifiedLate
}

// Terminal reports whether no further transition can occur without a commit.
func (s Status) Terminal() bool {
	return s == StatusMissed || s.Verified()
}

// VerifiedInfo is the slice of a verification record the classifier needs.
type VerifiedInfo struct {
	At     time.Time
	Status Status
}

// Classify maps an occurrence to its current status as a pure function of the
// window, the company late window, any existing verification, and now. Callers
// must use a single now snapshot per evaluation pass; long-lived observers
// should re-evaluate on a fixed cadence since the active/late/missed
// transitions are driven by wall-clock time alone.
func Classify(occ Checkpoint, lateWindow time.Duration, ver *VerifiedInfo, now time.Time) Status {
	// An existing verification pins the occurrence to the status decided at
	// commit time; it is never recomputed from the current clock.
	if ver != nil && !ver.At.Before(occ.StartTime) {
		return ver.Status
	}
	switch {
	case now.Before(occ.StartTime):
		return StatusUpcoming
	case !now.After(occ.EndTime):
		return StatusActive
	case !now.After(occ.LateWindowEnd(lateWindow)):
		return StatusLateVerifiable
	default:
		return StatusMissed
	}
}

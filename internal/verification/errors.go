package verification

import (
	"errors"
	"fmt"
)

// Validation failures are terminal for the attempt and carry the specific
// reason back to the guard. None of them perform a write.
var (
	ErrTooEarly        = errors.New("too early to verify this checkpoint")
	ErrWindowExpired   = errors.New("time window has expired including late window")
	ErrAlreadyVerified = errors.New("checkpoint already verified by this guard")
)

// ErrCommitUnconfirmed means the write was issued but the confirm-read did
// not come back. The occurrence state is unknown, not necessarily unverified;
// callers must re-query rather than retry the write.
var ErrCommitUnconfirmed = errors.New("verification commit unconfirmed")

// OutOfRangeError reports a failed geofence check with the measured and
// required distances in meters.
type OutOfRangeError struct {
	DistanceMeters float64
	RequiredMeters float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("out of range: %.2fm from checkpoint, must be within %.0fm",
		e.DistanceMeters, e.RequiredMeters)
}

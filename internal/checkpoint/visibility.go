package checkpoint

import (
	"sort"
	"time"
)

// DefaultHorizon bounds the working set of occurrences shown to a guard.
const DefaultHorizon = 24 * time.Hour

// FilterVisible retains occurrences whose start or end falls within
// [now-horizon, now+horizon], or whose window spans the entire horizon. The
// result is sorted ascending by start time for display; underlying stored
// data is untouched.
func FilterVisible(occs []Checkpoint, now time.Time, horizon time.Duration) []Checkpoint {
	lo := now.Add(-horizon)
	hi := now.Add(horizon)

	var out []Checkpoint
	for _, occ := range occs {
		startIn := !occ.StartTime.Before(lo) && !occ.StartTime.After(hi)
		endIn := !occ.EndTime.Before(lo) && !occ.EndTime.After(hi)
		spans := occ.StartTime.Before(lo) && occ.EndTime.After(hi)
		if startIn || endIn || spans {
			out = append(out, occ)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

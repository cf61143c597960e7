package checkpoint

import "time"

// RollThrottle is the minimum spacing between rolling-recurrence updates of a
// single template, tolerating concurrent maintenance passes without locking.
const RollThrottle = 5 * time.Minute

// materializeHorizon bounds creation-time pre-materialization: only windows
// starting within this span of the base timestamp get their own record.
const materializeHorizon = 24 * time.Hour

// RollForward computes the template's advanced window once its current window
// has lapsed. It returns the updated copy and true when an advance is due, or
// the input unchanged and false otherwise. The function is pure; persisting
// the shifted window and LastRecurrence=now is the caller's job.
func RollForward(cp Checkpoint, now time.Time) (Checkpoint, bool) {
	if !cp.IsRecurring || cp.RecurringHours <= 0 {
		return cp, false
	}
	if cp.LastRecurrence != nil && now.Sub(*cp.LastRecurrence) < RollThrottle {
		return cp, false
	}
	if !now.After(cp.EndTime) {
		return cp, false
	}

	period := time.Duration(cp.RecurringHours) * time.Hour
	elapsed := now.Sub(cp.StartTime)
	periods := elapsed / period
	if elapsed%period != 0 {
		periods++ // ceil
	}
	shift := time.Duration(periods) * period

	cp.StartTime = cp.StartTime.Add(shift)
	cp.EndTime = cp.EndTime.Add(shift)
	ts := now
	cp.LastRecurrence = &ts
	return cp, true
}

// MaterializePlan yields the future occurrences to pre-create for a recurring
// template: up to floor(24/recurringHours) children, each shifted by a whole
// number of periods from the template window and starting within 24 hours of
// base. Ids are deterministic per (template, period index) so re-running the
// plan against an existence check creates nothing twice.
func MaterializePlan(cp Checkpoint, base time.Time) []Checkpoint {
	if !cp.IsRecurring || cp.RecurringHours <= 0 {
		return nil
	}
	count := 24 / cp.RecurringHours
	period := time.Duration(cp.RecurringHours) * time.Hour

	var plan []Checkpoint
	for i := 1; i <= count; i++ {
		shift := time.Duration(i) * period
		start := cp.StartTime.Add(shift)
		if start.After(base.Add(materializeHorizon)) {
			break
		}
		child := cp
		child.ID = OccurrenceID(cp.ID, i)
		child.StartTime = start
		child.EndTime = cp.EndTime.Add(shift)
		child.OriginalCheckpointID = cp.ID
		child.IsRecurringInstance = true
		child.LastRecurrence = nil
		plan = append(plan, child)
	}
	return plan
}

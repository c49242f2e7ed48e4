package assignment

// Cascade gives each applicant in result.Unassigned the first slot in its own
// list whose running count is below capacity. Applicants are visited once, in
// the order of result.Unassigned, and earlier placements are never revisited,
// so the outcome depends on that order and is not stable in general.
//
// When counts is nil the running counts are derived from result.Assignments.
// Neither result nor counts is modified; the returned Result is recomputed
// over the merged assignment set.
func Cascade(result *Result, prefs Preferences, caps Capacities, counts Counts) *Result {
	if result == nil {
		result = &Result{}
	}

	assignments := copyAssignments(result.Assignments)

	var running Counts
	if counts == nil {
		running = CountAssignments(assignments)
	} else {
		running = make(Counts, len(counts))
		for s, n := range counts {
			running[s] = n
		}
	}

	for _, a := range result.Unassigned {
		if _, placed := assignments[a]; placed {
			continue
		}
		for _, slot := range prefs[a] {
			if running[slot] < caps.Of(slot) {
				assignments[a] = slot
				running[slot]++
				break
			}
		}
	}

	return summarize(assignments, copyAssignments(result.Forced), prefs)
}

package assignment

// Force pairs unassigned applicants with leftover seats, ignoring
// preferences.
//
// Leftover seats per slot are capacity minus counts, floored at zero. Seats
// are laid out slot by slot in ascending slot id order and handed out
// positionally: the first applicant takes the first seat, and so on.
// Applicants beyond the last seat stay out of the returned map. An applicant
// listed twice is only paired once.
func Force(unassigned []ApplicantID, caps Capacities, counts Counts) map[ApplicantID]SlotID {
	out := make(map[ApplicantID]SlotID)

	slots := caps.Slots()
	next, left := 0, 0
	advance := func() bool {
		for left == 0 {
			if next >= len(slots) {
				return false
			}
			left = caps.Of(slots[next]) - counts[slots[next]]
			if left < 0 {
				left = 0
			}
			next++
		}
		return true
	}

	for _, a := range unassigned {
		if _, dup := out[a]; dup {
			continue
		}
		if !advance() {
			break
		}
		out[a] = slots[next-1]
		left--
	}

	return out
}

// MergeForced folds the pairs returned by Force into result. Applicants that
// already hold a slot keep it. The merged pairs are recorded in
// Result.Forced and never count toward AverageRank.
func MergeForced(result *Result, forced map[ApplicantID]SlotID, prefs Preferences) *Result {
	if result == nil {
		result = &Result{}
	}

	assignments := copyAssignments(result.Assignments)
	marked := copyAssignments(result.Forced)
	for a, s := range forced {
		if _, placed := assignments[a]; placed {
			continue
		}
		assignments[a] = s
		marked[a] = s
	}

	return summarize(assignments, marked, prefs)
}

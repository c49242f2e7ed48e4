package assignment

// Summarize builds a Result from an assignment set.
//
// AssignedCount is the number of pairs. AverageRank is the mean 1-indexed
// position of the assigned slot in the applicant's own list, taken over pairs
// that are ranked and not forced; it is nil when there are none. Unassigned
// holds every applicant of prefs without a pair. The input maps are copied.
func Summarize(assignments, forced map[ApplicantID]SlotID, prefs Preferences) *Result {
	return summarize(copyAssignments(assignments), copyAssignments(forced), prefs)
}

// summarize takes ownership of assignments and forced.
func summarize(assignments, forced map[ApplicantID]SlotID, prefs Preferences) *Result {
	res := &Result{
		Assignments:   assignments,
		Unassigned:    []ApplicantID{},
		Total:         len(prefs),
		AssignedCount: len(assignments),
	}
	if len(forced) > 0 {
		res.Forced = forced
	}

	sum, ranked := 0, 0
	for a, s := range assignments {
		if fs, ok := forced[a]; ok && fs == s {
			continue
		}
		r := prefs.Rank(a, s)
		if r == 0 {
			continue
		}
		if res.RankDistribution == nil {
			res.RankDistribution = make(map[int]int)
		}
		res.RankDistribution[r]++
		sum += r
		ranked++
	}
	if ranked > 0 {
		avg := float64(sum) / float64(ranked)
		res.AverageRank = &avg
	}

	for a := range prefs {
		if _, ok := assignments[a]; !ok {
			res.Unassigned = append(res.Unassigned, a)
		}
	}
	sortApplicants(res.Unassigned)

	return res
}

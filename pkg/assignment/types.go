package assignment

import "sort"

// ApplicantID identifies a student group or an individual student.
type ApplicantID string

// SlotID identifies a project subject or an internship offer.
type SlotID string

// Preferences maps each applicant to its ranked slots, most preferred first.
type Preferences map[ApplicantID][]SlotID

// Capacities maps each slot to the number of applicants it can take.
// A slot missing from the map has capacity 0.
type Capacities map[SlotID]int

// Counts holds the current number of applicants per slot.
type Counts map[SlotID]int

// Result is the output of every phase.
type Result struct {
	// Assignments holds every placed applicant, forced ones included.
	Assignments map[ApplicantID]SlotID `json:"assignments"`
	// Forced is the subset of Assignments made without regard to preferences.
	Forced map[ApplicantID]SlotID `json:"forced,omitempty"`
	// Unassigned is sorted by applicant id.
	Unassigned    []ApplicantID `json:"unassigned"`
	Total         int           `json:"total"`
	AssignedCount int           `json:"assignedCount"`
	// AverageRank is nil when no ranked pair exists.
	AverageRank      *float64    `json:"averageRank"`
	RankDistribution map[int]int `json:"rankDistribution,omitempty"`
}

// Of returns the capacity of slot, treating missing and negative entries as 0.
func (c Capacities) Of(slot SlotID) int {
	if n := c[slot]; n > 0 {
		return n
	}
	return 0
}

// Slots returns the slot ids in ascending order.
func (c Capacities) Slots() []SlotID {
	out := make([]SlotID, 0, len(c))
	for s := range c {
		out = append(out, s)
	}
	sortSlots(out)
	return out
}

// Applicants returns the applicant ids in ascending order.
func (p Preferences) Applicants() []ApplicantID {
	out := make([]ApplicantID, 0, len(p))
	for a := range p {
		out = append(out, a)
	}
	sortApplicants(out)
	return out
}

// Rank returns the 1-indexed position of slot in the applicant's list, or 0
// when the applicant did not rank it. Only the first occurrence counts.
func (p Preferences) Rank(applicant ApplicantID, slot SlotID) int {
	for i, s := range p[applicant] {
		if s == slot {
			return i + 1
		}
	}
	return 0
}

// CountAssignments tallies how many applicants each slot holds.
func CountAssignments(assignments map[ApplicantID]SlotID) Counts {
	counts := make(Counts, len(assignments))
	for _, slot := range assignments {
		counts[slot]++
	}
	return counts
}

// Normalize returns a copy of prefs with empty slot ids dropped and repeated
// slot ids removed, keeping the first occurrence. The phases never call it
// themselves.
func Normalize(prefs Preferences) Preferences {
	out := make(Preferences, len(prefs))
	for a, list := range prefs {
		seen := make(map[SlotID]struct{}, len(list))
		clean := make([]SlotID, 0, len(list))
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			clean = append(clean, s)
		}
		out[a] = clean
	}
	return out
}

func sortApplicants(ids []ApplicantID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortSlots(ids []SlotID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func copyAssignments(src map[ApplicantID]SlotID) map[ApplicantID]SlotID {
	dst := make(map[ApplicantID]SlotID, len(src))
	for a, s := range src {
		dst[a] = s
	}
	return dst
}

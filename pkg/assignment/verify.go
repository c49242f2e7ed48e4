package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded reports a slot holding more applicants than its capacity.
	ErrCapacityExceeded = errors.New("assignment: slot capacity exceeded")
	// ErrUnrankedAssignment reports a non-forced pair whose slot is missing from
	// the applicant's list.
	ErrUnrankedAssignment = errors.New("assignment: slot not in applicant preferences")
)

// VerifyCapacity checks that no slot in result exceeds its capacity. Slots are
// checked in ascending id order and the first violation is returned.
func VerifyCapacity(result *Result, caps Capacities) error {
	if result == nil {
		return nil
	}
	counts := CountAssignments(result.Assignments)
	slots := make([]SlotID, 0, len(counts))
	for s := range counts {
		slots = append(slots, s)
	}
	sortSlots(slots)
	for _, s := range slots {
		if counts[s] > caps.Of(s) {
			return fmt.Errorf("%w: slot %q holds %d, capacity %d", ErrCapacityExceeded, s, counts[s], caps.Of(s))
		}
	}
	return nil
}

// VerifyPreferences checks that every non-forced pair in result names a slot
// from the applicant's own list.
func VerifyPreferences(result *Result, prefs Preferences) error {
	if result == nil {
		return nil
	}
	applicants := make([]ApplicantID, 0, len(result.Assignments))
	for a := range result.Assignments {
		applicants = append(applicants, a)
	}
	sortApplicants(applicants)

	for _, a := range applicants {
		s := result.Assignments[a]
		if fs, ok := result.Forced[a]; ok && fs == s {
			continue
		}
		if prefs.Rank(a, s) == 0 {
			return fmt.Errorf("%w: applicant %q holds %q", ErrUnrankedAssignment, a, s)
		}
	}
	return nil
}

package assignment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascade(t *testing.T) {
	prefs := Preferences{
		"a": {"S1", "S2"},
		"b": {"S1", "S2"},
		"c": {"S1"},
	}
	caps := Capacities{"S1": 1, "S2": 1}

	tests := []struct {
		name               string
		result             *Result
		counts             Counts
		expectedAssigned   map[ApplicantID]SlotID
		expectedUnassigned []ApplicantID
		expectedAverage    *float64
	}{
		{
			name:   "greedy sweep in unassigned order",
			result: &Result{Assignments: map[ApplicantID]SlotID{}, Unassigned: applicants("a", "b", "c")},
			expectedAssigned: map[ApplicantID]SlotID{
				"a": "S1",
				"b": "S2",
			},
			expectedUnassigned: applicants("c"),
			expectedAverage:    rankPtr(1.5),
		},
		{
			name:   "sweep order decides who wins",
			result: &Result{Assignments: map[ApplicantID]SlotID{}, Unassigned: applicants("c", "b", "a")},
			expectedAssigned: map[ApplicantID]SlotID{
				"c": "S1",
				"b": "S2",
			},
			expectedUnassigned: applicants("a"),
			expectedAverage:    rankPtr(1.5),
		},
		{
			name:               "explicit counts override derived ones",
			result:             &Result{Assignments: map[ApplicantID]SlotID{}, Unassigned: applicants("a", "b", "c")},
			counts:             Counts{"S1": 1},
			expectedAssigned:   map[ApplicantID]SlotID{"a": "S2"},
			expectedUnassigned: applicants("b", "c"),
			expectedAverage:    rankPtr(2),
		},
		{
			name: "counts derived from existing assignments",
			result: &Result{
				Assignments: map[ApplicantID]SlotID{"a": "S1"},
				Unassigned:  applicants("b", "c"),
			},
			expectedAssigned: map[ApplicantID]SlotID{
				"a": "S1",
				"b": "S2",
			},
			expectedUnassigned: applicants("c"),
			expectedAverage:    rankPtr(1.5),
		},
		{
			name:               "nil result",
			result:             nil,
			expectedAssigned:   map[ApplicantID]SlotID{},
			expectedUnassigned: applicants("a", "b", "c"),
			expectedAverage:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Cascade(tt.result, prefs, caps, tt.counts)

			require.NotNil(t, res)
			assert.Equal(t, tt.expectedAssigned, res.Assignments)
			assert.Equal(t, tt.expectedUnassigned, res.Unassigned)
			assert.Equal(t, len(tt.expectedAssigned), res.AssignedCount)
			assert.Equal(t, 3, res.Total)
			if tt.expectedAverage == nil {
				assert.Nil(t, res.AverageRank)
			} else {
				require.NotNil(t, res.AverageRank)
				assert.InDelta(t, *tt.expectedAverage, *res.AverageRank, 1e-9)
			}
		})
	}
}

func TestCascade_NoBacktracking(t *testing.T) {
	// a grabs S1 although it would be happy with S2, leaving b with nothing.
	prefs := Preferences{
		"a": {"S1", "S2"},
		"b": {"S1"},
	}
	caps := Capacities{"S1": 1, "S2": 1}
	start := &Result{Assignments: map[ApplicantID]SlotID{}, Unassigned: applicants("a", "b")}

	res := Cascade(start, prefs, caps, nil)

	assert.Equal(t, map[ApplicantID]SlotID{"a": "S1"}, res.Assignments)
	assert.Equal(t, applicants("b"), res.Unassigned)
}

func TestCascade_DoesNotMutateInputs(t *testing.T) {
	prefs := Preferences{"a": {"S1"}, "b": {"S2"}}
	caps := Capacities{"S1": 1, "S2": 1}
	counts := Counts{"S1": 0}
	start := &Result{
		Assignments: map[ApplicantID]SlotID{"a": "S1"},
		Unassigned:  applicants("b"),
	}

	res := Cascade(start, prefs, caps, counts)

	assert.Equal(t, map[ApplicantID]SlotID{"a": "S1"}, start.Assignments)
	assert.Equal(t, applicants("b"), start.Unassigned)
	assert.Equal(t, Counts{"S1": 0}, counts)
	assert.Equal(t, map[ApplicantID]SlotID{"a": "S1", "b": "S2"}, res.Assignments)
}

func TestCascade_AfterMatchKeepsUnplaceableApplicant(t *testing.T) {
	prefs := Preferences{"A": {"S1"}, "B": {"S9", "S1"}}
	caps := Capacities{"S1": 1}

	res := Cascade(Match(prefs, caps), prefs, caps, nil)

	assert.Equal(t, map[ApplicantID]SlotID{"A": "S1"}, res.Assignments)
	assert.Equal(t, applicants("B"), res.Unassigned)
}

func TestCascade_KeepsForcedPairs(t *testing.T) {
	prefs := Preferences{"a": {"S1"}, "b": {"S2"}}
	caps := Capacities{"S1": 1, "S2": 1}
	start := &Result{
		Assignments: map[ApplicantID]SlotID{"a": "S2"},
		Forced:      map[ApplicantID]SlotID{"a": "S2"},
		Unassigned:  applicants("b"),
	}

	res := Cascade(start, prefs, caps, nil)

	assert.Equal(t, map[ApplicantID]SlotID{"a": "S2"}, res.Forced)
	assert.Equal(t, applicants("b"), res.Unassigned)
	assert.Nil(t, res.AverageRank)
}

package assignment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type matcherFunc func(Preferences, Capacities) *Result

func (f matcherFunc) Match(prefs Preferences, caps Capacities) *Result {
	return f(prefs, caps)
}

// ==========================
// Engine Tests
// ==========================

func TestEngine_Run(t *testing.T) {
	prefs := Preferences{
		"A": {"S1", "S2"},
		"B": {"S1", "S2"},
		"C": {},
		"D": {"S1"},
	}
	caps := Capacities{"S1": 1, "S2": 1, "S3": 1}

	t.Run("without forced fill", func(t *testing.T) {
		out, err := DefaultEngine().Run(prefs, caps, RunOptions{})
		require.NoError(t, err)

		assert.Equal(t, map[ApplicantID]SlotID{"A": "S1", "B": "S2"}, out.Result.Assignments)
		assert.Equal(t, applicants("C", "D"), out.Result.Unassigned)
		assert.Equal(t, 2, out.StableAssigned)
		assert.Zero(t, out.CascadeAssigned)
		assert.Zero(t, out.ForcedAssigned)
		assert.Equal(t, PhaseStable, out.Phases["A"])
	})

	t.Run("with forced fill", func(t *testing.T) {
		out, err := DefaultEngine().Run(prefs, caps, RunOptions{ForceFill: true})
		require.NoError(t, err)

		assert.Equal(t, SlotID("S3"), out.Result.Assignments["C"])
		assert.Equal(t, applicants("D"), out.Result.Unassigned)
		assert.Equal(t, map[ApplicantID]SlotID{"C": "S3"}, out.Result.Forced)
		assert.Equal(t, 1, out.ForcedAssigned)
		assert.Equal(t, PhaseForced, out.Phases["C"])
		require.NotNil(t, out.Result.AverageRank)
		assert.InDelta(t, 1.5, *out.Result.AverageRank, 1e-9)
	})

	t.Run("identical runs", func(t *testing.T) {
		first, err := DefaultEngine().Run(prefs, caps, RunOptions{ForceFill: true})
		require.NoError(t, err)
		second, err := DefaultEngine().Run(prefs, caps, RunOptions{ForceFill: true})
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}

func TestEngine_CascadePhase(t *testing.T) {
	// A matcher that leaves everyone out lets the cascade do the work.
	lazy := matcherFunc(func(prefs Preferences, _ Capacities) *Result {
		return Summarize(nil, nil, prefs)
	})
	prefs := Preferences{"a": {"S1", "S2"}, "b": {"S1"}}
	caps := Capacities{"S1": 1, "S2": 1}

	out, err := NewEngine(lazy).Run(prefs, caps, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[ApplicantID]SlotID{"a": "S1"}, out.Result.Assignments)
	assert.Equal(t, 1, out.CascadeAssigned)
	assert.Equal(t, PhaseCascade, out.Phases["a"])
	assert.Equal(t, applicants("b"), out.Result.Unassigned)
}

func TestEngine_MissingMatcher(t *testing.T) {
	tests := []struct {
		name   string
		engine *Engine
	}{
		{name: "nil engine", engine: nil},
		{name: "nil matcher", engine: NewEngine(nil)},
		{name: "matcher returns nil", engine: NewEngine(matcherFunc(func(Preferences, Capacities) *Result { return nil }))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.engine.Run(Preferences{"A": {"S1"}}, Capacities{"S1": 1}, RunOptions{})
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, ErrMatcherUnavailable))
		})
	}
}

func TestEngine_CapacityViolation(t *testing.T) {
	greedy := matcherFunc(func(prefs Preferences, _ Capacities) *Result {
		all := make(map[ApplicantID]SlotID)
		for a := range prefs {
			all[a] = "S1"
		}
		return Summarize(all, nil, prefs)
	})

	out, err := NewEngine(greedy).Run(Preferences{"A": {"S1"}, "B": {"S1"}}, Capacities{"S1": 1}, RunOptions{})

	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Contains(t, err.Error(), "stable phase")
}

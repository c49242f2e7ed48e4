package assignment

import (
	"errors"
	"fmt"
)

// ErrMatcherUnavailable is returned by Engine.Run when no stable matcher is
// configured or the matcher produced nothing. Run returns it before any
// phase output exists.
var ErrMatcherUnavailable = errors.New("assignment: stable matcher unavailable")

// Phase names the step that placed an applicant.
type Phase string

const (
	PhaseStable  Phase = "stable"
	PhaseCascade Phase = "cascade"
	PhaseForced  Phase = "forced"
)

// RunOptions controls the optional steps of Engine.Run.
type RunOptions struct {
	// ForceFill runs Force after Cascade for whoever is still unassigned.
	ForceFill bool
}

// Outcome is the result of a full pipeline run.
type Outcome struct {
	Result *Result
	// Phases records, per placed applicant, the phase that placed it.
	Phases map[ApplicantID]Phase
	// Per-phase placement counts.
	StableAssigned  int
	CascadeAssigned int
	ForcedAssigned  int
}

// Engine chains the phases: stable matching, then a cascade when anyone is
// left over, then forced filling when requested.
type Engine struct {
	matcher Matcher
}

// NewEngine returns an Engine using m for the stable phase.
func NewEngine(m Matcher) *Engine {
	return &Engine{matcher: m}
}

// DefaultEngine returns an Engine backed by StableMatcher.
func DefaultEngine() *Engine {
	return NewEngine(StableMatcher{})
}

// Run executes the pipeline on prefs and caps. The capacity invariant is
// checked after every phase; a violation aborts the run with
// ErrCapacityExceeded.
func (e *Engine) Run(prefs Preferences, caps Capacities, opts RunOptions) (*Outcome, error) {
	if e == nil || e.matcher == nil {
		return nil, ErrMatcherUnavailable
	}

	res := e.matcher.Match(prefs, caps)
	if res == nil {
		return nil, fmt.Errorf("%w: matcher returned no result", ErrMatcherUnavailable)
	}
	if err := VerifyCapacity(res, caps); err != nil {
		return nil, fmt.Errorf("%s phase: %w", PhaseStable, err)
	}

	out := &Outcome{Phases: make(map[ApplicantID]Phase, len(res.Assignments))}
	out.StableAssigned = out.mark(res, PhaseStable)

	if len(res.Unassigned) > 0 {
		res = Cascade(res, prefs, caps, nil)
		if err := VerifyCapacity(res, caps); err != nil {
			return nil, fmt.Errorf("%s phase: %w", PhaseCascade, err)
		}
		out.CascadeAssigned = out.mark(res, PhaseCascade)
	}

	if opts.ForceFill && len(res.Unassigned) > 0 {
		forced := Force(res.Unassigned, caps, CountAssignments(res.Assignments))
		res = MergeForced(res, forced, prefs)
		if err := VerifyCapacity(res, caps); err != nil {
			return nil, fmt.Errorf("%s phase: %w", PhaseForced, err)
		}
		out.ForcedAssigned = out.mark(res, PhaseForced)
	}

	out.Result = res
	return out, nil
}

// mark tags applicants first placed in phase and returns how many there were.
func (o *Outcome) mark(res *Result, phase Phase) int {
	n := 0
	for a := range res.Assignments {
		if _, ok := o.Phases[a]; ok {
			continue
		}
		o.Phases[a] = phase
		n++
	}
	return n
}

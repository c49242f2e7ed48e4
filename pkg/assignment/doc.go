// Package assignment places applicants into capacity-bounded slots.
//
// The pipeline has three phases, each a pure function of its inputs:
//
//   - Match runs applicant-proposing deferred acceptance (hospital/resident
//     variant). A slot ranks proposers by the position they gave the slot in
//     their own list.
//   - Cascade walks the applicants left over by Match and gives each the first
//     slot in its list that still has room. It never revisits earlier choices.
//   - Force pairs the remaining applicants with leftover seats in slot order,
//     ignoring preferences.
//
// Summarize recomputes the statistics of a Result. Engine chains the phases
// and checks the capacity invariant after each one.
//
// Applicants are processed in ascending id order so that identical inputs
// always produce identical output. Nothing in this package logs or performs
// I/O.
package assignment

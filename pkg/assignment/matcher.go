package assignment

// Matcher produces the stable phase of the pipeline.
type Matcher interface {
	Match(prefs Preferences, caps Capacities) *Result
}

// StableMatcher is the built-in deferred acceptance Matcher.
type StableMatcher struct{}

var _ Matcher = StableMatcher{}

// Match runs StableMatcher on prefs and caps.
func Match(prefs Preferences, caps Capacities) *Result {
	return StableMatcher{}.Match(prefs, caps)
}

type holding struct {
	applicant ApplicantID
	rank      int
	order     int
}

// Match places applicants by applicant-proposing deferred acceptance.
//
// Free applicants wait in a FIFO queue seeded in ascending id order. An
// applicant proposes to the next slot in its list. A slot with room keeps the
// proposal. A full slot replaces its worst holder only when the proposer
// ranked the slot strictly better; the displaced applicant rejoins the back
// of the queue and continues from where it stopped. Among holders tied for
// worst, the one latest in id order is displaced first.
//
// Slots without capacity reject every proposal. Each applicant proposes to
// each list entry at most once.
func (StableMatcher) Match(prefs Preferences, caps Capacities) *Result {
	applicants := prefs.Applicants()

	order := make(map[ApplicantID]int, len(applicants))
	for i, a := range applicants {
		order[a] = i
	}

	cursor := make(map[ApplicantID]int, len(applicants))
	held := make(map[SlotID][]holding)

	queue := make([]ApplicantID, len(applicants))
	copy(queue, applicants)

	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]

		list := prefs[a]
		for cursor[a] < len(list) {
			slot := list[cursor[a]]
			cursor[a]++

			capacity := caps.Of(slot)
			if capacity == 0 {
				continue
			}

			proposal := holding{applicant: a, rank: prefs.Rank(a, slot), order: order[a]}
			holders := held[slot]
			if len(holders) < capacity {
				held[slot] = append(holders, proposal)
				break
			}

			w := worstHolding(holders)
			if proposal.rank < holders[w].rank {
				queue = append(queue, holders[w].applicant)
				holders[w] = proposal
				break
			}
		}
	}

	assignments := make(map[ApplicantID]SlotID, len(applicants))
	for slot, holders := range held {
		for _, h := range holders {
			assignments[h.applicant] = slot
		}
	}

	return summarize(assignments, nil, prefs)
}

func worstHolding(holders []holding) int {
	w := 0
	for i := 1; i < len(holders); i++ {
		h := holders[i]
		if h.rank > holders[w].rank || (h.rank == holders[w].rank && h.order > holders[w].order) {
			w = i
		}
	}
	return w
}

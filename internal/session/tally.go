package session

// Tally collects the votes of one round. The candidate set is frozen when the
// tally opens.
type Tally struct {
	candidates []string
	eligible   map[string]struct{}
	votes      map[string]string
}

func OpenTally(candidates []string) *Tally {
	t := &Tally{
		candidates: make([]string, 0, len(candidates)),
		eligible:   make(map[string]struct{}, len(candidates)),
		votes:      make(map[string]string, len(candidates)),
	}

	for _, id := range candidates {
		if _, dup := t.eligible[id]; dup {
			continue
		}
		t.eligible[id] = struct{}{}
		t.candidates = append(t.candidates, id)
	}

	return t
}

// Cast records voterID's choice, replacing any earlier vote by the same voter.
// A rejected vote leaves the tally untouched.
func (t *Tally) Cast(voterID, candidateID string) (complete bool, err error) {
	if _, ok := t.eligible[voterID]; !ok {
		return t.Complete(), ErrNotAPlayer
	}
	if voterID == candidateID {
		return t.Complete(), ErrSelfVote
	}
	if _, ok := t.eligible[candidateID]; !ok {
		return t.Complete(), ErrUnknownCandidate
	}

	t.votes[voterID] = candidateID

	return t.Complete(), nil
}

// Complete reports whether every candidate has voted.
func (t *Tally) Complete() bool {
	return len(t.votes) == len(t.candidates)
}

func (t *Tally) Votes() int {
	return len(t.votes)
}

// Candidates returns the frozen candidate ids in join order.
func (t *Tally) Candidates() []string {
	out := make([]string, len(t.candidates))
	copy(out, t.candidates)

	return out
}

func (t *Tally) IsCandidate(id string) bool {
	_, ok := t.eligible[id]

	return ok
}

func (t *Tally) HasVoted(id string) bool {
	_, ok := t.votes[id]

	return ok
}

// VoteOf returns the candidate voterID chose, if any.
func (t *Tally) VoteOf(voterID string) (string, bool) {
	c, ok := t.votes[voterID]

	return c, ok
}

// Pending returns the candidates that have not voted yet, in join order.
func (t *Tally) Pending() []string {
	var out []string
	for _, id := range t.candidates {
		if _, ok := t.votes[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

// Counts returns the number of votes received by every candidate, zeros
// included.
func (t *Tally) Counts() map[string]int {
	counts := make(map[string]int, len(t.candidates))
	for _, id := range t.candidates {
		counts[id] = 0
	}
	for _, choice := range t.votes {
		counts[choice]++
	}

	return counts
}

package scheduler

// Candidate describes an eligible faculty member at the moment a session is
// being filled.
type Candidate struct {
	FacultyID   string
	Assignments int
	Hours       int
}

// Policy chooses one faculty among eligible candidates. Candidates are
// ordered by faculty id and never empty. Implementations must be
// deterministic for identical input.
type Policy interface {
	Pick(session Session, candidates []Candidate) string
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(Session, []Candidate) string

// Pick implements Policy.
func (f PolicyFunc) Pick(s Session, c []Candidate) string { return f(s, c) }

// FewestAssignments prefers the candidate with the fewest sessions so far in
// the run, breaking ties by lowest faculty id.
type FewestAssignments struct{}

// Pick implements Policy.
func (FewestAssignments) Pick(_ Session, candidates []Candidate) string {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Assignments < best.Assignments || (c.Assignments == best.Assignments && c.FacultyID < best.FacultyID) {
			best = c
		}
	}
	return best.FacultyID
}

// LowestID always picks the lowest faculty id, filling one invigilator up to
// the daily cap before moving on.
type LowestID struct{}

// Pick implements Policy.
func (LowestID) Pick(_ Session, candidates []Candidate) string {
	best := candidates[0].FacultyID
	for _, c := range candidates[1:] {
		if c.FacultyID < best {
			best = c.FacultyID
		}
	}
	return best
}

// PolicyByName resolves a configured policy name. Unknown names fall back to
// FewestAssignments.
func PolicyByName(name string) Policy {
	switch name {
	case "lowest-id":
		return LowestID{}
	default:
		return FewestAssignments{}
	}
}

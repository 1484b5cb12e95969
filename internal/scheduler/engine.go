package scheduler

import "sort"

// Faculty is the engine's view of an invigilator.
type Faculty struct {
	ID     string
	Active bool
}

// Input is everything a single planning run needs. The engine never reads
// shared state, so identical input yields an identical plan.
type Input struct {
	Date         string
	Sessions     []Session
	Faculty      []Faculty
	Constraints  Constraints
	SessionHours int
}

// Assignment pairs a session with its invigilator. An empty FacultyID means
// nobody was eligible and the session is TBD.
type Assignment struct {
	Session
	FacultyID string
}

// Assigned reports whether the session has an invigilator.
func (a Assignment) Assigned() bool { return a.FacultyID != "" }

// Stats summarises a plan.
type Stats struct {
	Total      int
	Assigned   int
	Unassigned int
	// Repaired counts TBD sessions filled by moving an earlier assignment.
	Repaired int
	// Load is the number of sessions per faculty id. Faculty with no
	// sessions are omitted.
	Load map[string]int
}

// Plan is the ordered result of a run.
type Plan struct {
	Date        string
	Assignments []Assignment
	Stats       Stats
}

// Engine assigns invigilators to sessions under hard constraints.
type Engine struct {
	policy Policy
	repair bool
}

// Option customises an Engine.
type Option func(*Engine)

// WithPolicy replaces the default FewestAssignments policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithoutRepair disables the pass that moves earlier assignments to fill
// TBD sessions.
func WithoutRepair() Option {
	return func(e *Engine) { e.repair = false }
}

// New builds an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{policy: FewestAssignments{}, repair: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan runs the allocation for one date.
//
// Sessions are deduplicated and visited in slot then classroom order. For
// each one the eligible pool is every active faculty member who is not
// already in the same slot, who has no other session that day when
// NoSameDayRepeat is set, and whose hours stay within MaxHoursPerDay after
// taking it. The policy picks one; when the pool is empty the session is
// left TBD and planning continues.
func (e *Engine) Plan(in Input) (Plan, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return Plan{}, err
	}
	if err := in.Constraints.Validate(); err != nil {
		return Plan{}, err
	}
	if in.SessionHours <= 0 {
		in.SessionHours = 1
	}
	sessions, err := NormalizeSessions(in.Sessions)
	if err != nil {
		return Plan{}, err
	}

	st := newPlanState(sessions, in.Faculty, in.Constraints, in.SessionHours)
	for i := range sessions {
		st.fill(i, e.policy)
	}
	repaired := 0
	if e.repair {
		repaired = st.repairUnassigned(e.policy)
	}

	plan := Plan{Date: date, Assignments: make([]Assignment, len(sessions))}
	plan.Stats.Load = make(map[string]int)
	for i, s := range sessions {
		id := st.assigned[i]
		plan.Assignments[i] = Assignment{Session: s, FacultyID: id}
		if id == "" {
			plan.Stats.Unassigned++
			continue
		}
		plan.Stats.Assigned++
		plan.Stats.Load[id]++
	}
	plan.Stats.Total = len(sessions)
	plan.Stats.Repaired = repaired
	return plan, nil
}

// --- Plan state ---

type facultyLoad struct {
	id       string
	slots    map[Slot]bool
	hours    int
	sessions []int
}

type planState struct {
	sessions     []Session
	faculty      []*facultyLoad
	byID         map[string]*facultyLoad
	assigned     []string
	constraints  Constraints
	sessionHours int
}

func newPlanState(sessions []Session, pool []Faculty, c Constraints, sessionHours int) *planState {
	st := &planState{
		sessions:     sessions,
		byID:         make(map[string]*facultyLoad, len(pool)),
		assigned:     make([]string, len(sessions)),
		constraints:  c,
		sessionHours: sessionHours,
	}
	for _, f := range pool {
		if !f.Active || f.ID == "" {
			continue
		}
		if _, dup := st.byID[f.ID]; dup {
			continue
		}
		load := &facultyLoad{id: f.ID, slots: make(map[Slot]bool)}
		st.byID[f.ID] = load
		st.faculty = append(st.faculty, load)
	}
	sort.Slice(st.faculty, func(i, j int) bool { return st.faculty[i].id < st.faculty[j].id })
	return st
}

func (st *planState) canTake(f *facultyLoad, s Session) bool {
	if f.slots[s.Slot] {
		return false
	}
	if st.constraints.NoSameDayRepeat && len(f.sessions) > 0 {
		return false
	}
	return f.hours+st.sessionHours <= st.constraints.MaxHoursPerDay
}

func (st *planState) candidates(s Session, exclude *facultyLoad) []Candidate {
	var out []Candidate
	for _, f := range st.faculty {
		if f == exclude || !st.canTake(f, s) {
			continue
		}
		out = append(out, Candidate{FacultyID: f.id, Assignments: len(f.sessions), Hours: f.hours})
	}
	return out
}

func (st *planState) pick(p Policy, s Session, exclude *facultyLoad) *facultyLoad {
	cands := st.candidates(s, exclude)
	if len(cands) == 0 {
		return nil
	}
	chosen := st.byID[p.Pick(s, cands)]
	if chosen == nil || chosen == exclude || !st.canTake(chosen, s) {
		// A policy returning someone outside the pool must not break a hard
		// constraint.
		chosen = st.byID[FewestAssignments{}.Pick(s, cands)]
	}
	return chosen
}

func (st *planState) fill(i int, p Policy) {
	if f := st.pick(p, st.sessions[i], nil); f != nil {
		st.reserve(f, i)
	}
}

func (st *planState) reserve(f *facultyLoad, i int) {
	s := st.sessions[i]
	f.slots[s.Slot] = true
	f.hours += st.sessionHours
	f.sessions = append(f.sessions, i)
	st.assigned[i] = f.id
}

func (st *planState) release(f *facultyLoad, i int) {
	s := st.sessions[i]
	delete(f.slots, s.Slot)
	f.hours -= st.sessionHours
	for k, idx := range f.sessions {
		if idx == i {
			f.sessions = append(f.sessions[:k], f.sessions[k+1:]...)
			break
		}
	}
	st.assigned[i] = ""
}

// repairUnassigned tries to fill each TBD session by handing one of a capped
// faculty member's sessions to someone else and giving the freed capacity
// to the TBD session. Only single moves are attempted so the result stays
// close to the greedy plan.
func (st *planState) repairUnassigned(p Policy) int {
	repaired := 0
	for i, id := range st.assigned {
		if id != "" {
			continue
		}
		if st.repairOne(i, p) {
			repaired++
		}
	}
	return repaired
}

func (st *planState) repairOne(i int, p Policy) bool {
	target := st.sessions[i]
	if f := st.pick(p, target, nil); f != nil {
		st.reserve(f, i)
		return true
	}
	for _, a := range st.faculty {
		if a.slots[target.Slot] || len(a.sessions) == 0 {
			continue
		}
		held := append([]int(nil), a.sessions...)
		for _, j := range held {
			st.release(a, j)
			if !st.canTake(a, target) {
				st.reserve(a, j)
				continue
			}
			b := st.pick(p, st.sessions[j], a)
			if b == nil {
				st.reserve(a, j)
				continue
			}
			st.reserve(b, j)
			st.reserve(a, i)
			return true
		}
	}
	return false
}

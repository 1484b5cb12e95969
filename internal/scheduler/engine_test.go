package scheduler

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func faculty(ids ...string) []Faculty {
	out := make([]Faculty, len(ids))
	for i, id := range ids {
		out[i] = Faculty{ID: id, Active: true}
	}
	return out
}

func sessions(pairs ...string) []Session {
	out := make([]Session, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Session{Slot: Slot(pairs[i]), ClassroomCode: pairs[i+1]})
	}
	return out
}

func assertHardConstraints(t *testing.T, in Input, plan Plan) {
	t.Helper()
	hours := in.SessionHours
	if hours <= 0 {
		hours = 1
	}
	rooms := map[Session]bool{}
	bySlot := map[string]bool{}
	perDay := map[string]int{}
	active := map[string]bool{}
	for _, f := range in.Faculty {
		if f.Active {
			active[f.ID] = true
		}
	}
	for _, a := range plan.Assignments {
		require.False(t, rooms[a.Session], "duplicate session %s", a.Session)
		rooms[a.Session] = true
		if !a.Assigned() {
			continue
		}
		require.True(t, active[a.FacultyID], "inactive or unknown faculty %s", a.FacultyID)
		key := a.FacultyID + "|" + string(a.Slot)
		require.False(t, bySlot[key], "faculty %s double booked in %s", a.FacultyID, a.Slot)
		bySlot[key] = true
		perDay[a.FacultyID]++
	}
	for id, n := range perDay {
		require.LessOrEqual(t, n*hours, in.Constraints.MaxHoursPerDay, "faculty %s over daily cap", id)
		if in.Constraints.NoSameDayRepeat {
			require.Equal(t, 1, n, "faculty %s repeated on the same day", id)
		}
	}
	require.Equal(t, len(plan.Assignments), plan.Stats.Total)
	require.Equal(t, plan.Stats.Total, plan.Stats.Assigned+plan.Stats.Unassigned)
}

func TestPlanTwoRoomsTwoFaculty(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-101", "FN", "A-102"),
		Faculty:     faculty("F2", "F1"),
		Constraints: Constraints{MaxHoursPerDay: 1, NoSameDayRepeat: true},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)

	require.Len(t, plan.Assignments, 2)
	assert.Equal(t, Assignment{Session: Session{SlotFN, "A-101"}, FacultyID: "F1"}, plan.Assignments[0])
	assert.Equal(t, Assignment{Session: Session{SlotFN, "A-102"}, FacultyID: "F2"}, plan.Assignments[1])
	assert.Equal(t, map[string]int{"F1": 1, "F2": 1}, plan.Stats.Load)
	assertHardConstraints(t, in, plan)
}

func TestPlanLeavesTBDWhenPoolExhausted(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-101", "AN", "A-101", "EV", "A-101"),
		Faculty:     faculty("F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 1},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Stats.Total)
	assert.Equal(t, 2, plan.Stats.Assigned)
	assert.Equal(t, 1, plan.Stats.Unassigned)
	assert.Equal(t, "F1", plan.Assignments[0].FacultyID)
	assert.Equal(t, "F2", plan.Assignments[1].FacultyID)
	assert.False(t, plan.Assignments[2].Assigned())
	assertHardConstraints(t, in, plan)
}

func TestPlanSameSlotIsHardEvenWithoutRepeatRule(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-101", "FN", "A-102", "FN", "A-103"),
		Faculty:     faculty("F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 8},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Stats.Assigned)
	assert.Equal(t, 1, plan.Stats.Unassigned)
	assertHardConstraints(t, in, plan)
}

func TestPlanNoSameDayRepeat(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-101", "AN", "A-101", "EV", "A-101"),
		Faculty:     faculty("F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 3, NoSameDayRepeat: true},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Stats.Unassigned)
	assertHardConstraints(t, in, plan)

	in.Constraints.NoSameDayRepeat = false
	plan, err = New().Plan(in)
	require.NoError(t, err)
	assert.Zero(t, plan.Stats.Unassigned)
	assert.Equal(t, map[string]int{"F1": 2, "F2": 1}, plan.Stats.Load)
	assertHardConstraints(t, in, plan)
}

func TestPlanRespectsSessionHours(t *testing.T) {
	in := Input{
		Date:         "2025-04-10",
		Sessions:     sessions("FN", "A-101", "AN", "A-101"),
		Faculty:      faculty("F1"),
		Constraints:  Constraints{MaxHoursPerDay: 3},
		SessionHours: 2,
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Stats.Assigned)
	assertHardConstraints(t, in, plan)
}

func TestPlanDeduplicatesAndOrdersSessions(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("EV", "b-2", "FN", "C-3", "FN", "a-1", "FN", "A-1 "),
		Faculty:     faculty("F1", "F2", "F3"),
		Constraints: Constraints{MaxHoursPerDay: 2},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)

	got := make([]string, len(plan.Assignments))
	for i, a := range plan.Assignments {
		got[i] = a.Session.String()
	}
	assert.Equal(t, []string{"FN/A-1", "FN/C-3", "EV/B-2"}, got)
}

func TestPlanSkipsInactiveFaculty(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-101", "FN", "A-102"),
		Faculty:     []Faculty{{ID: "F1", Active: false}, {ID: "F2", Active: true}, {ID: "F2", Active: true}},
		Constraints: Constraints{MaxHoursPerDay: 4},
	}

	plan, err := New().Plan(in)
	require.NoError(t, err)
	assert.Equal(t, "F2", plan.Assignments[0].FacultyID)
	assert.False(t, plan.Assignments[1].Assigned())
}

func TestPlanIsDeterministic(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("AN", "B-1", "FN", "A-1", "FN", "A-2", "EV", "C-1", "AN", "B-2"),
		Faculty:     faculty("F3", "F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 2},
	}

	first, err := New().Plan(in)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New().Plan(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPlanRepairFillsSessionBlockedByGreedyChoice(t *testing.T) {
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "R1", "AN", "R1", "EV", "R1", "EV", "R2"),
		Faculty:     faculty("F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 2},
	}

	greedy, err := New(WithPolicy(LowestID{}), WithoutRepair()).Plan(in)
	require.NoError(t, err)
	assert.Equal(t, 1, greedy.Stats.Unassigned)

	repaired, err := New(WithPolicy(LowestID{})).Plan(in)
	require.NoError(t, err)
	assert.Zero(t, repaired.Stats.Unassigned)
	assert.Equal(t, 1, repaired.Stats.Repaired)
	assert.Equal(t, "F2", repaired.Assignments[0].FacultyID)
	assert.Equal(t, "F1", repaired.Assignments[3].FacultyID)
	assertHardConstraints(t, in, repaired)
}

func TestPlanRejectsInvalidInput(t *testing.T) {
	_, err := New().Plan(Input{Date: "", Constraints: Constraints{MaxHoursPerDay: 1}})
	assert.ErrorIs(t, err, ErrDateRequired)

	_, err = New().Plan(Input{Date: "2025-02-30", Constraints: Constraints{MaxHoursPerDay: 1}})
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = New().Plan(Input{Date: "2025-04-10", Constraints: Constraints{MaxHoursPerDay: 0}})
	assert.ErrorIs(t, err, ErrInvalidConstraint)

	_, err = New().Plan(Input{Date: "2025-04-10", Constraints: Constraints{MaxHoursPerDay: 1}, Sessions: sessions("XX", "A-1")})
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

func TestPlanMisbehavingPolicyCannotBreakConstraints(t *testing.T) {
	rogue := PolicyFunc(func(Session, []Candidate) string { return "F1" })
	in := Input{
		Date:        "2025-04-10",
		Sessions:    sessions("FN", "A-1", "FN", "A-2"),
		Faculty:     faculty("F1", "F2"),
		Constraints: Constraints{MaxHoursPerDay: 2},
	}

	plan, err := New(WithPolicy(rogue)).Plan(in)
	require.NoError(t, err)
	assert.Zero(t, plan.Stats.Unassigned)
	assertHardConstraints(t, in, plan)
}

func TestPlanRandomisedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		var ss []Session
		nSessions, nFaculty := rng.Intn(12)+1, rng.Intn(6)
		for i := 0; i < nSessions; i++ {
			ss = append(ss, Session{Slot: Slots[rng.Intn(len(Slots))], ClassroomCode: fmt.Sprintf("R-%d", rng.Intn(5))})
		}
		var pool []Faculty
		for i := 0; i < nFaculty; i++ {
			pool = append(pool, Faculty{ID: fmt.Sprintf("F%02d", i), Active: rng.Intn(5) > 0})
		}
		in := Input{
			Date:         "2025-04-10",
			Sessions:     ss,
			Faculty:      pool,
			Constraints:  Constraints{MaxHoursPerDay: rng.Intn(3) + 1, NoSameDayRepeat: rng.Intn(2) == 0},
			SessionHours: rng.Intn(2) + 1,
		}

		plan, err := New().Plan(in)
		require.NoError(t, err)
		assertHardConstraints(t, in, plan)

		activeCount := 0
		for _, f := range pool {
			if f.Active {
				activeCount++
			}
		}
		if activeCount >= len(ss) && in.Constraints.MaxHoursPerDay >= in.SessionHours {
			assert.Zero(t, plan.Stats.Unassigned, "run %d: enough faculty but sessions left TBD", run)
		}
	}
}

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFewestAssignmentsTieBreaksOnLowestID(t *testing.T) {
	s := Session{Slot: SlotFN, ClassroomCode: "A-101"}
	cands := []Candidate{
		{FacultyID: "F3", Assignments: 1},
		{FacultyID: "F2", Assignments: 0},
		{FacultyID: "F1", Assignments: 0},
	}
	assert.Equal(t, "F1", FewestAssignments{}.Pick(s, cands))

	cands[2].Assignments = 2
	assert.Equal(t, "F2", FewestAssignments{}.Pick(s, cands))
}

func TestLowestIDIgnoresLoad(t *testing.T) {
	cands := []Candidate{{FacultyID: "F2"}, {FacultyID: "F1", Assignments: 5}}
	assert.Equal(t, "F1", LowestID{}.Pick(Session{}, cands))
}

func TestPolicyByName(t *testing.T) {
	assert.IsType(t, LowestID{}, PolicyByName("lowest-id"))
	assert.IsType(t, FewestAssignments{}, PolicyByName(""))
	assert.IsType(t, FewestAssignments{}, PolicyByName("fewest-assignments"))
}

package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the canonical exam date format.
const DateLayout = "2006-01-02"

var (
	ErrDateRequired      = errors.New("date is required")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrInvalidConstraint = errors.New("max hours per day must be greater than 0")
	ErrInvalidSession    = errors.New("invalid session")
)

// Slot is a named exam period within a day.
type Slot string

const (
	SlotFN Slot = "FN"
	SlotAN Slot = "AN"
	SlotEV Slot = "EV"
)

// Slots lists every slot in chronological order.
var Slots = []Slot{SlotFN, SlotAN, SlotEV}

// Order returns the chronological rank of the slot, or -1 when unknown.
func (s Slot) Order() int {
	switch s {
	case SlotFN:
		return 0
	case SlotAN:
		return 1
	case SlotEV:
		return 2
	}
	return -1
}

// Label is the human readable name of the slot.
func (s Slot) Label() string {
	switch s {
	case SlotFN:
		return "Forenoon"
	case SlotAN:
		return "Afternoon"
	case SlotEV:
		return "Evening"
	}
	return string(s)
}

// Valid reports whether s is a known slot.
func (s Slot) Valid() bool { return s.Order() >= 0 }

// ParseSlot accepts FN/AN/EV case-insensitively.
func ParseSlot(raw string) (Slot, error) {
	slot := Slot(strings.ToUpper(strings.TrimSpace(raw)))
	if !slot.Valid() {
		return "", fmt.Errorf("%w %q: expected FN, AN or EV", ErrInvalidSlot, raw)
	}
	return slot, nil
}

// ParseDate validates a YYYY-MM-DD calendar date and returns it in canonical
// form.
func ParseDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrDateRequired
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, raw)
	}
	return t.Format(DateLayout), nil
}

// NormalizeClassroomCode trims and upper-cases a room code.
func NormalizeClassroomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Session is one (slot, classroom) unit on the planned date that needs
// exactly one invigilator.
type Session struct {
	Slot          Slot
	ClassroomCode string
}

func (s Session) String() string {
	return string(s.Slot) + "/" + s.ClassroomCode
}

func (s Session) less(o Session) bool {
	if s.Slot != o.Slot {
		return s.Slot.Order() < o.Slot.Order()
	}
	return s.ClassroomCode < o.ClassroomCode
}

// NormalizeSessions drops duplicates and returns sessions ordered by slot,
// then classroom code. Several exams sharing a hall collapse into one
// session.
func NormalizeSessions(in []Session) ([]Session, error) {
	seen := make(map[Session]struct{}, len(in))
	out := make([]Session, 0, len(in))
	for _, s := range in {
		s.ClassroomCode = NormalizeClassroomCode(s.ClassroomCode)
		if !s.Slot.Valid() {
			return nil, fmt.Errorf("%w: slot %q", ErrInvalidSlot, s.Slot)
		}
		if s.ClassroomCode == "" {
			return nil, fmt.Errorf("%w: empty classroom code in slot %s", ErrInvalidSession, s.Slot)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out, nil
}

// Constraints is the snapshot of scheduling rules a run is evaluated under.
type Constraints struct {
	MaxHoursPerDay  int
	NoSameDayRepeat bool
}

// Validate rejects a snapshot that would make every faculty ineligible.
func (c Constraints) Validate() error {
	if c.MaxHoursPerDay <= 0 {
		return ErrInvalidConstraint
	}
	return nil
}

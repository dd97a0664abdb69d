package session

import (
	"errors"
	"fmt"
)

// Type is the kind of teaching session.
type Type string

const (
	TypeLecture  Type = "lect"
	TypeLab      Type = "lab"
	TypeTutorial Type = "tut"
)

// Types lists all session types in display order.
var Types = []Type{TypeLecture, TypeLab, TypeTutorial}

// Valid reports whether t is a known session type.
func (t Type) Valid() bool {
	return t == TypeLecture || t == TypeLab || t == TypeTutorial
}

// Label returns the display name for t.
func (t Type) Label() string {
	switch t {
	case TypeLecture:
		return "Lecture"
	case TypeLab:
		return "Lab"
	case TypeTutorial:
		return "Tutorial"
	}
	return string(t)
}

// ParseType validates a wire session type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown session type %q", s)
	}
	return t, nil
}

// Form is the teacher's current selection for the next session.
type Form struct {
	ClassGroups []string `json:"classGroups"`
	Subject     string   `json:"subject"`
	Room        string   `json:"room"`
	Type        Type     `json:"type"`
	IsExtra     bool     `json:"isExtra"`
}

// DefaultForm returns the reset selection state.
func DefaultForm() Form {
	return Form{Type: TypeLecture}
}

// Descriptor describes one activated teaching session. The sessionId and
// date are fixed at activation; only Active flips at end.
type Descriptor struct {
	ClassGroups []string `json:"classGroups"`
	Subject     string   `json:"subject"`
	Room        string   `json:"room"`
	Type        Type     `json:"type"`
	IsExtra     bool     `json:"isExtra"`
	Date        string   `json:"date"`
	SessionID   string   `json:"sessionId"`
	Active      bool     `json:"active"`
}

// Validation errors, rejected before any store call.
var (
	ErrIncompleteForm  = errors.New("class groups, subject and room are required")
	ErrInvalidType     = errors.New("session type must be lect, lab or tut")
	ErrAlreadyActive   = errors.New("a session is already active")
	ErrNoActiveSession = errors.New("no active session")
)

package types

import "strings"

// Mode represents the user's declared activity context
type Mode string

const (
	ModeWork    Mode = "work"
	ModeStudy   Mode = "study"
	ModeLeisure Mode = "leisure"
)

// Valid reports whether the mode is one of the three known values
func (m Mode) Valid() bool {
	switch m {
	case ModeWork, ModeStudy, ModeLeisure:
		return true
	}
	return false
}

// Title returns the capitalized form used in user-facing notifications
func (m Mode) Title() string {
	s := string(m)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Submode refines study mode; empty for other modes
type Submode string

const (
	SubmodeInterview Submode = "interview"
	SubmodeSchool    Submode = "school"
)

// Valid reports whether the submode is a known value
func (s Submode) Valid() bool {
	return s == SubmodeInterview || s == SubmodeSchool
}

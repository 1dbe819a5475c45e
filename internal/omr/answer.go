package omr

import (
	"encoding/json"
	"fmt"
	"strings"
)

const choiceLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ChoiceLetter returns the letter for a zero-based choice index.
func ChoiceLetter(choice int) string {
	if choice < 0 || choice >= len(choiceLetters) {
		return "?"
	}
	return choiceLetters[choice : choice+1]
}

// ParseChoice converts a letter (any case) to a zero-based choice index.
func ParseChoice(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 1 {
		return -1, fmt.Errorf("choice %q is not a single letter", s)
	}
	i := strings.IndexByte(choiceLetters, strings.ToUpper(s)[0])
	if i < 0 {
		return -1, fmt.Errorf("choice %q is not a letter", s)
	}
	return i, nil
}

// AnswerStatus tags a ResolvedAnswer.
type AnswerStatus int

const (
	// statusUnset marks a ResolvedAnswer that was never resolved.
	statusUnset AnswerStatus = iota
	// StatusChoice means exactly one choice was read.
	StatusChoice
	// StatusBlank means no bubble was filled.
	StatusBlank
	// StatusAmbiguous means several bubbles were filled with no clear winner.
	StatusAmbiguous
)

// ResolvedAnswer is the reading of one question: a choice, BLANK or
// AMBIGUOUS. The zero value is unresolved; Score rejects it.
type ResolvedAnswer struct {
	Status AnswerStatus
	// Choice is the zero-based choice index; only meaningful when Status is
	// StatusChoice.
	Choice int
}

// Blank and Ambiguous are the two non-choice outcomes.
var (
	Blank     = ResolvedAnswer{Status: StatusBlank, Choice: -1}
	Ambiguous = ResolvedAnswer{Status: StatusAmbiguous, Choice: -1}
)

// Chosen returns the answer for a single read choice.
func Chosen(choice int) ResolvedAnswer {
	return ResolvedAnswer{Status: StatusChoice, Choice: choice}
}

// IsBlank reports whether no bubble was filled.
func (a ResolvedAnswer) IsBlank() bool { return a.Status == StatusBlank }

// IsAmbiguous reports whether several bubbles competed.
func (a ResolvedAnswer) IsAmbiguous() bool { return a.Status == StatusAmbiguous }

// IsResolved reports whether the answer holds one of the three outcomes.
func (a ResolvedAnswer) IsResolved() bool { return a.Status != statusUnset }

// String returns "A".."Z", "BLANK" or "AMBIGUOUS", and "UNSET" for the zero
// value.
func (a ResolvedAnswer) String() string {
	switch a.Status {
	case statusUnset:
		return "UNSET"
	case StatusBlank:
		return "BLANK"
	case StatusAmbiguous:
		return "AMBIGUOUS"
	}
	return ChoiceLetter(a.Choice)
}

// ParseAnswer is the inverse of String.
func ParseAnswer(s string) (ResolvedAnswer, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BLANK", "":
		return Blank, nil
	case "AMBIGUOUS":
		return Ambiguous, nil
	}
	c, err := ParseChoice(s)
	if err != nil {
		return ResolvedAnswer{}, err
	}
	return Chosen(c), nil
}

// MarshalJSON encodes the answer as its String form.
func (a ResolvedAnswer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the strings ParseAnswer accepts.
func (a *ResolvedAnswer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAnswer(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

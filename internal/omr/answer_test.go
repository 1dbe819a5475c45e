package omr

import (
	"encoding/json"
	"testing"
)

func TestChoiceLetters(t *testing.T) {
	if ChoiceLetter(0) != "A" || ChoiceLetter(3) != "D" {
		t.Errorf("unexpected letters %s %s", ChoiceLetter(0), ChoiceLetter(3))
	}
	if ChoiceLetter(-1) != "?" || ChoiceLetter(26) != "?" {
		t.Error("out-of-range choices should print as ?")
	}

	for in, want := range map[string]int{"a": 0, "B": 1, " d ": 3} {
		got, err := ParseChoice(in)
		if err != nil || got != want {
			t.Errorf("ParseChoice(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "AB", "1", "?"} {
		if _, err := ParseChoice(in); err == nil {
			t.Errorf("ParseChoice(%q) should fail", in)
		}
	}
}

func TestResolvedAnswerString(t *testing.T) {
	cases := map[string]ResolvedAnswer{
		"C":         Chosen(2),
		"BLANK":     Blank,
		"AMBIGUOUS": Ambiguous,
	}
	for want, a := range cases {
		if a.String() != want {
			t.Errorf("String() = %q, want %q", a.String(), want)
		}
		back, err := ParseAnswer(want)
		if err != nil || back != a {
			t.Errorf("ParseAnswer(%q) = %+v, %v", want, back, err)
		}
	}
}

func TestResolvedAnswerZeroValue(t *testing.T) {
	var a ResolvedAnswer
	if a.IsResolved() {
		t.Error("zero value reports resolved")
	}
	if a == Chosen(0) {
		t.Error("zero value equals choice A")
	}
	if a.String() != "UNSET" {
		t.Errorf("String() = %q, want UNSET", a.String())
	}
	if _, err := ParseAnswer("UNSET"); err == nil {
		t.Error("ParseAnswer accepted UNSET")
	}
	for _, r := range []ResolvedAnswer{Chosen(0), Blank, Ambiguous} {
		if !r.IsResolved() {
			t.Errorf("%v reports unresolved", r)
		}
	}
}

func TestResolvedAnswerJSON(t *testing.T) {
	in := []ResolvedAnswer{Chosen(1), Blank, Ambiguous}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `["B","BLANK","AMBIGUOUS"]` {
		t.Errorf("JSON = %s", data)
	}

	var out []ResolvedAnswer
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("answer %d = %+v, want %+v", i, out[i], in[i])
		}
	}

	var bad ResolvedAnswer
	if err := json.Unmarshal([]byte(`"XY"`), &bad); err == nil {
		t.Error("expected error for invalid answer")
	}
}

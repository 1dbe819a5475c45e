package omr

import (
	"errors"
	"testing"
)

// uniformKey answers every question of cfg with the same choice.
func uniformKey(cfg GridConfig, variant string, choice int) *AnswerKey {
	answers := make(map[string][]int, len(cfg.Subjects))
	for _, s := range cfg.Subjects {
		qs := make([]int, cfg.QuestionsPerSubject)
		for i := range qs {
			qs[i] = choice
		}
		answers[s] = qs
	}
	return NewAnswerKey(variant, answers)
}

func TestAnswerKeyLookup(t *testing.T) {
	k := NewAnswerKey("A", map[string][]int{"Python": {0, 3, NoAnswer}})
	if c, ok := k.Answer("Python", 2); !ok || c != 3 {
		t.Errorf("Answer(Python, 2) = %d, %v", c, ok)
	}
	if _, ok := k.Answer("Python", 3); ok {
		t.Error("NoAnswer entry should not be found")
	}
	if _, ok := k.Answer("Python", 0); ok {
		t.Error("question 0 should not be found")
	}
	if _, ok := k.Answer("MySQL", 1); ok {
		t.Error("unknown subject should not be found")
	}
}

func TestAnswerKeyCopiesInput(t *testing.T) {
	src := map[string][]int{"Python": {1, 2}}
	k := NewAnswerKey("A", src)
	src["Python"][0] = 3
	if c, _ := k.Answer("Python", 1); c != 1 {
		t.Errorf("key changed with its input: got %d", c)
	}
}

func TestAnswerKeyValidate(t *testing.T) {
	cfg := DefaultGridConfig()
	if err := uniformKey(cfg, "A", 1).Validate(cfg); err != nil {
		t.Fatalf("complete key rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(map[string][]int)
		want   string
	}{
		{"missing subject", func(m map[string][]int) { delete(m, "Statistics") }, "Statistics"},
		{"short subject", func(m map[string][]int) { m["MySQL"] = m["MySQL"][:19] }, "MySQL"},
		{"missing answer", func(m map[string][]int) { m["Python"][4] = NoAnswer }, "Python"},
		{"choice out of range", func(m map[string][]int) { m["Power BI"][0] = 4 }, "Power BI"},
		{"unknown subject", func(m map[string][]int) { m["Chemistry"] = make([]int, 20) }, "Chemistry"},
	}
	for _, tc := range cases {
		answers := make(map[string][]int)
		for _, s := range cfg.Subjects {
			answers[s] = make([]int, cfg.QuestionsPerSubject)
		}
		tc.mutate(answers)

		err := NewAnswerKey("A", answers).Validate(cfg)
		var keyErr *InvalidKeyError
		if !errors.As(err, &keyErr) {
			t.Errorf("%s: got %v, want *InvalidKeyError", tc.name, err)
			continue
		}
		if keyErr.Subject != tc.want {
			t.Errorf("%s: Subject = %q, want %q", tc.name, keyErr.Subject, tc.want)
		}
	}

	var nilKey *AnswerKey
	if err := nilKey.Validate(cfg); Kind(err) != KindInvalidKey {
		t.Errorf("nil key: got %v", err)
	}
}

func TestKeySet(t *testing.T) {
	cfg := DefaultGridConfig()
	a := uniformKey(cfg, "A", 0)
	b := uniformKey(cfg, "B", 1)

	ks, err := NewKeySet(a, b)
	if err != nil {
		t.Fatalf("NewKeySet failed: %v", err)
	}
	if ks.Default() != a {
		t.Error("first key should be the default")
	}
	if got, ok := ks.Get("B"); !ok || got != b {
		t.Error("Get(B) failed")
	}
	if v := ks.Variants(); len(v) != 2 || v[0] != "A" || v[1] != "B" {
		t.Errorf("Variants = %v", v)
	}
	if err := ks.Validate(cfg); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	if _, err := NewKeySet(a, uniformKey(cfg, "A", 2)); Kind(err) != KindInvalidKey {
		t.Errorf("duplicate variant: got %v", err)
	}
	if _, err := NewKeySet(); Kind(err) != KindInvalidKey {
		t.Errorf("empty set: got %v", err)
	}

	var empty *KeySet
	if err := empty.Validate(cfg); Kind(err) != KindInvalidKey {
		t.Errorf("nil set: got %v", err)
	}
}

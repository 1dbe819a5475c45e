package omr

import (
	"fmt"
	"sort"
)

// NoAnswer marks a key entry that was never filled in.
const NoAnswer = -1

// AnswerKey maps (subject, question) to the correct zero-based choice for one
// key variant. It is immutable once built.
type AnswerKey struct {
	variant string
	answers map[string][]int
}

// NewAnswerKey copies answers into a new key. answers[subject][i] is the
// choice for question i+1; NoAnswer marks a missing entry.
func NewAnswerKey(variant string, answers map[string][]int) *AnswerKey {
	k := &AnswerKey{
		variant: variant,
		answers: make(map[string][]int, len(answers)),
	}
	for subject, choices := range answers {
		k.answers[subject] = append([]int(nil), choices...)
	}
	return k
}

// Variant returns the variant name, e.g. "A".
func (k *AnswerKey) Variant() string { return k.variant }

// Answer returns the correct choice for a 1-based question number.
func (k *AnswerKey) Answer(subject string, question int) (int, bool) {
	choices, ok := k.answers[subject]
	if !ok || question < 1 || question > len(choices) {
		return NoAnswer, false
	}
	c := choices[question-1]
	return c, c != NoAnswer
}

// Subjects returns the subjects present in the key, sorted.
func (k *AnswerKey) Subjects() []string {
	out := make([]string, 0, len(k.answers))
	for s := range k.answers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Validate checks that the key answers every question of cfg with a valid
// choice and names no subject the layout does not have.
func (k *AnswerKey) Validate(cfg GridConfig) error {
	if k == nil {
		return &InvalidKeyError{Reason: "no answer key"}
	}

	known := make(map[string]bool, len(cfg.Subjects))
	for _, subject := range cfg.Subjects {
		known[subject] = true
		choices, ok := k.answers[subject]
		if !ok {
			return &InvalidKeyError{Reason: "missing subject", Variant: k.variant, Subject: subject}
		}
		if len(choices) != cfg.QuestionsPerSubject {
			return &InvalidKeyError{
				Reason:  fmt.Sprintf("has %d questions, want %d", len(choices), cfg.QuestionsPerSubject),
				Variant: k.variant,
				Subject: subject,
			}
		}
		for i, c := range choices {
			if c == NoAnswer {
				return &InvalidKeyError{Reason: "missing answer", Variant: k.variant, Subject: subject, Question: i + 1}
			}
			if c < 0 || c >= cfg.Choices {
				return &InvalidKeyError{
					Reason:   fmt.Sprintf("choice %s out of range", ChoiceLetter(c)),
					Variant:  k.variant,
					Subject:  subject,
					Question: i + 1,
				}
			}
		}
	}
	for _, subject := range k.Subjects() {
		if !known[subject] {
			return &InvalidKeyError{Reason: "unknown subject", Variant: k.variant, Subject: subject}
		}
	}
	return nil
}

// KeySet holds the named variants of an exam's answer key.
type KeySet struct {
	order []string
	keys  map[string]*AnswerKey
}

// NewKeySet groups keys by variant. The first key is the default variant.
func NewKeySet(keys ...*AnswerKey) (*KeySet, error) {
	if len(keys) == 0 {
		return nil, &InvalidKeyError{Reason: "no answer key"}
	}
	ks := &KeySet{keys: make(map[string]*AnswerKey, len(keys))}
	for _, k := range keys {
		if k == nil {
			return nil, &InvalidKeyError{Reason: "nil answer key"}
		}
		if _, dup := ks.keys[k.variant]; dup {
			return nil, &InvalidKeyError{Reason: "duplicate variant", Variant: k.variant}
		}
		ks.keys[k.variant] = k
		ks.order = append(ks.order, k.variant)
	}
	return ks, nil
}

// SingleKey wraps one key into a set.
func SingleKey(k *AnswerKey) *KeySet {
	ks, err := NewKeySet(k)
	if err != nil {
		return &KeySet{keys: map[string]*AnswerKey{}}
	}
	return ks
}

// Get returns the key for a variant.
func (ks *KeySet) Get(variant string) (*AnswerKey, bool) {
	k, ok := ks.keys[variant]
	return k, ok
}

// Default returns the first variant, or nil for an empty set.
func (ks *KeySet) Default() *AnswerKey {
	if len(ks.order) == 0 {
		return nil
	}
	return ks.keys[ks.order[0]]
}

// Variants lists variant names in insertion order.
func (ks *KeySet) Variants() []string {
	return append([]string(nil), ks.order...)
}

// Validate validates every variant against cfg.
func (ks *KeySet) Validate(cfg GridConfig) error {
	if ks == nil || len(ks.order) == 0 {
		return &InvalidKeyError{Reason: "no answer key"}
	}
	for _, v := range ks.order {
		if err := ks.keys[v].Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}

package omr

import "fmt"

// ScoringRule configures optional negative marking.
type ScoringRule struct {
	// WrongPenalty is subtracted from the net score for every definite wrong
	// choice. BLANK and AMBIGUOUS answers are never penalized.
	WrongPenalty float64 `json:"wrong_penalty,omitempty"`
}

// QuestionResult is one line of the audit trail.
type QuestionResult struct {
	Subject string `json:"subject"`
	// Question is 1-based within the subject; Number is 1-based over the
	// whole sheet.
	Question int            `json:"question"`
	Number   int            `json:"number"`
	Answer   ResolvedAnswer `json:"answer"`
	Expected string         `json:"expected"`
	Correct  bool           `json:"correct"`
	// FillScores holds the per-choice scores the answer was resolved from.
	FillScores []float64 `json:"fill_scores,omitempty"`
}

// SubjectScore summarizes one subject column.
type SubjectScore struct {
	Subject   string  `json:"subject"`
	Correct   int     `json:"correct"`
	Wrong     int     `json:"wrong"`
	Blank     int     `json:"blank"`
	Ambiguous int     `json:"ambiguous"`
	Questions int     `json:"questions"`
	Net       float64 `json:"net"`
}

// ScoreReport is the result of evaluating one sheet.
type ScoreReport struct {
	Subjects  []SubjectScore   `json:"subjects"`
	Total     int              `json:"total"`
	MaxTotal  int              `json:"max_total"`
	Net       float64          `json:"net"`
	Variant   string           `json:"variant"`
	SheetID   string           `json:"sheet_id,omitempty"`
	Questions []QuestionResult `json:"questions"`
}

// SubjectScore returns the named subject's score.
func (r *ScoreReport) SubjectScore(subject string) (SubjectScore, bool) {
	for _, s := range r.Subjects {
		if s.Subject == subject {
			return s, true
		}
	}
	return SubjectScore{}, false
}

// BlankCount totals BLANK answers over all subjects.
func (r *ScoreReport) BlankCount() int {
	n := 0
	for _, s := range r.Subjects {
		n += s.Blank
	}
	return n
}

// AmbiguousCount totals AMBIGUOUS answers over all subjects.
func (r *ScoreReport) AmbiguousCount() int {
	n := 0
	for _, s := range r.Subjects {
		n += s.Ambiguous
	}
	return n
}

// Score compares resolved answers with a key.
//
// answers must hold exactly cfg.TotalQuestions() entries, subject major. A
// question is correct only when the answer is a choice equal to the key's;
// BLANK and AMBIGUOUS always count as incorrect.
func Score(cfg GridConfig, answers []ResolvedAnswer, key *AnswerKey, rule ScoringRule) (*ScoreReport, error) {
	if len(answers) != cfg.TotalQuestions() {
		return nil, fmt.Errorf("got %d answers, layout has %d questions", len(answers), cfg.TotalQuestions())
	}
	if err := key.Validate(cfg); err != nil {
		return nil, err
	}
	for i, ans := range answers {
		if !ans.IsResolved() {
			return nil, fmt.Errorf("question %d has no resolved answer", i+1)
		}
		if ans.Status == StatusChoice && (ans.Choice < 0 || ans.Choice >= cfg.Choices) {
			return nil, fmt.Errorf("question %d: choice %d out of range", i+1, ans.Choice)
		}
	}

	report := &ScoreReport{
		Subjects:  make([]SubjectScore, len(cfg.Subjects)),
		MaxTotal:  cfg.TotalQuestions(),
		Variant:   key.Variant(),
		Questions: make([]QuestionResult, 0, len(answers)),
	}

	for s, subject := range cfg.Subjects {
		sc := SubjectScore{Subject: subject, Questions: cfg.QuestionsPerSubject}
		for q := 0; q < cfg.QuestionsPerSubject; q++ {
			n := s*cfg.QuestionsPerSubject + q
			ans := answers[n]
			want, _ := key.Answer(subject, q+1)

			correct := ans.Status == StatusChoice && ans.Choice == want
			switch {
			case correct:
				sc.Correct++
			case ans.IsBlank():
				sc.Blank++
			case ans.IsAmbiguous():
				sc.Ambiguous++
			default:
				sc.Wrong++
			}

			report.Questions = append(report.Questions, QuestionResult{
				Subject:  subject,
				Question: q + 1,
				Number:   n + 1,
				Answer:   ans,
				Expected: ChoiceLetter(want),
				Correct:  correct,
			})
		}
		sc.Net = float64(sc.Correct) - rule.WrongPenalty*float64(sc.Wrong)
		report.Subjects[s] = sc
		report.Total += sc.Correct
		report.Net += sc.Net
	}

	return report, nil
}

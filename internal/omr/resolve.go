package omr

// Default decision parameters.
const (
	DefaultFillThreshold   = 0.35
	DefaultAmbiguityMargin = 0.08
)

// Resolve turns the fill scores of one question into an answer.
//
// A choice is marked when its score is strictly above threshold. No marks
// give BLANK and one mark gives that choice. With two or more marks the
// highest wins only if it leads the runner-up by at least margin; otherwise
// the question is AMBIGUOUS. Equal top scores always resolve to AMBIGUOUS.
func Resolve(scores []float64, threshold, margin float64) ResolvedAnswer {
	top, second := -1, -1
	marked := 0
	for i, s := range scores {
		if s <= threshold {
			continue
		}
		marked++
		switch {
		case top < 0 || s > scores[top]:
			second = top
			top = i
		case second < 0 || s > scores[second]:
			second = i
		}
	}

	switch {
	case marked == 0:
		return Blank
	case marked == 1:
		return Chosen(top)
	case scores[top]-scores[second] < margin || scores[top] == scores[second]:
		return Ambiguous
	}
	return Chosen(top)
}

// ResolveAll resolves every question of a flat score slice laid out subject
// major, then question, then choice (see CellIndex).
func ResolveAll(cfg GridConfig, scores []float64, threshold, margin float64) []ResolvedAnswer {
	answers := make([]ResolvedAnswer, cfg.TotalQuestions())
	for q := range answers {
		start := q * cfg.Choices
		answers[q] = Resolve(scores[start:start+cfg.Choices], threshold, margin)
	}
	return answers
}

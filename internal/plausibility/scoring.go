package plausibility

// Verdict is the categorical plausibility label.
type Verdict string

const (
	VerdictOK           Verdict = "OK"
	VerdictQuestionable Verdict = "QUESTIONABLE"
	VerdictImplausible  Verdict = "IMPLAUSIBLE"
)

// Combination method labels recorded in evidence.
const (
	MethodHeuristicsOnly = "heuristics_only"
	MethodBlend          = "blend_0.6_model_0.4_heuristic"
)

const (
	modelWeight     = 0.6
	heuristicWeight = 0.4
)

// CombineScores blends the heuristic score with an optional secondary score.
// A nil secondary score returns the heuristic score unchanged.
func CombineScores(heuristic float64, model *float64) (float64, string) {
	if model == nil {
		return heuristic, MethodHeuristicsOnly
	}
	return clamp01(modelWeight*(*model) + heuristicWeight*heuristic), MethodBlend
}

// ClassifyVerdict maps a score onto a verdict using inclusive lower bounds.
func ClassifyVerdict(score, okThreshold, questionableThreshold float64) Verdict {
	switch {
	case score >= okThreshold:
		return VerdictOK
	case score >= questionableThreshold:
		return VerdictQuestionable
	default:
		return VerdictImplausible
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package models

var confidenceWeights = map[Confidence]float64{
	ConfidenceHigh:   3,
	ConfidenceMedium: 2,
	ConfidenceLow:    1,
}

// InferConfidence derives an overall confidence from the findings' own levels.
// Unknown levels weigh as low. An empty slice infers low.
func InferConfidence(findings []Finding) Confidence {
	if len(findings) == 0 {
		return ConfidenceLow
	}
	total := 0.0
	for _, f := range findings {
		w, ok := confidenceWeights[f.Confidence]
		if !ok {
			w = confidenceWeights[ConfidenceLow]
		}
		total += w
	}
	avg := total / float64(len(findings))
	switch {
	case avg >= 2.5:
		return ConfidenceHigh
	case avg >= 1.75:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

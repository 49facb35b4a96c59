package consolidate

import "github.com/beliczki/transcriber/internal/transcript"

// Tier thresholds for agreeing word pairs.
const (
	highConfidence   = 0.9
	mediumConfidence = 0.7
)

// Classify maps a per-word confidence pair and agreement flag to a quality
// tier. Disagreement always dominates: a pair the engines dispute is
// low_disagreement no matter how confident either engine was.
func Classify(confA, confB float64, agree bool) transcript.Tier {
	if !agree {
		return transcript.TierLowDisagreement
	}
	avg := (confA + confB) / 2
	switch {
	case avg >= highConfidence:
		return transcript.TierHigh
	case avg >= mediumConfidence:
		return transcript.TierMedium
	default:
		return transcript.TierLowConfidence
	}
}

// ClassifyPair applies Classify to an alignment pair. A gap (one engine
// produced no token at this position) counts as confidence 0 on the absent
// side and never agrees.
func ClassifyPair(p transcript.AlignmentPair) transcript.Tier {
	var confA, confB float64
	if p.A != nil {
		confA = p.A.Confidence
	}
	if p.B != nil {
		confB = p.B.Confidence
	}
	agree := p.Agree && p.A != nil && p.B != nil
	return Classify(confA, confB, agree)
}

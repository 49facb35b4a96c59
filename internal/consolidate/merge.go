// Package consolidate turns an aligned pair of engine transcripts into a
// single consolidated transcript with per-word quality tiers. The merge here
// is the deterministic path; an arbiter, when configured and healthy, may
// supersede individual word choices but never this code's structure.
package consolidate

import (
	"strings"

	"github.com/beliczki/transcriber/internal/transcript"
)

// Fallback merges two aligned transcripts without an arbiter. For every
// agreeing pair the shared token is emitted; for every disputed pair the
// token with the higher word confidence wins, ties going to the engine named
// primary. It is total: given any alignment it always produces a transcript.
func Fallback(a, b *transcript.EngineTranscript, pairs []transcript.AlignmentPair, primary string) *transcript.ConsolidatedTranscript {
	words := make([]transcript.ConsolidatedWord, 0, len(pairs))
	disagreements := make([]transcript.Disagreement, 0)

	for _, p := range pairs {
		if p.Agree {
			words = append(words, transcript.ConsolidatedWord{
				Word:       p.A.Word,
				Confidence: (p.A.Confidence + p.B.Confidence) / 2,
				Tier:       ClassifyPair(p),
				Agree:      true,
			})
			continue
		}

		chosen := pickWord(p, primary)
		alternatives := make(map[string]string, 2)
		options := make([]string, 0, 2)
		if p.A != nil {
			alternatives[p.A.Engine] = p.A.Word
			options = append(options, p.A.Word)
		}
		if p.B != nil {
			alternatives[p.B.Engine] = p.B.Word
			options = append(options, p.B.Word)
		}

		words = append(words, transcript.ConsolidatedWord{
			Word:         chosen.Word,
			Confidence:   chosen.Confidence,
			Tier:         ClassifyPair(p),
			Agree:        false,
			Alternatives: alternatives,
		})
		disagreements = append(disagreements, transcript.Disagreement{
			Position:   p.Position,
			Options:    options,
			Chosen:     chosen.Word,
			ResolvedBy: transcript.ResolutionFallback,
		})
	}

	return &transcript.ConsolidatedTranscript{
		Words:         words,
		Text:          joinWords(words),
		Confidence:    overallConfidence(words),
		Disagreements: disagreements,
		IsFinal:       a.IsFinal && b.IsFinal,
		Arbiter:       string(transcript.ResolutionFallback),
	}
}

// pickWord resolves a disputed or gapped pair. Gaps resolve to the side that
// produced a token; otherwise the higher word confidence wins, with the
// primary engine breaking exact ties.
func pickWord(p transcript.AlignmentPair, primary string) *transcript.WordInfo {
	switch {
	case p.A == nil:
		return p.B
	case p.B == nil:
		return p.A
	case p.A.Confidence > p.B.Confidence:
		return p.A
	case p.B.Confidence > p.A.Confidence:
		return p.B
	case p.B.Engine == primary:
		return p.B
	default:
		return p.A
	}
}

// Degraded wraps a lone engine transcript when only one engine produced a
// usable result. No alignment ran, so there are no disagreements; tiers come
// from the single engine's own word confidences.
func Degraded(t *transcript.EngineTranscript) *transcript.ConsolidatedTranscript {
	words := make([]transcript.ConsolidatedWord, len(t.Words))
	for i, w := range t.Words {
		words[i] = transcript.ConsolidatedWord{
			Word:       w.Word,
			Confidence: w.Confidence,
			Tier:       Classify(w.Confidence, w.Confidence, true),
			Agree:      true,
		}
	}
	return &transcript.ConsolidatedTranscript{
		Words:         words,
		Text:          t.Text,
		Confidence:    t.Confidence,
		Disagreements: []transcript.Disagreement{},
		IsFinal:       t.IsFinal,
		Arbiter:       string(transcript.ResolutionFallback),
		Degraded:      true,
	}
}

func joinWords(words []transcript.ConsolidatedWord) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}

func overallConfidence(words []transcript.ConsolidatedWord) float64 {
	if len(words) == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

package consolidate

import "github.com/beliczki/transcriber/internal/transcript"

// Arbitrated merges aligned transcripts using per-position word choices made
// by an arbiter. Positions the arbiter left undecided resolve by the same
// deterministic rule as Fallback, so a partial arbiter answer still yields a
// complete transcript.
func Arbitrated(a, b *transcript.EngineTranscript, pairs []transcript.AlignmentPair, choices map[int]string, arbiterName, rationale, primary string) *transcript.ConsolidatedTranscript {
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

		word, confidence, resolvedBy := resolvePair(p, choices, primary)
		words = append(words, transcript.ConsolidatedWord{
			Word:         word,
			Confidence:   confidence,
			Tier:         ClassifyPair(p),
			Agree:        false,
			Alternatives: alternatives,
		})
		disagreements = append(disagreements, transcript.Disagreement{
			Position:   p.Position,
			Options:    options,
			Chosen:     word,
			ResolvedBy: resolvedBy,
		})
	}

	return &transcript.ConsolidatedTranscript{
		Words:         words,
		Text:          joinWords(words),
		Confidence:    overallConfidence(words),
		Disagreements: disagreements,
		IsFinal:       a.IsFinal && b.IsFinal,
		Arbiter:       arbiterName,
		Rationale:     rationale,
	}
}

// resolvePair picks the word for a disputed position. An arbiter choice wins
// when present; its confidence is taken from whichever engine proposed that
// word, or the mean of both sides for a reading neither engine produced.
func resolvePair(p transcript.AlignmentPair, choices map[int]string, primary string) (string, float64, transcript.Resolution) {
	choice, ok := choices[p.Position]
	if !ok {
		w := pickWord(p, primary)
		return w.Word, w.Confidence, transcript.ResolutionFallback
	}
	if p.A != nil && choice == p.A.Word {
		return choice, p.A.Confidence, transcript.ResolutionArbiter
	}
	if p.B != nil && choice == p.B.Word {
		return choice, p.B.Confidence, transcript.ResolutionArbiter
	}
	var sum float64
	var n int
	if p.A != nil {
		sum += p.A.Confidence
		n++
	}
	if p.B != nil {
		sum += p.B.Confidence
		n++
	}
	if n == 0 {
		return choice, 0, transcript.ResolutionArbiter
	}
	return choice, sum / float64(n), transcript.ResolutionArbiter
}

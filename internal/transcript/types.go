// Package transcript defines the shared value types for raw engine
// transcripts and consolidated transcripts.
package transcript

import "time"

// Tier is the discrete per-word quality classification.
type Tier string

const (
	TierHigh            Tier = "high"
	TierMedium          Tier = "medium"
	TierLowDisagreement Tier = "low_disagreement"
	TierLowConfidence   Tier = "low_confidence"
)

// Resolution identifies what resolved a disagreement.
type Resolution string

const (
	ResolutionFallback Resolution = "fallback"
	ResolutionArbiter  Resolution = "arbiter"
)

// WordInfo is a single word as produced by an STT engine.
// Immutable once produced.
type WordInfo struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"startTime"` // seconds, monotonic within an utterance
	EndTime    float64 `json:"endTime"`
	Engine     string  `json:"engine"`
}

// EngineTranscript is the normalized output of one engine for one chunk.
type EngineTranscript struct {
	Engine     string            `json:"engine"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Words      []WordInfo        `json:"words"`
	IsFinal    bool              `json:"isFinal"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// AlignmentPair is one position of the word-level alignment of two
// transcripts. A nil token means that engine produced no word at this
// position (gap).
type AlignmentPair struct {
	Position int       `json:"position"`
	A        *WordInfo `json:"a,omitempty"`
	B        *WordInfo `json:"b,omitempty"`
	Agree    bool      `json:"agree"`
}

// Disagreement records an aligned position where the engines differed and
// how it was resolved.
type Disagreement struct {
	Position   int        `json:"position"`
	Options    []string   `json:"options"`
	Chosen     string     `json:"chosen"`
	ResolvedBy Resolution `json:"resolvedBy"`
}

// ConsolidatedWord is one word of the merged transcript.
type ConsolidatedWord struct {
	Word         string            `json:"word"`
	Confidence   float64           `json:"confidence"`
	Tier         Tier              `json:"tier"`
	Agree        bool              `json:"agree"`
	Alternatives map[string]string `json:"alternatives,omitempty"` // engine -> reading
}

// ConsolidatedTranscript is the single merged result for one chunk.
// Arbiter is the identifier of the consolidation backend, or "fallback"
// when the deterministic merge produced the result. Degraded marks a
// single-engine pass-through with no consolidation.
type ConsolidatedTranscript struct {
	SessionID     string             `json:"sessionId"`
	Sequence      int64              `json:"sequence"`
	Words         []ConsolidatedWord `json:"words"`
	Text          string             `json:"text"`
	Confidence    float64            `json:"confidence"`
	Disagreements []Disagreement     `json:"disagreements,omitempty"`
	IsFinal       bool               `json:"isFinal"`
	Arbiter       string             `json:"arbiter"`
	Rationale     string             `json:"rationale,omitempty"`
	Degraded      bool               `json:"degraded,omitempty"`
	Extras        map[string]string  `json:"extras,omitempty"` // engine -> full text, engines beyond the consolidated pair
}

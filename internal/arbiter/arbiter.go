// Package arbiter defines the consolidation backend contract. An arbiter is
// given both engine transcripts, their word alignment, and recent session
// context, and returns a merged transcript with disputed words resolved. Any
// arbiter failure is recoverable: the caller falls back to the deterministic
// merge instead of propagating the error upward.
package arbiter

import (
	"context"
	"errors"

	"github.com/beliczki/transcriber/internal/transcript"
)

var (
	ErrArbiterUnavailable       = errors.New("arbiter unavailable")
	ErrArbiterTimeout           = errors.New("arbiter timeout")
	ErrArbiterMalformedResponse = errors.New("arbiter returned malformed response")
)

// Request carries everything an arbiter may use for one chunk.
type Request struct {
	A       *transcript.EngineTranscript
	B       *transcript.EngineTranscript
	Pairs   []transcript.AlignmentPair
	Context []string // prior consolidated sentences, oldest first
}

// Arbiter resolves transcript disagreements.
type Arbiter interface {
	Name() string
	Arbitrate(ctx context.Context, req *Request) (*transcript.ConsolidatedTranscript, error)
}

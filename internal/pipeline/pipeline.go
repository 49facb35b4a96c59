// Package pipeline wires dispatcher, aligner, arbiter, and session context
// into the per-chunk processing contract the transport layer calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/beliczki/transcriber/internal/align"
	"github.com/beliczki/transcriber/internal/arbiter"
	"github.com/beliczki/transcriber/internal/audio"
	"github.com/beliczki/transcriber/internal/consolidate"
	"github.com/beliczki/transcriber/internal/dispatch"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/session"
	"github.com/beliczki/transcriber/internal/transcript"
)

// Archiver persists sessions and processed chunks. Write-only from the
// pipeline's perspective; persistence failures are logged, never surfaced.
type Archiver interface {
	CreateSession(ctx context.Context, sessionID string) error
	SaveChunk(ctx context.Context, raws []*transcript.EngineTranscript, result *transcript.ConsolidatedTranscript) error
	EndSession(ctx context.Context, sessionID, status string) error
}

// Publisher emits chunk and session events toward downstream consumers.
type Publisher interface {
	PublishSession(ctx context.Context, eventType, sessionID, reason string) error
	PublishChunk(ctx context.Context, result *transcript.ConsolidatedTranscript) error
	PublishChunkError(ctx context.Context, sessionID string, sequence int64, procErr error) error
}

// Options carries the pipeline's collaborators. Arbiter, Archive, and
// Publish may be nil; the pipeline degrades to fallback merge and in-process
// state only.
type Options struct {
	Dispatcher     *dispatch.Dispatcher
	Sessions       *session.Registry
	Arbiter        arbiter.Arbiter
	ArbiterTimeout time.Duration
	Archive        Archiver
	Publish        Publisher
	PrimaryEngine  string
	MaxChunkBytes  int
	SampleRate     int
}

type Pipeline struct {
	dispatcher    *dispatch.Dispatcher
	sessions      *session.Registry
	arb           arbiter.Arbiter
	arbTimeout    time.Duration
	archive       Archiver
	publish       Publisher
	primary       string
	maxChunkBytes int
	sampleRate    int
	log           zerolog.Logger
}

func New(opts Options) *Pipeline {
	return &Pipeline{
		dispatcher:    opts.Dispatcher,
		sessions:      opts.Sessions,
		arb:           opts.Arbiter,
		arbTimeout:    opts.ArbiterTimeout,
		archive:       opts.Archive,
		publish:       opts.Publish,
		primary:       opts.PrimaryEngine,
		maxChunkBytes: opts.MaxChunkBytes,
		sampleRate:    opts.SampleRate,
		log:           observability.GetLogger().With().Str("component", "pipeline").Logger(),
	}
}

// StartSession registers a new session and announces it downstream.
func (p *Pipeline) StartSession(ctx context.Context, sessionID string) error {
	if _, err := p.sessions.Create(sessionID); err != nil {
		return err
	}
	if p.archive != nil {
		if err := p.archive.CreateSession(ctx, sessionID); err != nil {
			observability.RecordError("archive_failed", "pipeline")
			p.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to archive session start")
		}
	}
	if p.publish != nil {
		_ = p.publish.PublishSession(ctx, "session.started", sessionID, "")
	}
	return nil
}

// EndSession tears a session down and reports how many chunks it processed.
func (p *Pipeline) EndSession(ctx context.Context, sessionID, reason string) (int64, error) {
	sess, err := p.sessions.End(sessionID)
	if err != nil {
		return 0, err
	}
	if p.archive != nil {
		status := "stopped"
		if reason == "timeout" {
			status = "timeout"
		}
		if err := p.archive.EndSession(ctx, sessionID, status); err != nil {
			observability.RecordError("archive_failed", "pipeline")
			p.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to archive session end")
		}
	}
	if p.publish != nil {
		_ = p.publish.PublishSession(ctx, "session.ended", sessionID, reason)
	}
	return sess.Chunks(), nil
}

// ProcessChunk runs one audio chunk through dispatch, alignment,
// consolidation, and context update. Engine dispatch for later chunks may
// overlap earlier chunks; consolidation and context mutation are serialized
// per session in submission order.
func (p *Pipeline) ProcessChunk(ctx context.Context, sessionID string, chunk []byte) (*transcript.ConsolidatedTranscript, error) {
	start := time.Now()

	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := audio.Validate(chunk, p.maxChunkBytes); err != nil {
		sess.Touch()
		return nil, fmt.Errorf("invalid audio chunk: %w", err)
	}
	observability.RecordAudioBytes(int64(len(chunk)))
	if e := p.log.Debug(); e.Enabled() {
		e.Str("session_id", sessionID).
			Float64("seconds", audio.Duration(chunk, p.sampleRate)).
			Float64("rms", audio.CalculateRMS(audio.Samples(chunk))).
			Msg("Chunk received")
	}

	// The sequence number is fixed at submission; the turn system below
	// guarantees chunk N's context update lands before chunk N+1's.
	seq := sess.Submit()

	results := p.dispatcher.Dispatch(ctx, chunk)

	sess.WaitTurn(seq)
	defer sess.FinishTurn()

	result, err := p.consolidateChunk(ctx, sess, seq, results)
	if err != nil {
		sess.Touch()
		observability.RecordFailedChunk()
		if p.publish != nil {
			_ = p.publish.PublishChunkError(ctx, sessionID, seq, err)
		}
		return nil, err
	}

	sess.Append(result.Text)

	if p.archive != nil {
		raws := usableTranscripts(results)
		if err := p.archive.SaveChunk(ctx, raws, result); err != nil {
			observability.RecordError("archive_failed", "pipeline")
			p.log.Error().Err(err).Str("session_id", sessionID).Int64("sequence", seq).Msg("Failed to archive chunk")
		}
	}
	if p.publish != nil {
		_ = p.publish.PublishChunk(ctx, result)
	}

	observability.RecordChunk(start, len(result.Disagreements))
	p.log.Debug().
		Str("session_id", sessionID).
		Int64("sequence", seq).
		Int("disagreements", len(result.Disagreements)).
		Bool("degraded", result.Degraded).
		Str("arbiter", result.Arbiter).
		Dur("elapsed", time.Since(start)).
		Msg("Chunk processed")
	return result, nil
}

// consolidateChunk applies the fallback policy to the dispatch results and
// produces the consolidated transcript. Runs inside the session's turn.
func (p *Pipeline) consolidateChunk(ctx context.Context, sess *session.Context, seq int64, results []dispatch.Result) (*transcript.ConsolidatedTranscript, error) {
	a, b, extras, err := dispatch.Select(results)
	if err != nil {
		return nil, err
	}

	var result *transcript.ConsolidatedTranscript
	if b == nil {
		observability.RecordDegradedChunk()
		result = consolidate.Degraded(a)
	} else {
		pairs := align.Words(a.Words, b.Words)
		result = p.arbitrate(ctx, a, b, pairs, sess.Sentences())
	}

	result.SessionID = sess.ID
	result.Sequence = seq
	if len(extras) > 0 {
		annotateExtras(result, extras)
	}
	return result, nil
}

// arbitrate asks the configured arbiter to resolve disagreements, falling
// back to the deterministic merge when no arbiter is configured, nothing is
// disputed, or the arbiter fails in any way.
func (p *Pipeline) arbitrate(ctx context.Context, a, b *transcript.EngineTranscript, pairs []transcript.AlignmentPair, sentences []string) *transcript.ConsolidatedTranscript {
	disputed := len(pairs) - align.Agreements(pairs)
	if p.arb == nil || disputed == 0 {
		observability.RecordFallbackMerge()
		return consolidate.Fallback(a, b, pairs, p.primary)
	}

	arbCtx := ctx
	if p.arbTimeout > 0 {
		var cancel context.CancelFunc
		arbCtx, cancel = context.WithTimeout(ctx, p.arbTimeout)
		defer cancel()
	}

	arbStart := time.Now()
	result, err := p.arb.Arbitrate(arbCtx, &arbiter.Request{A: a, B: b, Pairs: pairs, Context: sentences})
	if err != nil {
		observability.RecordArbiterResult(arbiterStatus(err), time.Since(arbStart))
		observability.RecordFallbackMerge()
		p.log.Warn().Err(err).Str("arbiter", p.arb.Name()).Msg("Arbiter failed, using fallback merge")
		return consolidate.Fallback(a, b, pairs, p.primary)
	}
	observability.RecordArbiterResult("success", time.Since(arbStart))
	return result
}

func arbiterStatus(err error) string {
	switch {
	case errors.Is(err, arbiter.ErrArbiterTimeout):
		return "timeout"
	case errors.Is(err, arbiter.ErrArbiterMalformedResponse):
		return "malformed"
	default:
		return "unavailable"
	}
}

func usableTranscripts(results []dispatch.Result) []*transcript.EngineTranscript {
	out := make([]*transcript.EngineTranscript, 0, len(results))
	for _, r := range results {
		if r.Transcript != nil {
			out = append(out, r.Transcript)
		}
	}
	return out
}

// annotateExtras records additional engines' full readings without letting
// them into the consolidation math.
func annotateExtras(result *transcript.ConsolidatedTranscript, extras []*transcript.EngineTranscript) {
	result.Extras = make(map[string]string, len(extras))
	for _, e := range extras {
		result.Extras[e.Engine] = e.Text
	}
}

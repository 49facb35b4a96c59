// Package dispatch fans an audio chunk out to every configured STT engine
// concurrently and applies the degraded-mode fallback policy.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/beliczki/transcriber/internal/engine"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/transcript"
)

// ErrAllEnginesFailed is returned when no engine produced a usable
// transcript for a chunk. The chunk fails; the session stays open.
var ErrAllEnginesFailed = errors.New("all engines unavailable")

// Result is the outcome of one engine slot. Exactly one of Transcript and
// Err is set. Slots preserve the configured engine order.
type Result struct {
	Engine     string
	Transcript *transcript.EngineTranscript
	Err        *engine.Error
	Latency    time.Duration
}

// Dispatcher sends chunks to a fixed set of engines with a per-engine
// timeout. Safe for concurrent use by multiple sessions.
type Dispatcher struct {
	engines []engine.Engine
	timeout time.Duration
}

// New creates a dispatcher over the given engines, in priority order.
func New(engines []engine.Engine, perEngineTimeout time.Duration) *Dispatcher {
	return &Dispatcher{engines: engines, timeout: perEngineTimeout}
}

// Engines returns the configured engine names in priority order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, len(d.engines))
	for i, e := range d.engines {
		names[i] = e.Name()
	}
	return names
}

// Dispatch invokes every engine concurrently, each bounded by the
// per-engine timeout and independently cancellable. A timeout or failure
// yields an error at that slot rather than aborting the whole dispatch.
// All engine calls have completed or been abandoned when Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, pcm []byte) []Result {
	results := make([]Result, len(d.engines))
	done := make(chan int, len(d.engines))

	for i, eng := range d.engines {
		go func(slot int, eng engine.Engine) {
			engCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			start := time.Now()
			tr, err := eng.Transcribe(engCtx, pcm)
			latency := time.Since(start)

			r := Result{Engine: eng.Name(), Latency: latency}
			if err != nil {
				reason := err
				if engCtx.Err() != nil && !errors.Is(err, engine.ErrEngineTimeout) {
					reason = engine.ErrEngineTimeout
				}
				var engErr *engine.Error
				if !errors.As(err, &engErr) {
					engErr = &engine.Error{Engine: eng.Name(), Reason: reason}
				}
				r.Err = engErr
			} else {
				r.Transcript = tr
			}
			results[slot] = r

			emitCompletion(r)
			done <- slot
		}(i, eng)
	}

	// Barrier: all engines complete or time out before alignment begins
	for range d.engines {
		<-done
	}

	return results
}

// emitCompletion emits the per-engine completion event. It must not block
// the dispatch path.
func emitCompletion(r Result) {
	status := "success"
	if r.Err != nil {
		if errors.Is(r.Err, engine.ErrEngineTimeout) {
			status = "timeout"
		} else {
			status = "error"
		}
	}
	observability.RecordEngineResult(r.Engine, status, r.Latency)

	logger := observability.GetLogger()
	ev := logger.Debug().
		Str("engine", r.Engine).
		Dur("latency", r.Latency).
		Str("status", status)
	if r.Err != nil {
		ev = ev.Err(r.Err)
	}
	ev.Msg("engine completed")
}

// Select applies the fallback policy to dispatch results.
//
// Zero usable transcripts fail the chunk with ErrAllEnginesFailed. Exactly
// one usable transcript is passed through unconsolidated (b is nil, the
// caller tags the output degraded). Consolidation math only ever uses the
// first two configured engines: when both answered, their results are
// consolidated and further successes are informational extras; when only
// one of them answered, its transcript passes through degraded and every
// other success is an extra.
func Select(results []Result) (a, b *transcript.EngineTranscript, extras []*transcript.EngineTranscript, err error) {
	var usable []*transcript.EngineTranscript
	var primary []*transcript.EngineTranscript
	for i, r := range results {
		if r.Err != nil || r.Transcript == nil {
			continue
		}
		usable = append(usable, r.Transcript)
		if i < 2 {
			primary = append(primary, r.Transcript)
		}
	}

	if len(usable) == 0 {
		return nil, nil, nil, ErrAllEnginesFailed
	}

	switch len(primary) {
	case 2:
		return primary[0], primary[1], usable[2:], nil
	case 1:
		a = primary[0]
	default:
		// Both primary slots failed; the first additional engine still
		// gives the chunk a degraded transcript.
		a = usable[0]
	}
	for _, tr := range usable {
		if tr != a {
			extras = append(extras, tr)
		}
	}
	return a, nil, extras, nil
}

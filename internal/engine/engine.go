// Package engine defines the capability contract for STT backends.
// The pipeline depends only on this contract, never on a concrete vendor.
package engine

import (
	"context"
	"errors"

	"github.com/beliczki/transcriber/internal/transcript"
)

var (
	// ErrEngineUnavailable indicates the backend could not be reached or
	// refused the request.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrEngineTimeout indicates the backend did not answer within the
	// per-engine timeout.
	ErrEngineTimeout = errors.New("engine timeout")
)

// Engine is an STT backend that converts one audio chunk into a transcript.
// Implementations must be safe for concurrent use; the dispatcher invokes
// them from multiple sessions at once.
type Engine interface {
	// Name returns the stable engine identifier used in transcripts,
	// metrics and configuration.
	Name() string

	// Transcribe converts a PCM16 mono audio chunk into a transcript.
	// The call must honor ctx cancellation; on timeout it returns an error
	// wrapping ErrEngineTimeout.
	Transcribe(ctx context.Context, pcm []byte) (*transcript.EngineTranscript, error)
}

// Error is a per-slot dispatch failure: which engine failed and why.
type Error struct {
	Engine string
	Reason error
}

func (e *Error) Error() string {
	return e.Engine + ": " + e.Reason.Error()
}

func (e *Error) Unwrap() error {
	return e.Reason
}

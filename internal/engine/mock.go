package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beliczki/transcriber/internal/transcript"
)

// Mock is a deterministic in-process engine for tests and credential-less
// development. It returns a fixed transcript, or a synthetic one derived
// from the chunk length when none is configured.
type Mock struct {
	name       string
	text       string
	confidence float64
	delay      time.Duration
	err        error
}

// NewMock creates a mock engine with the given identifier
func NewMock(name string) *Mock {
	return &Mock{name: name, confidence: 0.95}
}

// WithTranscript sets the fixed transcript returned by Transcribe
func (m *Mock) WithTranscript(text string, confidence float64) *Mock {
	m.text = text
	m.confidence = confidence
	return m
}

// WithDelay makes Transcribe block for d before answering
func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.delay = d
	return m
}

// WithError makes every Transcribe call fail with err
func (m *Mock) WithError(err error) *Mock {
	m.err = err
	return m
}

// Name returns the engine identifier
func (m *Mock) Name() string { return m.name }

// Transcribe returns the configured transcript
func (m *Mock) Transcribe(ctx context.Context, pcm []byte) (*transcript.EngineTranscript, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", m.name, ErrEngineTimeout)
		}
	}
	if m.err != nil {
		return nil, &Error{Engine: m.name, Reason: m.err}
	}

	text := m.text
	if text == "" {
		text = fmt.Sprintf("mock transcript length %d", len(pcm))
	}

	tokens := strings.Fields(text)
	words := make([]transcript.WordInfo, 0, len(tokens))
	for i, tok := range tokens {
		words = append(words, transcript.WordInfo{
			Word:       tok,
			Confidence: m.confidence,
			StartTime:  float64(i) * 0.3,
			EndTime:    float64(i)*0.3 + 0.25,
			Engine:     m.name,
		})
	}

	return &transcript.EngineTranscript{
		Engine:     m.name,
		Text:       text,
		Confidence: m.confidence,
		Words:      words,
		IsFinal:    true,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

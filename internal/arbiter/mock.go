package arbiter

import (
	"context"
	"time"

	"github.com/beliczki/transcriber/internal/consolidate"
	"github.com/beliczki/transcriber/internal/transcript"
)

// Mock is a test arbiter with scripted word choices.
type Mock struct {
	name      string
	choices   map[int]string
	rationale string
	err       error
	delay     time.Duration
	calls     int
}

func NewMockArbiter(name string) *Mock {
	return &Mock{name: name, choices: map[int]string{}}
}

func (m *Mock) WithChoice(position int, word string) *Mock {
	m.choices[position] = word
	return m
}

func (m *Mock) WithRationale(r string) *Mock {
	m.rationale = r
	return m
}

func (m *Mock) WithError(err error) *Mock {
	m.err = err
	return m
}

func (m *Mock) WithDelay(d time.Duration) *Mock {
	m.delay = d
	return m
}

func (m *Mock) Calls() int {
	return m.calls
}

func (m *Mock) Name() string {
	return m.name
}

func (m *Mock) Arbitrate(ctx context.Context, req *Request) (*transcript.ConsolidatedTranscript, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ErrArbiterTimeout
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return consolidate.Arbitrated(req.A, req.B, req.Pairs, m.choices, m.name, m.rationale, req.A.Engine), nil
}

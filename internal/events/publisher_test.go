package events

import (
	"context"
	"errors"
	"testing"

	"github.com/beliczki/transcriber/internal/transcript"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
		})
	}
}

func TestPublisher_PublishChunk_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	result := &transcript.ConsolidatedTranscript{
		SessionID:  "test-session",
		Sequence:   1,
		Text:       "hello world",
		Confidence: 0.94,
	}
	if err := p.PublishChunk(context.Background(), result); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishSession_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishSession(context.Background(), TypeSessionStarted, "test-session", ""); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := p.PublishSession(context.Background(), TypeSessionEnded, "test-session", "client stop"); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishChunkError_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishChunkError(context.Background(), "test-session", 4, errors.New("all engines unavailable"))
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_Disabled(t *testing.T) {
	p := New(nil)
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

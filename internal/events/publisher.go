// Package events publishes processed-chunk and session-lifecycle events to
// Kafka so downstream consumers (captioning, analytics) can follow along.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/transcript"
)

// publishRetry keeps transient broker hiccups from dropping chunk events.
var publishRetry = &resilience.RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    50 * time.Millisecond,
	MaxBackoff:        time.Second,
	BackoffMultiplier: 2.0,
}

// Event types carried on the transcript topic.
const (
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
	TypeChunkProcessed = "chunk.processed"
	TypeChunkFailed    = "chunk.failed"
)

// SessionEvent is the lifecycle payload.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChunkEvent is the per-chunk payload.
type ChunkEvent struct {
	Type      string                             `json:"type"`
	SessionID string                             `json:"sessionId"`
	Sequence  int64                              `json:"sequence"`
	Result    *transcript.ConsolidatedTranscript `json:"result,omitempty"`
	Error     string                             `json:"error,omitempty"`
	Timestamp time.Time                          `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Publisher writes transcript events to a Kafka topic, keyed by session id
// so one session's events stay ordered on a single partition. When disabled
// it degrades to log-only mode.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	log     zerolog.Logger
}

func New(cfg *Config) *Publisher {
	logger := observability.GetLogger().With().Str("component", "events").Logger()

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{enabled: false, log: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka publisher initialized")
	return &Publisher{writer: writer, topic: cfg.Topic, enabled: true, log: logger}
}

// PublishSession emits a session lifecycle event.
func (p *Publisher) PublishSession(ctx context.Context, eventType, sessionID, reason string) error {
	return p.publish(ctx, sessionID, SessionEvent{
		Type:      eventType,
		SessionID: sessionID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// PublishChunk emits the consolidated result for one processed chunk.
func (p *Publisher) PublishChunk(ctx context.Context, result *transcript.ConsolidatedTranscript) error {
	return p.publish(ctx, result.SessionID, ChunkEvent{
		Type:      TypeChunkProcessed,
		SessionID: result.SessionID,
		Sequence:  result.Sequence,
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
}

// PublishChunkError emits a chunk-level processing failure.
func (p *Publisher) PublishChunkError(ctx context.Context, sessionID string, sequence int64, procErr error) error {
	return p.publish(ctx, sessionID, ChunkEvent{
		Type:      TypeChunkFailed,
		SessionID: sessionID,
		Sequence:  sequence,
		Error:     procErr.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to marshal event")
		return err
	}

	p.log.Debug().
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || p.writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}
	err = resilience.Retry(func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, publishRetry, resilience.IsRetryableNetworkError)
	if err != nil {
		p.log.Error().
			Err(err).
			Str("topic", p.topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		observability.RecordPublishError("kafka")
		return err
	}
	return nil
}

// Close flushes and closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

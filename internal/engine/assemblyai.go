package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beliczki/transcriber/internal/config"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/transcript"
)

// assemblyAIMessage covers the AssemblyAI streaming v3 message envelope
type assemblyAIMessage struct {
	Type               string           `json:"type"`
	ID                 string           `json:"id,omitempty"`
	Transcript         string           `json:"transcript,omitempty"`
	TurnIsFormatted    bool             `json:"turn_is_formatted,omitempty"`
	EndOfTurn          bool             `json:"end_of_turn,omitempty"`
	Words              []assemblyAIWord `json:"words,omitempty"`
	AudioDurationSec   float64          `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64          `json:"session_duration_seconds,omitempty"`
}

type assemblyAIWord struct {
	Text        string  `json:"text"`
	Start       int64   `json:"start"` // milliseconds
	End         int64   `json:"end"`
	Confidence  float64 `json:"confidence"`
	WordIsFinal bool    `json:"word_is_final"`
}

// AssemblyAI is an Engine backed by AssemblyAI's streaming websocket API.
// The shared stream carries one round-trip at a time: Transcribe holds the
// adapter mutex from chunk write to result delivery, so concurrent sessions
// are serialized and can never receive each other's transcripts.
type AssemblyAI struct {
	config  *config.Config
	results chan *transcript.EngineTranscript

	mu       sync.Mutex
	conn     *websocket.Conn
	connDead chan struct{} // closed by the read loop when conn dies
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewAssemblyAI creates an AssemblyAI engine adapter. The websocket
// connection is established lazily on the first Transcribe call.
func NewAssemblyAI(cfg *config.Config) *AssemblyAI {
	ctx, cancel := context.WithCancel(context.Background())
	return &AssemblyAI{
		config:  cfg,
		results: make(chan *transcript.EngineTranscript, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name returns the engine identifier
func (a *AssemblyAI) Name() string { return "assemblyai" }

// connect dials the streaming endpoint with backoff. Caller holds a.mu.
func (a *AssemblyAI) connect() error {
	if a.conn != nil {
		select {
		case <-a.connDead:
			a.conn = nil
		default:
			return nil
		}
	}

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=true", a.config.AssemblyAIURL, a.config.SampleRate)
	header := http.Header{}
	header.Add("Authorization", a.config.AssemblyAIAPIKey)

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: a.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(a.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(a.ctx, func() error {
		conn, _, derr := websocket.DefaultDialer.Dial(url, header)
		if derr != nil {
			return fmt.Errorf("failed to connect to AssemblyAI: %w", derr)
		}
		a.conn = conn
		return nil
	}, reconnectConfig)
	if err != nil {
		return err
	}

	a.connDead = make(chan struct{})
	go a.readLoop(a.conn, a.connDead)

	logger := observability.GetLogger()
	logger.Info().
		Int("sample_rate", a.config.SampleRate).
		Msg("AssemblyAI streaming connection established")
	return nil
}

// readLoop consumes messages until the connection dies. It never takes
// a.mu; a waiting Transcribe call learns about a dead connection through
// the dead channel instead.
func (a *AssemblyAI) readLoop(conn *websocket.Conn, dead chan struct{}) {
	defer close(dead)
	logger := observability.GetLogger()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("AssemblyAI websocket error")
			}
			return
		}

		msg, err := parseAssemblyAIMessage(message)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to parse AssemblyAI message")
			continue
		}

		switch msg.Type {
		case "Begin":
			logger.Debug().Str("assemblyai_session", msg.ID).Msg("AssemblyAI session started")

		case "Turn":
			if msg.Transcript == "" || !msg.TurnIsFormatted {
				continue
			}
			result := assemblyAITranscript(msg)
			select {
			case a.results <- result:
			default:
				logger.Warn().Msg("AssemblyAI result channel full, dropping transcript")
			}

		case "Termination":
			logger.Debug().
				Float64("audio_duration", msg.AudioDurationSec).
				Float64("session_duration", msg.SessionDurationSec).
				Msg("AssemblyAI session terminated")
		}
	}
}

// assemblyAITranscript converts a formatted turn into the shared shape
func assemblyAITranscript(msg *assemblyAIMessage) *transcript.EngineTranscript {
	words := make([]transcript.WordInfo, 0, len(msg.Words))
	var confSum float64
	for _, w := range msg.Words {
		words = append(words, transcript.WordInfo{
			Word:       w.Text,
			Confidence: w.Confidence,
			StartTime:  float64(w.Start) / 1000.0,
			EndTime:    float64(w.End) / 1000.0,
			Engine:     "assemblyai",
		})
		confSum += w.Confidence
	}

	// AssemblyAI reports no overall turn confidence; use the word mean
	overall := 0.0
	if len(words) > 0 {
		overall = confSum / float64(len(words))
	}

	return &transcript.EngineTranscript{
		Engine:     "assemblyai",
		Text:       msg.Transcript,
		Confidence: overall,
		Words:      words,
		IsFinal:    true,
		ReceivedAt: time.Now().UTC(),
	}
}

// Transcribe sends one chunk and waits for the corresponding formatted turn.
// Round-trips on the shared stream are serialized.
func (a *AssemblyAI) Transcribe(ctx context.Context, pcm []byte) (*transcript.EngineTranscript, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connect(); err != nil {
		return nil, fmt.Errorf("assemblyai: %v: %w", err, ErrEngineUnavailable)
	}

	// Discard results left over from an abandoned earlier chunk
	for {
		select {
		case <-a.results:
			continue
		default:
		}
		break
	}

	if err := a.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		a.conn = nil
		return nil, fmt.Errorf("assemblyai: failed to send audio: %v: %w", err, ErrEngineUnavailable)
	}

	select {
	case result := <-a.results:
		return result, nil
	case <-a.connDead:
		a.conn = nil
		return nil, fmt.Errorf("assemblyai: connection lost: %w", ErrEngineUnavailable)
	case <-ctx.Done():
		return nil, fmt.Errorf("assemblyai: %w", ErrEngineTimeout)
	}
}

// Close terminates the streaming session
func (a *AssemblyAI) Close() error {
	a.cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}

	// Polite termination per the streaming protocol
	terminate := `{"type":"Terminate"}`
	_ = a.conn.WriteMessage(websocket.TextMessage, []byte(terminate))

	err := a.conn.Close()
	a.conn = nil
	return err
}

// parseAssemblyAIMessage decodes one websocket frame
func parseAssemblyAIMessage(raw []byte) (*assemblyAIMessage, error) {
	var msg assemblyAIMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.Type) == "" {
		return nil, fmt.Errorf("message missing type field")
	}
	return &msg, nil
}

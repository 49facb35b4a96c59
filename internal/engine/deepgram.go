package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/beliczki/transcriber/internal/config"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/transcript"
)

// deepgramCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only the methods we need.
type deepgramCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (h *deepgramCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	h.handler(message)
	return nil
}

func (h *deepgramCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if h.errorHandler != nil {
		return h.errorHandler(errorResponse)
	}
	return h.DefaultCallbackHandler.Error(errorResponse)
}

// Deepgram is an Engine backed by Deepgram's streaming API.
type Deepgram struct {
	config  *config.Config
	client  *listenClient.WSCallback
	results chan *transcript.EngineTranscript

	mu       sync.Mutex
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc
	breaker  *resilience.CircuitBreaker
}

// NewDeepgram creates a Deepgram engine adapter. The underlying streaming
// connection is established lazily on the first Transcribe call.
func NewDeepgram(cfg *config.Config) *Deepgram {
	ctx, cancel := context.WithCancel(context.Background())

	breaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)

	return &Deepgram{
		config:  cfg,
		results: make(chan *transcript.EngineTranscript, 16),
		ctx:     ctx,
		cancel:  cancel,
		breaker: breaker,
	}
}

// Name returns the engine identifier
func (d *Deepgram) Name() string { return "deepgram" }

// start opens the Deepgram streaming connection. Caller holds d.mu.
func (d *Deepgram) start() error {
	if d.isActive {
		return nil
	}

	logger := observability.GetLogger()

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: false,
		UtteranceEndMs: "1000",
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.SampleRate,
	}

	callback := &deepgramCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                d.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			logger.Error().Interface("response", errorResponse).Msg("Deepgram error")
			d.breaker.RecordResult(false)

			select {
			case <-d.ctx.Done():
			default:
				d.mu.Lock()
				d.isActive = false
				d.mu.Unlock()
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		nil, // ClientOptions - nil uses defaults
		tOptions,
		callback,
	)
	if err != nil {
		d.breaker.RecordResult(false)
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	d.client = client
	d.isActive = true
	d.breaker.RecordResult(true)

	logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Msg("Deepgram streaming client started")
	return nil
}

// handleMessage converts Deepgram results into the shared transcript shape
func (d *Deepgram) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}
		if !msg.IsFinal {
			return
		}

		words := make([]transcript.WordInfo, 0, len(alt.Words))
		for _, w := range alt.Words {
			words = append(words, transcript.WordInfo{
				Word:       w.Word,
				Confidence: w.Confidence,
				StartTime:  w.Start,
				EndTime:    w.End,
				Engine:     "deepgram",
			})
		}

		result := &transcript.EngineTranscript{
			Engine:     "deepgram",
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
			IsFinal:    true,
			Metadata:   map[string]string{"model": d.config.DeepgramModel},
			ReceivedAt: time.Now().UTC(),
		}

		select {
		case d.results <- result:
		default:
			logger := observability.GetLogger()
			logger.Warn().Msg("Deepgram result channel full, dropping transcript")
		}

	default:
		// Metadata, SpeechStarted, UtteranceEnd and friends carry no words
	}
}

// Transcribe sends one chunk and waits for the corresponding final result.
// Round-trips on the shared stream are serialized.
func (d *Deepgram) Transcribe(ctx context.Context, pcm []byte) (*transcript.EngineTranscript, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.start(); err != nil {
		return nil, fmt.Errorf("deepgram: %v: %w", err, ErrEngineUnavailable)
	}

	// Discard results left over from an abandoned earlier chunk
	for {
		select {
		case <-d.results:
			continue
		default:
		}
		break
	}

	err := d.breaker.Call(func() error {
		_, werr := d.client.Write(pcm)
		return werr
	})
	if err != nil {
		d.isActive = false
		return nil, fmt.Errorf("deepgram: failed to send audio: %v: %w", err, ErrEngineUnavailable)
	}

	select {
	case result := <-d.results:
		return result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("deepgram: %w", ErrEngineTimeout)
	}
}

// Close shuts down the streaming connection
func (d *Deepgram) Close() error {
	d.cancel()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive && d.client != nil {
		d.client.Finish()
		d.isActive = false
	}
	return nil
}

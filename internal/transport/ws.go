// Package transport exposes the pipeline over a websocket. Clients drive a
// session with JSON events: start, then a stream of chunk events carrying
// base64 PCM16 audio, then stop. Each chunk answers with a transcript event
// or a chunk-scoped error event; chunk errors never close the session.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/beliczki/transcriber/internal/dispatch"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/pipeline"
	"github.com/beliczki/transcriber/internal/session"
	"github.com/beliczki/transcriber/internal/store"
	"github.com/beliczki/transcriber/internal/transcript"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin validation is deployment-specific; the gateway in front of
		// this service enforces it.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientMessage is an incoming event from the client.
type ClientMessage struct {
	Event     string `json:"event"` // start, chunk, stop
	SessionID string `json:"sessionId"`
	Audio     string `json:"audio,omitempty"` // base64 PCM16 mono 16 kHz
}

// ServerMessage is an outgoing event toward the client.
type ServerMessage struct {
	Event     string                             `json:"event"` // started, transcript, error, stopped
	SessionID string                             `json:"sessionId,omitempty"`
	Result    *transcript.ConsolidatedTranscript `json:"result,omitempty"`
	Summary   *store.Summary                     `json:"summary,omitempty"`
	Code      string                             `json:"code,omitempty"`
	Error     string                             `json:"error,omitempty"`
}

// Summarizer reports the per-session roll-up on stop. Optional.
type Summarizer interface {
	SessionSummary(ctx context.Context, sessionID string) (*store.Summary, error)
}

// Handler serves the transcription websocket endpoint.
type Handler struct {
	pipe    *pipeline.Pipeline
	summary Summarizer
	log     zerolog.Logger
}

func NewHandler(pipe *pipeline.Pipeline, summary Summarizer) *Handler {
	return &Handler{
		pipe:    pipe,
		summary: summary,
		log:     observability.GetLogger().With().Str("component", "transport").Logger(),
	}
}

// ServeHTTP upgrades the connection and runs the session protocol until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	c := &clientConn{
		conn:    conn,
		handler: h,
		log:     h.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	c.log.Info().Msg("WebSocket connection established")
	c.run(r.Context())
}

// clientConn is the state of one websocket connection. A connection owns at
// most one session at a time.
type clientConn struct {
	conn    *websocket.Conn
	handler *Handler
	log     zerolog.Logger

	writeMu   sync.Mutex
	sessionID string
}

func (c *clientConn) run(ctx context.Context) {
	defer c.cleanup(ctx)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("", "bad_message", "message is not valid JSON")
			continue
		}

		switch msg.Event {
		case "start":
			c.handleStart(ctx, msg)
		case "chunk":
			c.handleChunk(ctx, msg)
		case "stop":
			c.handleStop(ctx, msg)
		default:
			c.sendError(msg.SessionID, "bad_event", "unknown event: "+msg.Event)
		}
	}
}

func (c *clientConn) handleStart(ctx context.Context, msg ClientMessage) {
	if err := c.handler.pipe.StartSession(ctx, msg.SessionID); err != nil {
		c.sendError(msg.SessionID, startErrorCode(err), err.Error())
		return
	}
	c.sessionID = msg.SessionID
	c.log = observability.WithSession(msg.SessionID).With().
		Str("component", "transport").
		Str("remote", c.conn.RemoteAddr().String()).
		Logger()
	c.send(ServerMessage{Event: "started", SessionID: msg.SessionID})
}

func (c *clientConn) handleChunk(ctx context.Context, msg ClientMessage) {
	pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		c.sendError(msg.SessionID, "bad_audio", "audio is not valid base64")
		return
	}

	result, err := c.handler.pipe.ProcessChunk(ctx, msg.SessionID, pcm)
	if err != nil {
		c.sendError(msg.SessionID, chunkErrorCode(err), err.Error())
		return
	}
	c.send(ServerMessage{Event: "transcript", SessionID: msg.SessionID, Result: result})
}

func (c *clientConn) handleStop(ctx context.Context, msg ClientMessage) {
	if _, err := c.handler.pipe.EndSession(ctx, msg.SessionID, "client stop"); err != nil {
		c.sendError(msg.SessionID, chunkErrorCode(err), err.Error())
		return
	}
	if c.sessionID == msg.SessionID {
		c.sessionID = ""
	}

	out := ServerMessage{Event: "stopped", SessionID: msg.SessionID}
	if c.handler.summary != nil {
		if sum, err := c.handler.summary.SessionSummary(ctx, msg.SessionID); err == nil {
			out.Summary = sum
		} else {
			c.log.Warn().Err(err).Str("session_id", msg.SessionID).Msg("Failed to build session summary")
		}
	}
	c.send(out)
}

// cleanup ends a session orphaned by an abrupt disconnect.
func (c *clientConn) cleanup(ctx context.Context) {
	c.conn.Close()
	if c.sessionID == "" {
		return
	}
	if _, err := c.handler.pipe.EndSession(context.WithoutCancel(ctx), c.sessionID, "connection closed"); err != nil &&
		!errors.Is(err, session.ErrSessionNotFound) {
		c.log.Error().Err(err).Str("session_id", c.sessionID).Msg("Failed to end session on disconnect")
	}
}

func (c *clientConn) send(msg ServerMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Warn().Err(err).Msg("WebSocket write failed")
	}
}

func (c *clientConn) sendError(sessionID, code, detail string) {
	c.send(ServerMessage{Event: "error", SessionID: sessionID, Code: code, Error: detail})
}

func startErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidSessionID):
		return "invalid_session_id"
	case errors.Is(err, session.ErrSessionExists):
		return "session_exists"
	case errors.Is(err, session.ErrSessionLimit):
		return "session_limit"
	default:
		return "start_failed"
	}
}

func chunkErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, dispatch.ErrAllEnginesFailed):
		return "all_engines_failed"
	default:
		return "processing_failed"
	}
}

package transport

import (
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beliczki/transcriber/internal/dispatch"
	"github.com/beliczki/transcriber/internal/engine"
	"github.com/beliczki/transcriber/internal/pipeline"
	"github.com/beliczki/transcriber/internal/session"
)

func dialTestServer(t *testing.T) *websocket.Conn {
	t.Helper()
	engines := []engine.Engine{
		engine.NewMock("deepgram").WithTranscript("Hello world this is a test", 0.95),
		engine.NewMock("assemblyai").WithTranscript("Hello word this is a test", 0.93),
	}
	pipe := pipeline.New(pipeline.Options{
		Dispatcher:    dispatch.New(engines, time.Second),
		Sessions:      session.NewRegistry(5, 10, time.Hour),
		PrimaryEngine: "deepgram",
		MaxChunkBytes: 1 << 20,
	})
	srv := httptest.NewServer(NewHandler(pipe, nil))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg ClientMessage) ServerMessage {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var reply ServerMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return reply
}

func chunkPayload() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 320))
}

func TestHandler_SessionProtocol(t *testing.T) {
	conn := dialTestServer(t)
	sessionID := uuid.NewString()

	reply := roundTrip(t, conn, ClientMessage{Event: "start", SessionID: sessionID})
	if reply.Event != "started" || reply.SessionID != sessionID {
		t.Fatalf("Unexpected start reply: %+v", reply)
	}

	reply = roundTrip(t, conn, ClientMessage{Event: "chunk", SessionID: sessionID, Audio: chunkPayload()})
	if reply.Event != "transcript" {
		t.Fatalf("Unexpected chunk reply: %+v", reply)
	}
	if reply.Result == nil || reply.Result.Text != "Hello world this is a test" {
		t.Errorf("Unexpected transcript: %+v", reply.Result)
	}
	if len(reply.Result.Disagreements) != 1 {
		t.Errorf("Expected 1 disagreement, got %d", len(reply.Result.Disagreements))
	}

	reply = roundTrip(t, conn, ClientMessage{Event: "stop", SessionID: sessionID})
	if reply.Event != "stopped" {
		t.Fatalf("Unexpected stop reply: %+v", reply)
	}
}

func TestHandler_ChunkWithoutSession(t *testing.T) {
	conn := dialTestServer(t)

	reply := roundTrip(t, conn, ClientMessage{Event: "chunk", SessionID: uuid.NewString(), Audio: chunkPayload()})
	if reply.Event != "error" || reply.Code != "session_not_found" {
		t.Errorf("Expected session_not_found error, got %+v", reply)
	}
}

func TestHandler_InvalidSessionID(t *testing.T) {
	conn := dialTestServer(t)

	reply := roundTrip(t, conn, ClientMessage{Event: "start", SessionID: "not-a-uuid"})
	if reply.Event != "error" || reply.Code != "invalid_session_id" {
		t.Errorf("Expected invalid_session_id error, got %+v", reply)
	}
}

func TestHandler_BadAudio(t *testing.T) {
	conn := dialTestServer(t)
	sessionID := uuid.NewString()

	if reply := roundTrip(t, conn, ClientMessage{Event: "start", SessionID: sessionID}); reply.Event != "started" {
		t.Fatalf("Start failed: %+v", reply)
	}
	reply := roundTrip(t, conn, ClientMessage{Event: "chunk", SessionID: sessionID, Audio: "not base64!!!"})
	if reply.Event != "error" || reply.Code != "bad_audio" {
		t.Errorf("Expected bad_audio error, got %+v", reply)
	}

	// Session is still usable after a bad chunk.
	reply = roundTrip(t, conn, ClientMessage{Event: "chunk", SessionID: sessionID, Audio: chunkPayload()})
	if reply.Event != "transcript" {
		t.Errorf("Expected session to survive bad chunk, got %+v", reply)
	}
}

func TestHandler_UnknownEvent(t *testing.T) {
	conn := dialTestServer(t)

	reply := roundTrip(t, conn, ClientMessage{Event: "pause", SessionID: uuid.NewString()})
	if reply.Event != "error" || reply.Code != "bad_event" {
		t.Errorf("Expected bad_event error, got %+v", reply)
	}
}

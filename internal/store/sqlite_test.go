package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/beliczki/transcriber/internal/transcript"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"), 30)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(sessionID string, seq int64) ([]*transcript.EngineTranscript, *transcript.ConsolidatedTranscript) {
	raws := []*transcript.EngineTranscript{
		{Engine: "deepgram", Text: "hello world", Confidence: 0.95},
		{Engine: "assemblyai", Text: "hello word", Confidence: 0.93},
	}
	cons := &transcript.ConsolidatedTranscript{
		SessionID:  sessionID,
		Sequence:   seq,
		Text:       "hello world",
		Confidence: 0.94,
		Disagreements: []transcript.Disagreement{
			{Position: 1, Options: []string{"world", "word"}, Chosen: "world", ResolvedBy: transcript.ResolutionFallback},
		},
		IsFinal: true,
		Arbiter: "fallback",
	}
	return raws, cons
}

func TestStore_SaveChunkAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	if err := s.CreateSession(ctx, sessionID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for seq := int64(1); seq <= 3; seq++ {
		raws, cons := testChunk(sessionID, seq)
		if err := s.SaveChunk(ctx, raws, cons); err != nil {
			t.Fatalf("SaveChunk %d failed: %v", seq, err)
		}
	}
	if err := s.EndSession(ctx, sessionID, StatusStopped); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	sum, err := s.SessionSummary(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionSummary failed: %v", err)
	}
	if sum.Chunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", sum.Chunks)
	}
	if sum.Disagreements != 3 {
		t.Errorf("Expected 3 disagreements, got %d", sum.Disagreements)
	}
	if sum.AvgConfidence < 0.93 || sum.AvgConfidence > 0.95 {
		t.Errorf("Unexpected average confidence: %v", sum.AvgConfidence)
	}
}

func TestStore_DuplicateSequenceRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sessionID := uuid.NewString()

	if err := s.CreateSession(ctx, sessionID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	raws, cons := testChunk(sessionID, 1)
	if err := s.SaveChunk(ctx, raws, cons); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	if err := s.SaveChunk(ctx, raws, cons); err == nil {
		t.Error("Expected duplicate (session, sequence) to be rejected")
	}
}

func TestStore_SummaryForUnknownSessionIsEmpty(t *testing.T) {
	s := openTestStore(t)
	sum, err := s.SessionSummary(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("SessionSummary failed: %v", err)
	}
	if sum.Chunks != 0 || sum.Disagreements != 0 || sum.AvgConfidence != 0 {
		t.Errorf("Expected empty summary, got %+v", sum)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")
	ctx := context.Background()
	sessionID := uuid.NewString()

	s, err := Open(ctx, path, 30)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.CreateSession(ctx, sessionID); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	raws, cons := testChunk(sessionID, 1)
	if err := s.SaveChunk(ctx, raws, cons); err != nil {
		t.Fatalf("SaveChunk failed: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path, 30)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()
	sum, err := s.SessionSummary(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionSummary failed: %v", err)
	}
	if sum.Chunks != 1 {
		t.Errorf("Expected archived chunk to survive reopen, got %d", sum.Chunks)
	}
}

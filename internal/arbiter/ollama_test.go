package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beliczki/transcriber/internal/align"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/transcript"
)

func testRequest() *Request {
	a := &transcript.EngineTranscript{
		Engine: "deepgram",
		Text:   "I scream for ice cream",
		Words: []transcript.WordInfo{
			{Word: "I", Confidence: 0.9, Engine: "deepgram"},
			{Word: "scream", Confidence: 0.7, Engine: "deepgram"},
			{Word: "for", Confidence: 0.9, Engine: "deepgram"},
			{Word: "ice", Confidence: 0.9, Engine: "deepgram"},
			{Word: "cream", Confidence: 0.9, Engine: "deepgram"},
		},
		IsFinal: true,
	}
	b := &transcript.EngineTranscript{
		Engine: "assemblyai",
		Text:   "Ice cream for ice cream",
		Words: []transcript.WordInfo{
			{Word: "Ice", Confidence: 0.6, Engine: "assemblyai"},
			{Word: "cream", Confidence: 0.6, Engine: "assemblyai"},
			{Word: "for", Confidence: 0.9, Engine: "assemblyai"},
			{Word: "ice", Confidence: 0.9, Engine: "assemblyai"},
			{Word: "cream", Confidence: 0.9, Engine: "assemblyai"},
		},
		IsFinal: true,
	}
	return &Request{
		A:       a,
		B:       b,
		Pairs:   align.Words(a.Words, b.Words),
		Context: []string{"We were talking about dessert."},
	}
}

func ollamaHandler(t *testing.T, answer string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Format != "json" || req.Stream {
			t.Errorf("Expected non-streaming json request, got %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: answer, Done: true})
	}
}

func TestOllama_ArbitrateAppliesDecisions(t *testing.T) {
	answer := `{"decisions":[{"position":0,"word":"I"},{"position":1,"word":"scream"}],"rationale":"context mentions a person"}`
	srv := httptest.NewServer(ollamaHandler(t, answer))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2", "deepgram", time.Second, nil)
	result, err := o.Arbitrate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Text != "I scream for ice cream" {
		t.Errorf("Unexpected consolidated text: %q", result.Text)
	}
	if result.Rationale != "context mentions a person" {
		t.Errorf("Rationale not carried through: %q", result.Rationale)
	}
	for _, d := range result.Disagreements {
		if d.ResolvedBy != transcript.ResolutionArbiter {
			t.Errorf("Position %d resolved by %s, want arbiter", d.Position, d.ResolvedBy)
		}
	}
	if result.Arbiter != "ollama/llama3.2" {
		t.Errorf("Unexpected arbiter tag: %q", result.Arbiter)
	}
}

func TestOllama_MalformedInnerJSON(t *testing.T) {
	srv := httptest.NewServer(ollamaHandler(t, "the word is definitely scream"))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2", "deepgram", time.Second, nil)
	_, err := o.Arbitrate(context.Background(), testRequest())
	if !errors.Is(err, ErrArbiterMalformedResponse) {
		t.Errorf("Expected ErrArbiterMalformedResponse, got %v", err)
	}
}

func TestOllama_EmptyWordIsMalformed(t *testing.T) {
	answer := `{"decisions":[{"position":0,"word":""}]}`
	srv := httptest.NewServer(ollamaHandler(t, answer))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2", "deepgram", time.Second, nil)
	_, err := o.Arbitrate(context.Background(), testRequest())
	if !errors.Is(err, ErrArbiterMalformedResponse) {
		t.Errorf("Expected ErrArbiterMalformedResponse, got %v", err)
	}
}

func TestOllama_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2", "deepgram", time.Second, nil)
	_, err := o.Arbitrate(context.Background(), testRequest())
	if !errors.Is(err, ErrArbiterUnavailable) {
		t.Errorf("Expected ErrArbiterUnavailable, got %v", err)
	}
}

func TestOllama_UnreachableEndpoint(t *testing.T) {
	o := NewOllama("http://127.0.0.1:1", "llama3.2", "deepgram", 500*time.Millisecond, nil)
	_, err := o.Arbitrate(context.Background(), testRequest())
	if !errors.Is(err, ErrArbiterUnavailable) && !errors.Is(err, ErrArbiterTimeout) {
		t.Errorf("Expected unavailable or timeout, got %v", err)
	}
}

func TestOllama_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := resilience.NewCircuitBreaker("arbiter", 2, time.Minute)
	o := NewOllama(srv.URL, "llama3.2", "deepgram", time.Second, breaker)

	for i := 0; i < 2; i++ {
		if _, err := o.Arbitrate(context.Background(), testRequest()); err == nil {
			t.Fatal("Expected failure")
		}
	}
	if breaker.GetState() != resilience.StateOpen {
		t.Fatalf("Expected open circuit after repeated failures, got %v", breaker.GetState())
	}
	_, err := o.Arbitrate(context.Background(), testRequest())
	if !errors.Is(err, ErrArbiterUnavailable) {
		t.Errorf("Expected ErrArbiterUnavailable with open circuit, got %v", err)
	}
}

func TestBuildPrompt_IncludesContextAndDisputes(t *testing.T) {
	prompt := buildPrompt(testRequest())
	for _, want := range []string{"We were talking about dessert.", "deepgram", "assemblyai", "position"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
}

package arbiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beliczki/transcriber/internal/consolidate"
	"github.com/beliczki/transcriber/internal/observability"
	"github.com/beliczki/transcriber/internal/resilience"
	"github.com/beliczki/transcriber/internal/transcript"
)

// Ollama consolidates transcripts through an Ollama-compatible /api/generate
// endpoint. The model is asked to answer with a strict JSON object choosing
// one word per disputed position; anything else is a malformed response and
// the caller falls back to the deterministic merge.
type Ollama struct {
	endpoint string
	model    string
	primary  string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type arbiterDecision struct {
	Position int    `json:"position"`
	Word     string `json:"word"`
}

type arbiterAnswer struct {
	Decisions []arbiterDecision `json:"decisions"`
	Rationale string            `json:"rationale,omitempty"`
}

const arbiterSystemPrompt = "You reconcile two imperfect speech-to-text transcripts of the same audio. " +
	"For every disputed position, pick the word that best fits the surrounding text and prior context. " +
	`Answer only with JSON: {"decisions":[{"position":<int>,"word":"<word>"}],"rationale":"<short reason>"}`

func NewOllama(endpoint, model, primary string, timeout time.Duration, breaker *resilience.CircuitBreaker) *Ollama {
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		primary:  primary,
		client:   &http.Client{Timeout: timeout},
		breaker:  breaker,
	}
}

func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

func (o *Ollama) Arbitrate(ctx context.Context, req *Request) (*transcript.ConsolidatedTranscript, error) {
	logger := observability.GetLogger()

	var answer arbiterAnswer
	call := func() error {
		var err error
		answer, err = o.generate(ctx, req)
		return err
	}

	var err error
	if o.breaker != nil {
		err = o.breaker.Call(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: circuit open", ErrArbiterUnavailable)
		}
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}

	choices := make(map[int]string, len(answer.Decisions))
	for _, d := range answer.Decisions {
		choices[d.Position] = d.Word
	}
	logger.Debug().
		Int("decisions", len(choices)).
		Str("arbiter", o.Name()).
		Msg("Arbiter resolved disagreements")

	return consolidate.Arbitrated(req.A, req.B, req.Pairs, choices, o.Name(), answer.Rationale, o.primary), nil
}

func (o *Ollama) generate(ctx context.Context, req *Request) (arbiterAnswer, error) {
	payload := ollamaRequest{
		Model:  o.model,
		Prompt: buildPrompt(req),
		System: arbiterSystemPrompt,
		Format: "json",
		Stream: false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return arbiterAnswer{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return arbiterAnswer{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return arbiterAnswer{}, fmt.Errorf("%w: %v", ErrArbiterTimeout, err)
		}
		return arbiterAnswer{}, fmt.Errorf("%w: %v", ErrArbiterUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return arbiterAnswer{}, fmt.Errorf("%w: status %s", ErrArbiterUnavailable, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return arbiterAnswer{}, fmt.Errorf("%w: %v", ErrArbiterUnavailable, err)
	}

	var outer ollamaResponse
	if err := json.Unmarshal(raw, &outer); err != nil {
		return arbiterAnswer{}, fmt.Errorf("%w: %v", ErrArbiterMalformedResponse, err)
	}

	var answer arbiterAnswer
	if err := json.Unmarshal([]byte(outer.Response), &answer); err != nil {
		return arbiterAnswer{}, fmt.Errorf("%w: %v", ErrArbiterMalformedResponse, err)
	}
	for _, d := range answer.Decisions {
		if d.Word == "" {
			return arbiterAnswer{}, fmt.Errorf("%w: empty word at position %d", ErrArbiterMalformedResponse, d.Position)
		}
	}
	return answer, nil
}

// buildPrompt renders both transcripts, the disputed positions, and recent
// session context into a single prompt.
func buildPrompt(req *Request) string {
	var b strings.Builder
	if len(req.Context) > 0 {
		b.WriteString("Previous sentences:\n")
		for _, s := range req.Context {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Transcript from %s: %q\n", req.A.Engine, req.A.Text)
	fmt.Fprintf(&b, "Transcript from %s: %q\n\nDisputed positions:\n", req.B.Engine, req.B.Text)
	for _, p := range req.Pairs {
		if p.Agree {
			continue
		}
		aWord, bWord := "(none)", "(none)"
		if p.A != nil {
			aWord = p.A.Word
		}
		if p.B != nil {
			bWord = p.B.Word
		}
		fmt.Fprintf(&b, "- position %d: %q vs %q\n", p.Position, aWord, bWord)
	}
	return b.String()
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/pario-ai/glimpse/pkg/models"
)

func testPayload() *models.Payload {
	return &models.Payload{
		Query:             "why does this fail?",
		WindowTitle:       "Terminal - go test",
		UITreeSummary:     "Terminal - go test [0,0 1920x1080]",
		Processes:         []string{"bash", "go"},
		ScreenshotCaption: "A terminal showing a failing test.",
		Events: []models.InputEvent{
			{Kind: models.EventText, Value: "go test"},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt(testPayload())
	for _, want := range []string{
		"Question: why does this fail?",
		"Focused window: Terminal - go test",
		"Running programs: bash, go",
		"Screen: A terminal showing a failing test.",
		"Recently typed:\ngo test",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("prompt should not end with a newline")
	}
}

func TestBuildPromptSkipsEmptyFields(t *testing.T) {
	got := BuildPrompt(&models.Payload{WindowTitle: "Editor"})
	if got != "Focused window: Editor" {
		t.Errorf("unexpected prompt %q", got)
	}
}

func ollamaServer(t *testing.T, lines []string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}
		w.WriteHeader(status)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaStream(t *testing.T) {
	srv := ollamaServer(t, []string{
		`{"response":"Run ","done":false}`,
		``,
		`{"response":"go vet.","done":false}`,
		`{"response":"","done":true,"prompt_eval_count":42,"eval_count":7}`,
	}, http.StatusOK)

	var usage models.Usage
	calls := 0
	b := NewOllamaBackend(srv.URL, "tiny")
	s, err := b.Generate(context.Background(), Request{
		Payload:   testPayload(),
		MaxTokens: 32,
		OnUsage:   func(u models.Usage) { usage = u; calls++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var text strings.Builder
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		text.WriteString(tok.Text)
	}
	if text.String() != "Run go vet." {
		t.Errorf("expected %q, got %q", "Run go vet.", text.String())
	}
	if calls != 1 {
		t.Fatalf("expected usage reported once, got %d", calls)
	}
	if usage.PromptTokens != 42 || usage.CompletionTokens != 7 || usage.TotalTokens != 49 {
		t.Errorf("unexpected usage %+v", usage)
	}
	if b.Name() != models.BackendLocal {
		t.Errorf("expected local, got %s", b.Name())
	}
}

func TestOllamaTruncatedStream(t *testing.T) {
	srv := ollamaServer(t, []string{`{"response":"partial","done":false}`}, http.StatusOK)
	s, err := NewOllamaBackend(srv.URL, "tiny").Generate(context.Background(), Request{Payload: testPayload()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Recv(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Recv(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestOllamaErrorChunk(t *testing.T) {
	srv := ollamaServer(t, []string{`{"error":"model not found"}`}, http.StatusOK)
	s, err := NewOllamaBackend(srv.URL, "tiny").Generate(context.Background(), Request{Payload: testPayload()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Recv(); err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("expected model not found error, got %v", err)
	}
}

func TestOllamaHTTPError(t *testing.T) {
	srv := ollamaServer(t, []string{"boom"}, http.StatusInternalServerError)
	_, err := NewOllamaBackend(srv.URL, "tiny").Generate(context.Background(), Request{Payload: testPayload()})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestTokenFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:     &genai.Content{Parts: []*genai.Part{{Text: "hello"}}},
			AvgLogprobs: math.Log(0.9),
		}},
	}
	tok, ok := tokenFromResponse(resp)
	if !ok {
		t.Fatal("expected a token")
	}
	if tok.Text != "hello" {
		t.Errorf("expected hello, got %q", tok.Text)
	}
	if math.Abs(tok.Confidence-0.9) > 1e-9 {
		t.Errorf("expected confidence 0.9, got %v", tok.Confidence)
	}

	empty := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}
	if _, ok := tokenFromResponse(empty); ok {
		t.Error("expected no token for an empty chunk")
	}
}

func TestSeqStreamReportsUsageAtEnd(t *testing.T) {
	chunks := []*genai.GenerateContentResponse{
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "a"}}}}}},
		{
			Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "b"}}}}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
				PromptTokenCount: 10, CandidatesTokenCount: 2,
			},
		},
	}
	seq := func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}

	var got []models.Usage
	s := newSeqStream(seq, func(u models.Usage) { got = append(got, u) })
	defer s.Close()

	var text string
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		text += tok.Text
	}
	if text != "ab" {
		t.Errorf("expected ab, got %q", text)
	}
	if len(got) != 1 || got[0].TotalTokens != 12 {
		t.Errorf("unexpected usage reports %+v", got)
	}
}

func TestSeqStreamError(t *testing.T) {
	seq := func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(nil, errors.New("quota"))
	}
	s := newSeqStream(seq, nil)
	defer s.Close()
	if _, err := s.Recv(); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("expected quota error, got %v", err)
	}
}

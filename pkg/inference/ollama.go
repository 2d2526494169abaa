package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pario-ai/glimpse/pkg/models"
)

// OllamaBackend is the local backend, served by an Ollama instance.
type OllamaBackend struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaBackend creates a local backend. The HTTP client has no overall
// timeout; calls are bounded by their context.
func NewOllamaBackend(endpoint, model string) *OllamaBackend {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2:3b"
	}
	return &OllamaBackend{endpoint: endpoint, model: model, client: &http.Client{}}
}

func (o *OllamaBackend) Name() models.Backend { return models.BackendLocal }
func (o *OllamaBackend) Model() string        { return o.model }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate posts to /api/generate and streams the NDJSON response.
func (o *OllamaBackend) Generate(ctx context.Context, req Request) (Stream, error) {
	body := ollamaGenerateRequest{
		Model:  o.model,
		System: SystemPrompt,
		Prompt: BuildPrompt(req.Payload),
		Stream: true,
	}
	if req.MaxTokens > 0 {
		body.Options = map[string]any{"num_predict": req.MaxTokens}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	return &ollamaStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body), onUsage: req.OnUsage}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	onUsage func(models.Usage)
	done    bool
}

func (s *ollamaStream) Recv() (Token, error) {
	for !s.done && s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return Token{}, fmt.Errorf("decode ollama chunk: %w", err)
		}
		if chunk.Error != "" {
			return Token{}, fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Done {
			s.done = true
			if s.onUsage != nil {
				s.onUsage(models.Usage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				})
			}
		}
		if chunk.Response != "" {
			return Token{Text: chunk.Response}, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return Token{}, fmt.Errorf("reading stream: %w", err)
	}
	if !s.done {
		return Token{}, io.ErrUnexpectedEOF
	}
	return Token{}, io.EOF
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}

package inference

import (
	"context"
	"fmt"
	"io"
	"iter"
	"math"

	"google.golang.org/genai"

	"github.com/pario-ai/glimpse/pkg/models"
)

// GenAIBackend is the cloud backend, served by Google's GenAI API.
type GenAIBackend struct {
	client *genai.Client
	model  string
}

// NewGenAIBackend creates a cloud backend with its own client.
func NewGenAIBackend(ctx context.Context, apiKey, model string) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}
	return NewGenAIBackendFromClient(client, model), nil
}

// NewGenAIBackendFromClient wraps an existing client.
func NewGenAIBackendFromClient(c *genai.Client, model string) *GenAIBackend {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GenAIBackend{client: c, model: model}
}

func (g *GenAIBackend) Name() models.Backend { return models.BackendCloud }
func (g *GenAIBackend) Model() string        { return g.model }

// Generate starts a streamed completion. The request is sent lazily on the
// first Recv, so the first-token wait covers connection setup too.
func (g *GenAIBackend) Generate(ctx context.Context, req Request) (Stream, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	contents := genai.Text(BuildPrompt(req.Payload))
	seq := g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg)
	return newSeqStream(seq, req.OnUsage), nil
}

// seqStream adapts a GenAI response iterator to Stream.
type seqStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	onUsage func(models.Usage)
	usage   *genai.GenerateContentResponseUsageMetadata
	done    bool
}

func newSeqStream(seq iter.Seq2[*genai.GenerateContentResponse, error], onUsage func(models.Usage)) *seqStream {
	next, stop := iter.Pull2(seq)
	return &seqStream{next: next, stop: stop, onUsage: onUsage}
}

func (s *seqStream) Recv() (Token, error) {
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			s.reportUsage()
			return Token{}, io.EOF
		}
		if err != nil {
			return Token{}, fmt.Errorf("GenAI stream failed: %w", err)
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			s.usage = resp.UsageMetadata
		}
		if tok, ok := tokenFromResponse(resp); ok {
			return tok, nil
		}
	}
	return Token{}, io.EOF
}

func (s *seqStream) reportUsage() {
	if s.onUsage == nil || s.usage == nil {
		return
	}
	u := models.Usage{
		PromptTokens:     int(s.usage.PromptTokenCount),
		CompletionTokens: int(s.usage.CandidatesTokenCount),
		TotalTokens:      int(s.usage.TotalTokenCount),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	s.onUsage(u)
}

func (s *seqStream) Close() error {
	s.stop()
	return nil
}

// tokenFromResponse extracts the text of one streamed chunk. The chunk's
// average log-probability, when present, becomes the token confidence.
func tokenFromResponse(resp *genai.GenerateContentResponse) (Token, bool) {
	text := resp.Text()
	if text == "" {
		return Token{}, false
	}
	tok := Token{Text: text}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		if lp := resp.Candidates[0].AvgLogprobs; lp != 0 {
			tok.Confidence = math.Min(1, math.Exp(lp))
		}
	}
	return tok, true
}

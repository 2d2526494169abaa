// Package vision grabs the screen and describes it in one sentence.
package vision

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pario-ai/glimpse/pkg/capture"
	"github.com/pario-ai/glimpse/pkg/metadata"
)

// CaptionPrompt asks the model for a single descriptive sentence.
const CaptionPrompt = "Describe what the user is looking at on this screen in one short sentence. " +
	"Name the application and the task in progress. Do not speculate."

// GenAICaptioner captions screenshots with a multimodal GenAI model.
type GenAICaptioner struct {
	client *genai.Client
	model  string
}

// NewGenAICaptioner creates a captioner with its own client.
func NewGenAICaptioner(ctx context.Context, apiKey, model string) (*GenAICaptioner, error) {
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
	return NewGenAICaptionerFromClient(client, model), nil
}

// NewGenAICaptionerFromClient wraps an existing client.
func NewGenAICaptionerFromClient(c *genai.Client, model string) *GenAICaptioner {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GenAICaptioner{client: c, model: model}
}

// Caption returns a one-sentence description of img.
func (g *GenAICaptioner) Caption(ctx context.Context, img capture.Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("empty screenshot")
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, mime),
			genai.NewPartFromText(CaptionPrompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: 64,
	})
	if err != nil {
		return "", fmt.Errorf("GenAI caption failed: %w", err)
	}
	return captionFromResponse(resp)
}

func captionFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("no caption returned")
	}
	text := FirstSentence(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no caption returned")
	}
	return text, nil
}

// FirstSentence collapses whitespace in s and returns its first sentence.
func FirstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 == len(s) || s[i+1] == ' ' {
				return s[:i+1]
			}
		}
	}
	return s
}

// CommandScreen captures the screen by running an external tool that writes
// an encoded image to stdout.
type CommandScreen struct {
	run      metadata.Runner
	name     string
	args     []string
	mimeType string
}

// NewCommandScreen creates a grabber that runs name with args. An empty name
// uses ImageMagick's `import -window root png:-`.
func NewCommandScreen(run metadata.Runner, name string, args ...string) *CommandScreen {
	if run == nil {
		run = metadata.ExecRunner
	}
	if name == "" {
		name = "import"
		args = []string{"-window", "root", "png:-"}
	}
	return &CommandScreen{run: run, name: name, args: args, mimeType: "image/png"}
}

// Screenshot runs the capture command.
func (s *CommandScreen) Screenshot(ctx context.Context) (capture.Image, error) {
	data, err := s.run(ctx, s.name, s.args...)
	if err != nil {
		return capture.Image{}, err
	}
	if len(data) == 0 {
		return capture.Image{}, fmt.Errorf("%s produced no image", s.name)
	}
	return capture.Image{Data: data, MIMEType: s.mimeType}, nil
}

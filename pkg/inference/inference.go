// Package inference defines the model invocation contract used by the
// decision engine and its local (Ollama) and cloud (GenAI) backends.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/glimpse/pkg/cache"
	"github.com/pario-ai/glimpse/pkg/models"
)

// ErrEmptyResponse is returned when a backend finishes without producing
// any text.
var ErrEmptyResponse = errors.New("backend returned an empty response")

// Token is one streamed fragment of an answer.
type Token struct {
	Text string
	// Confidence is the backend's probability estimate for this fragment in
	// (0, 1], or zero when the backend does not report one.
	Confidence float64
}

// Stream yields tokens until io.EOF. Recv and Close must not be called
// concurrently; handing a stream to another goroutine is fine.
type Stream interface {
	Recv() (Token, error)
	Close() error
}

// Request is one invocation of a backend.
type Request struct {
	RequestID string
	Payload   *models.Payload
	MaxTokens int
	// OnUsage, if set, is called at most once with the token usage the
	// backend reported for this request.
	OnUsage func(models.Usage)
}

// Backend is a language-model inference capability.
type Backend interface {
	Name() models.Backend
	Model() string
	// Generate starts a streamed completion. Cancelling ctx aborts the
	// underlying call; the returned Stream then fails on its next Recv.
	Generate(ctx context.Context, req Request) (Stream, error)
}

// SystemPrompt frames every request.
const SystemPrompt = `You are a desktop assistant. You are given a short snapshot of what the user
was just doing: recent keystrokes, the focused window, visible windows, running
programs and a description of the screen. Answer the user's question, or if there
is none, offer the single most useful next step. Be brief.`

// BuildPrompt renders a payload as the user turn of a completion request.
func BuildPrompt(p *models.Payload) string {
	var b strings.Builder
	if p.Query != "" {
		fmt.Fprintf(&b, "Question: %s\n\n", p.Query)
	}
	if p.WindowTitle != "" {
		fmt.Fprintf(&b, "Focused window: %s\n", p.WindowTitle)
	}
	if p.UITreeSummary != "" {
		fmt.Fprintf(&b, "Visible windows:\n%s\n", p.UITreeSummary)
	}
	if len(p.Processes) > 0 {
		fmt.Fprintf(&b, "Running programs: %s\n", strings.Join(p.Processes, ", "))
	}
	if p.ScreenshotCaption != "" {
		fmt.Fprintf(&b, "Screen: %s\n", p.ScreenshotCaption)
	}
	if typed := cache.Intent(p.Events); typed != "" {
		fmt.Fprintf(&b, "Recently typed:\n%s\n", typed)
	}
	return strings.TrimRight(b.String(), "\n")
}

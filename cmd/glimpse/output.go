package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pario-ai/glimpse/pkg/inference"
	"github.com/pario-ai/glimpse/pkg/models"
)

// answerPrinter writes whole answers as they resolve.
type answerPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *answerPrinter) OnAnswer(_ *models.Payload, a *models.Answer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s\n-- %s\n", strings.TrimSpace(a.Text), describe(a))
}

func (p *answerPrinter) OnFailure(_ *models.Payload, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "error: %v\n", err)
}

// tokenPrinter streams tokens of a single answer. A switch of backend
// mid-answer is marked on its own line.
type tokenPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	backend models.Backend
	wrote   bool
}

func (p *tokenPrinter) sink(b models.Backend, tok inference.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wrote && b != p.backend {
		fmt.Fprintf(p.w, "\n[%s took over]\n", b)
	}
	p.backend = b
	p.wrote = true
	fmt.Fprint(p.w, tok.Text)
}

// describe summarizes where an answer came from.
func describe(a *models.Answer) string {
	var src string
	switch {
	case a.Rulebook:
		src = "rulebook"
	case a.CacheHit:
		src = fmt.Sprintf("cache (%s", a.CacheTier)
		if a.CacheTier == models.TierSimilar {
			src += fmt.Sprintf(", similarity %.3f", a.Similarity)
		}
		src += ")"
	default:
		src = fmt.Sprintf("%s %s", a.Backend, a.Model)
		if a.FellBack {
			src += " (fallback)"
		}
		if a.EarlyExit {
			src += " (early exit)"
		}
	}
	return fmt.Sprintf("%s, %s", src, a.Latency.Round(time.Millisecond))
}

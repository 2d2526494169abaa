package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pario-ai/glimpse/pkg/models"
)

// maxIntentRunes bounds the keystroke intent fed to the embedder.
const maxIntentRunes = 512

type canonicalEvent struct {
	Kind  models.EventKind `json:"k"`
	Value string           `json:"v"`
}

type canonicalPayload struct {
	Query     string           `json:"q"`
	Events    []canonicalEvent `json:"e"`
	Title     string           `json:"t"`
	UITree    string           `json:"u"`
	Processes []string         `json:"p"`
	Caption   string           `json:"c"`
}

// Key computes the exact-match key of a payload: a SHA-256 over a canonical
// serialization with volatile fields (timestamps, host info, trigger kind)
// removed and the process list sorted.
func Key(p *models.Payload) string {
	cp := canonicalPayload{
		Query:     p.Query,
		Events:    make([]canonicalEvent, len(p.Events)),
		Title:     p.WindowTitle,
		UITree:    p.UITreeSummary,
		Processes: slices.Clone(p.Processes),
		Caption:   p.ScreenshotCaption,
	}
	for i, ev := range p.Events {
		cp.Events[i] = canonicalEvent{Kind: ev.Kind, Value: ev.Value}
	}
	slices.Sort(cp.Processes)

	h := sha256.New()
	data, _ := json.Marshal(cp)
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SemanticText is the text embedded for the similarity tier: the caption,
// the window title and a summary of what the user typed.
func SemanticText(p *models.Payload) string {
	var b strings.Builder
	b.WriteString(p.ScreenshotCaption)
	b.WriteByte('\n')
	b.WriteString(p.WindowTitle)
	b.WriteByte('\n')
	if p.Query != "" {
		b.WriteString(p.Query)
		b.WriteByte('\n')
	}
	b.WriteString(Intent(p.Events))
	return b.String()
}

// Intent replays key and text events into the text the user most likely
// meant to type, keeping only the trailing maxIntentRunes runes.
func Intent(events []models.InputEvent) string {
	var buf []rune
	for _, ev := range events {
		switch ev.Kind {
		case models.EventText:
			buf = append(buf, []rune(ev.Value)...)
		case models.EventKeyDown:
			switch ev.Value {
			case "Backspace", "BackSpace":
				if len(buf) > 0 {
					buf = buf[:len(buf)-1]
				}
			case "Enter", "Return":
				buf = append(buf, '\n')
			case "Space", "space":
				buf = append(buf, ' ')
			case "Tab":
				buf = append(buf, '\t')
			default:
				if utf8.RuneCountInString(ev.Value) == 1 {
					buf = append(buf, []rune(ev.Value)...)
				}
			}
		}
	}
	if len(buf) > maxIntentRunes {
		buf = buf[len(buf)-maxIntentRunes:]
	}
	return strings.TrimSpace(string(buf))
}

package pipeline

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/pario-ai/glimpse/pkg/models"
)

// Line prefixes understood by ScanInput.
const (
	ChatPrefix   = "?"
	HotkeyPrefix = "!"
	AcceptLine   = "+"
	RejectLine   = "-"
)

// ScanInput reads line-oriented input from r. A line starting with "?" is a
// chat trigger carrying the rest of the line, a line starting with "!" is a
// hotkey trigger, a lone "+" or "-" accepts or rejects the last answer, and
// any other line is recorded as typed text. It returns when r is exhausted
// or ctx is cancelled.
func (p *Pipeline) ScanInput(ctx context.Context, r io.Reader, triggers chan<- models.Trigger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		var trig models.Trigger
		switch {
		case line == AcceptLine:
			p.AcceptLast()
			continue
		case line == RejectLine:
			p.RejectLast()
			continue
		case strings.HasPrefix(line, ChatPrefix):
			trig = models.Trigger{Kind: models.TriggerChat, Message: strings.TrimSpace(line[len(ChatPrefix):])}
		case strings.HasPrefix(line, HotkeyPrefix):
			trig = models.Trigger{Kind: models.TriggerHotkey}
		default:
			if line != "" {
				p.Record(models.EventText, line)
			}
			continue
		}
		select {
		case triggers <- trig:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

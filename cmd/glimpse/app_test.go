package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/glimpse/pkg/capture"
	"github.com/pario-ai/glimpse/pkg/config"
	"github.com/pario-ai/glimpse/pkg/distill"
	"github.com/pario-ai/glimpse/pkg/inference"
	"github.com/pario-ai/glimpse/pkg/models"
)

type staticMetadata struct{}

func (staticMetadata) ActiveWindow(context.Context) (capture.Window, error) {
	return capture.Window{Title: "report.xlsx - Sheets", UITreeSummary: "report.xlsx - Sheets (1920x1080 at 0,0, 100% visible) [focused]"}, nil
}

func (staticMetadata) RunningProcesses(context.Context) ([]string, error) {
	return []string{"sheets"}, nil
}

type fixedBackend struct {
	name  models.Backend
	text  string
	calls int
}

func (b *fixedBackend) Name() models.Backend { return b.name }
func (b *fixedBackend) Model() string        { return "fixed-" + string(b.name) }

func (b *fixedBackend) Generate(context.Context, inference.Request) (inference.Stream, error) {
	b.calls++
	return &fixedStream{tokens: strings.SplitAfter(b.text, " ")}, nil
}

type fixedStream struct{ tokens []string }

func (s *fixedStream) Recv() (inference.Token, error) {
	if len(s.tokens) == 0 {
		return inference.Token{}, io.EOF
	}
	t := s.tokens[0]
	s.tokens = s.tokens[1:]
	return inference.Token{Text: t}, nil
}

func (s *fixedStream) Close() error { return nil }

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "glimpse.db")
	cfg.Distill.SpoolPath = filepath.Join(dir, "distill.jsonl")
	cfg.Local.URL = ""
	cfg.Vision.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts appOptions) *app {
	t.Helper()
	if opts.Metadata == nil {
		opts.Metadata = staticMetadata{}
	}
	a, err := newApp(context.Background(), cfg, nil, opts)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAppAnswersThenServesFromCache(t *testing.T) {
	local := &fixedBackend{name: models.BackendLocal, text: "Use SUM over column B."}
	a := newTestApp(t, newTestConfig(t), appOptions{Local: local})

	trig := models.Trigger{Kind: models.TriggerChat, Message: "how do I total this column?"}
	first, err := a.pipeline.Trigger(context.Background(), trig)
	if err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if first.Backend != models.BackendLocal || first.CacheHit {
		t.Errorf("expected a local answer, got backend %q cache %v", first.Backend, first.CacheHit)
	}
	if first.Text != local.text {
		t.Errorf("expected %q, got %q", local.text, first.Text)
	}

	second, err := a.pipeline.Trigger(context.Background(), trig)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if !second.CacheHit || second.CacheTier != models.TierExact {
		t.Errorf("expected an exact cache hit, got hit %v tier %s", second.CacheHit, second.CacheTier)
	}
	if local.calls != 1 {
		t.Errorf("expected 1 backend call, got %d", local.calls)
	}

	n, err := a.store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 persisted entry, got %d", n)
	}
}

func TestAppCacheSurvivesRestart(t *testing.T) {
	cfg := newTestConfig(t)
	trig := models.Trigger{Kind: models.TriggerChat, Message: "what is this?"}

	a, err := newApp(context.Background(), cfg, nil, appOptions{
		Metadata: staticMetadata{},
		Local:    &fixedBackend{name: models.BackendLocal, text: "A spreadsheet."},
	})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if _, err := a.pipeline.Trigger(context.Background(), trig); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	local := &fixedBackend{name: models.BackendLocal, text: "unused"}
	b := newTestApp(t, cfg, appOptions{Local: local})
	ans, err := b.pipeline.Trigger(context.Background(), trig)
	if err != nil {
		t.Fatalf("trigger after restart: %v", err)
	}
	if !ans.CacheHit || ans.Text != "A spreadsheet." {
		t.Errorf("expected restored cache hit, got hit %v text %q", ans.CacheHit, ans.Text)
	}
	if local.calls != 0 {
		t.Errorf("expected no backend calls, got %d", local.calls)
	}
}

func TestAppSpoolsAcceptedCloudAnswersOnClose(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Cache.Enabled = false
	a, err := newApp(context.Background(), cfg, nil, appOptions{
		Metadata: staticMetadata{},
		Cloud:    &fixedBackend{name: models.BackendCloud, text: "Select the column and press Alt+="},
	})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	ans, err := a.pipeline.Trigger(context.Background(), models.Trigger{Kind: models.TriggerChat, Message: "sum?"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ans.Backend != models.BackendCloud {
		t.Fatalf("expected cloud answer, got %q", ans.Backend)
	}
	if !a.pipeline.AcceptLast() {
		t.Fatal("expected the last answer to be accepted")
	}
	if a.queue.Len() != 1 {
		t.Errorf("expected 1 queued record, got %d", a.queue.Len())
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	n, err := distill.CountSpooled(cfg.Distill.SpoolPath)
	if err != nil {
		t.Fatalf("count spooled: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 spooled record, got %d", n)
	}
}

func TestNewAppRequiresABackend(t *testing.T) {
	_, err := newApp(context.Background(), newTestConfig(t), nil, appOptions{Metadata: staticMetadata{}})
	if err == nil {
		t.Fatal("expected error without any backend")
	}
}

func TestScheduledJobs(t *testing.T) {
	cfg := newTestConfig(t)
	local := &fixedBackend{name: models.BackendLocal, text: "ok"}

	names := func(a *app) []string {
		var out []string
		for _, s := range a.scheduler.Stats() {
			out = append(out, s.Name)
		}
		slices.Sort(out)
		return out
	}

	a := newTestApp(t, cfg, appOptions{Local: local})
	if got := names(a); !slices.Equal(got, []string{"distill-spool", "recalibrate"}) {
		t.Errorf("expected spool and recalibrate jobs, got %v", got)
	}

	cfg2 := newTestConfig(t)
	cfg2.Cache.MaxAge = 24 * time.Hour
	b := newTestApp(t, cfg2, appOptions{Local: local})
	if got := names(b); !slices.Equal(got, []string{"cache-sweep", "distill-spool", "recalibrate"}) {
		t.Errorf("expected cache sweep job too, got %v", got)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		answer models.Answer
		want   string
	}{
		{"rulebook", models.Answer{Rulebook: true}, "rulebook, 0s"},
		{"exact", models.Answer{CacheHit: true, CacheTier: models.TierExact}, "cache (exact), 0s"},
		{"similar", models.Answer{CacheHit: true, CacheTier: models.TierSimilar, Similarity: 0.93}, "cache (similar, similarity 0.930), 0s"},
		{"fallback", models.Answer{Backend: models.BackendLocal, Model: "llama", FellBack: true, Latency: 1500 * time.Millisecond}, "local llama (fallback), 1.5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describe(&tt.answer); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTokenPrinterMarksBackendSwitch(t *testing.T) {
	var buf bytes.Buffer
	p := &tokenPrinter{w: &buf}
	p.sink(models.BackendCloud, inference.Token{Text: "Hel"})
	p.sink(models.BackendLocal, inference.Token{Text: "Hello"})

	want := "Hel\n[local took over]\nHello"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

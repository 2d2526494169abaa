// Package capture assembles the bounded snapshot submitted for each user
// trigger: recent input events, window and process metadata, and a
// one-sentence caption of the screen.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultCaptionTimeout bounds the wait for a screen caption.
const DefaultCaptionTimeout = 750 * time.Millisecond

// Window describes the focused window.
type Window struct {
	Title         string
	UITreeSummary string
}

// MetadataProvider reads desktop state.
type MetadataProvider interface {
	ActiveWindow(ctx context.Context) (Window, error)
	RunningProcesses(ctx context.Context) ([]string, error)
}

// Image is an encoded screenshot.
type Image struct {
	Data     []byte
	MIMEType string
}

// Screen grabs a screenshot.
type Screen interface {
	Screenshot(ctx context.Context) (Image, error)
}

// Captioner describes a screenshot in one sentence.
type Captioner interface {
	Caption(ctx context.Context, img Image) (string, error)
}

// EventSource yields the input events recorded within a trailing window.
type EventSource interface {
	Drain(window time.Duration) []models.InputEvent
}

// Options configures an Assembler. Screen and Captioner are optional.
type Options struct {
	Events    EventSource
	Metadata  MetadataProvider
	Screen    Screen
	Captioner Captioner

	EventWindow      time.Duration
	MaxBytes         int
	CaptionTimeout   time.Duration
	RequireWindow    bool
	RequireProcesses bool

	Hostname string
	Platform string
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Stats counts absorbed failures.
type Stats struct {
	Captures         int64
	CaptionTimeouts  int64
	CaptionFailures  int64
	MetadataFailures int64
	Truncated        int64
}

// Assembler builds payloads. Safe for concurrent use: drains of the
// single-consumer event source are serialized, and concurrent captures see
// the same in-window events.
type Assembler struct {
	opts Options
	log  *zap.Logger

	drainMu sync.Mutex

	captures         atomic.Int64
	captionTimeouts  atomic.Int64
	captionFailures  atomic.Int64
	metadataFailures atomic.Int64
	truncated        atomic.Int64
}

// New creates an Assembler.
func New(opts Options) (*Assembler, error) {
	if opts.Events == nil {
		return nil, fmt.Errorf("capture: event source is required")
	}
	if opts.Metadata == nil {
		return nil, fmt.Errorf("capture: metadata provider is required")
	}
	if opts.EventWindow <= 0 {
		opts.EventWindow = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.CaptionTimeout <= 0 {
		opts.CaptionTimeout = DefaultCaptionTimeout
	}
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS + "/" + runtime.GOARCH
	}
	if opts.Hostname == "" {
		opts.Hostname, _ = os.Hostname()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{opts: opts, log: log.Named("capture")}, nil
}

// Capture builds the payload for trig. It fails with
// models.ErrContextUnavailable only when required metadata cannot be read
// or the payload cannot fit the size cap; every other step degrades.
func (a *Assembler) Capture(ctx context.Context, trig models.Trigger) (*models.Payload, error) {
	a.captures.Add(1)
	p := &models.Payload{
		Query:     trig.Message,
		Events:    a.drain(),
		Platform:  a.opts.Platform,
		Hostname:  a.opts.Hostname,
		Trigger:   trig.Kind,
		Timestamp: a.opts.Clock.Now(),
	}
	if p.Events == nil {
		p.Events = []models.InputEvent{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := a.opts.Metadata.ActiveWindow(gctx)
		if err != nil {
			a.metadataFailures.Add(1)
			if a.opts.RequireWindow {
				return fmt.Errorf("%w: active window: %w", models.ErrContextUnavailable, err)
			}
			a.log.Debug("active window unavailable", zap.Error(err))
			return nil
		}
		p.WindowTitle = w.Title
		p.UITreeSummary = w.UITreeSummary
		return nil
	})
	g.Go(func() error {
		procs, err := a.opts.Metadata.RunningProcesses(gctx)
		if err != nil {
			a.metadataFailures.Add(1)
			if a.opts.RequireProcesses {
				return fmt.Errorf("%w: processes: %w", models.ErrContextUnavailable, err)
			}
			a.log.Debug("process list unavailable", zap.Error(err))
			return nil
		}
		p.Processes = procs
		return nil
	})
	if a.opts.Screen != nil && a.opts.Captioner != nil {
		g.Go(func() error {
			p.ScreenshotCaption = a.caption(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Warn("snapshot aborted", zap.Error(err))
		return nil, err
	}
	if p.Processes == nil {
		p.Processes = []string{}
	}

	tr, err := Truncate(p, a.opts.MaxBytes)
	if err != nil {
		a.log.Warn("snapshot aborted", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrContextUnavailable, err)
	}
	if tr.Any() {
		a.truncated.Add(1)
		a.log.Debug("payload truncated",
			zap.Int("events_dropped", tr.EventsDropped),
			zap.Int("processes_dropped", tr.ProcessesDropped),
			zap.Bool("ui_tree_clipped", tr.UITreeClipped))
	}
	return p, nil
}

func (a *Assembler) drain() []models.InputEvent {
	a.drainMu.Lock()
	defer a.drainMu.Unlock()
	return a.opts.Events.Drain(a.opts.EventWindow)
}

type captionResult struct {
	text string
	err  error
}

// caption grabs the screen and captions it within the caption timeout. It
// returns "" on any failure. A captioner that ignores cancellation is left
// to finish in the background.
func (a *Assembler) caption(ctx context.Context) string {
	cctx, cancel := context.WithTimeout(ctx, a.opts.CaptionTimeout)
	defer cancel()

	ch := make(chan captionResult, 1)
	go func() {
		img, err := a.opts.Screen.Screenshot(cctx)
		if err != nil {
			ch <- captionResult{err: fmt.Errorf("screenshot: %w", err)}
			return
		}
		text, err := a.opts.Captioner.Caption(cctx, img)
		ch <- captionResult{text: text, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.text
		}
		if errors.Is(r.err, context.DeadlineExceeded) {
			a.captionTimeouts.Add(1)
			a.log.Debug("caption timed out", zap.Error(models.ErrCaptionTimeout))
			return ""
		}
		a.captionFailures.Add(1)
		a.log.Debug("caption failed", zap.Error(r.err))
		return ""
	case <-cctx.Done():
		a.captionTimeouts.Add(1)
		a.log.Debug("caption timed out", zap.Duration("timeout", a.opts.CaptionTimeout), zap.Error(models.ErrCaptionTimeout))
		return ""
	}
}

// Stats returns counters of absorbed failures.
func (a *Assembler) Stats() Stats {
	return Stats{
		Captures:         a.captures.Load(),
		CaptionTimeouts:  a.captionTimeouts.Load(),
		CaptionFailures:  a.captionFailures.Load(),
		MetadataFailures: a.metadataFailures.Load(),
		Truncated:        a.truncated.Load(),
	}
}

// Package pipeline connects the stages: input events feed the ring, a
// trigger assembles a snapshot, and the decision engine answers it.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/router"
)

// DefaultConcurrency bounds the number of triggers handled at once.
const DefaultConcurrency = 4

// Listener receives the outcome of every trigger.
type Listener interface {
	OnAnswer(p *models.Payload, a *models.Answer)
	OnFailure(p *models.Payload, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Answer  func(p *models.Payload, a *models.Answer)
	Failure func(p *models.Payload, err error)
}

func (l ListenerFuncs) OnAnswer(p *models.Payload, a *models.Answer) {
	if l.Answer != nil {
		l.Answer(p, a)
	}
}

func (l ListenerFuncs) OnFailure(p *models.Payload, err error) {
	if l.Failure != nil {
		l.Failure(p, err)
	}
}

// Recorder is the producer side of the event ring.
type Recorder interface {
	Record(kind models.EventKind, value string)
}

// Assembler builds a payload for a trigger.
type Assembler interface {
	Capture(ctx context.Context, trig models.Trigger) (*models.Payload, error)
}

// Router answers a payload.
type Router interface {
	Handle(ctx context.Context, p *models.Payload, sink router.TokenSink) (*models.Answer, error)
}

// Feedback receives the user's verdict on an answer.
type Feedback interface {
	Accept(a *models.Answer)
	Reject(a *models.Answer)
}

// Options configures a Pipeline. Listener, Sink and Feedback are optional.
type Options struct {
	Events    Recorder
	Assembler Assembler
	Router    Router
	Listener  Listener
	Sink      router.TokenSink
	Feedback  Feedback

	Concurrency int
	Logger      *zap.Logger
}

// Stats counts trigger outcomes.
type Stats struct {
	Triggers int64
	Answered int64
	Failed   int64
}

// Pipeline runs triggers through capture and routing.
type Pipeline struct {
	opts Options
	log  *zap.Logger

	last atomic.Pointer[models.Answer]

	triggers atomic.Int64
	answered atomic.Int64
	failed   atomic.Int64
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Events == nil:
		return nil, fmt.Errorf("pipeline: event recorder is required")
	case opts.Assembler == nil:
		return nil, fmt.Errorf("pipeline: assembler is required")
	case opts.Router == nil:
		return nil, fmt.Errorf("pipeline: router is required")
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{opts: opts, log: log.Named("pipeline")}, nil
}

// Record appends an input event to the ring. It never blocks.
func (p *Pipeline) Record(kind models.EventKind, value string) {
	p.opts.Events.Record(kind, value)
}

// Trigger handles one trigger synchronously. Every outcome is also
// delivered to the listener.
func (p *Pipeline) Trigger(ctx context.Context, trig models.Trigger) (*models.Answer, error) {
	p.triggers.Add(1)
	payload, err := p.opts.Assembler.Capture(ctx, trig)
	if err != nil {
		p.fail(ctx, nil, err)
		return nil, err
	}
	answer, err := p.opts.Router.Handle(ctx, payload, p.opts.Sink)
	if err != nil {
		p.fail(ctx, payload, err)
		return nil, err
	}
	p.answered.Add(1)
	p.log.Debug("trigger answered",
		zap.String("trigger", string(trig.Kind)),
		zap.String("backend", string(answer.Backend)),
		zap.Bool("cache_hit", answer.CacheHit),
		zap.Duration("latency", answer.Latency))
	p.last.Store(answer)
	p.opts.Listener.OnAnswer(payload, answer)
	return answer, nil
}

// AcceptLast reports the most recent answer as accepted. It returns false
// when there is no answer to judge or no feedback sink.
func (p *Pipeline) AcceptLast() bool {
	return p.judgeLast(true)
}

// RejectLast reports the most recent answer as rejected.
func (p *Pipeline) RejectLast() bool {
	return p.judgeLast(false)
}

func (p *Pipeline) judgeLast(accepted bool) bool {
	if p.opts.Feedback == nil {
		return false
	}
	a := p.last.Swap(nil)
	if a == nil {
		return false
	}
	if accepted {
		p.opts.Feedback.Accept(a)
	} else {
		p.opts.Feedback.Reject(a)
	}
	return true
}

// fail reports err to the listener. A trigger abandoned because ctx ended is
// not a failure.
func (p *Pipeline) fail(ctx context.Context, payload *models.Payload, err error) {
	if ctx.Err() != nil {
		p.log.Debug("trigger abandoned", zap.Error(err))
		return
	}
	p.failed.Add(1)
	p.log.Warn("trigger failed", zap.Error(err))
	p.opts.Listener.OnFailure(payload, err)
}

// Run handles triggers from ch until ch is closed or ctx is cancelled, then
// waits for in-flight triggers. Failures go to the listener only.
func (p *Pipeline) Run(ctx context.Context, ch <-chan models.Trigger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for {
		select {
		case <-gctx.Done():
			return g.Wait()
		case trig, ok := <-ch:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				_, _ = p.Trigger(gctx, trig)
				return nil
			})
		}
	}
}

// Stats returns trigger counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Triggers: p.triggers.Load(),
		Answered: p.answered.Load(),
		Failed:   p.failed.Load(),
	}
}

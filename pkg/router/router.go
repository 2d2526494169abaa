// Package router is the decision engine: it answers a payload from the
// rulebook or the cache, or scores the local and cloud backends and
// dispatches to one of them with a timed fallback.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/budget"
	"github.com/pario-ai/glimpse/pkg/cache"
	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/distill"
	"github.com/pario-ai/glimpse/pkg/inference"
	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/tracker"
)

// DefaultFallbackWindow is how long a cloud dispatch may take to produce
// its first token before local takes over.
const DefaultFallbackWindow = 2 * time.Second

// TokenSink receives streamed tokens, tagged with the backend producing
// them. If a backend fails mid-stream and the other one takes over, the
// sink sees tokens from the second backend after those of the first.
type TokenSink func(b models.Backend, tok inference.Token)

// EarlyExit stops streaming once the running mean token confidence rises
// above Threshold, after at least MinTokens tokens.
type EarlyExit struct {
	Enabled   bool
	Threshold float64
	MinTokens int
}

// Options configures an Engine. Either backend may be nil, but not both.
type Options struct {
	Local inference.Backend
	Cloud inference.Backend

	Cache    *cache.Cache
	Ledger   *budget.Ledger
	Tracker  tracker.Tracker
	Queue    *distill.Queue
	Rulebook *Rulebook

	Confidence ConfidenceEstimator
	Tokens     TokenEstimator
	Calibrator *Calibrator
	Profiles   map[models.Backend]Profile

	CloudBias        float64
	FallbackWindow   time.Duration
	CompletionTokens int
	EarlyExit        EarlyExit

	Clock  clock.Clock
	Logger *zap.Logger
}

// Engine runs one state machine per request. Concurrent requests share
// only the cache, the ledger and the queue.
type Engine struct {
	opts Options
	log  *zap.Logger
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Local == nil && opts.Cloud == nil {
		return nil, fmt.Errorf("no backends configured")
	}
	if opts.CloudBias <= 0 {
		opts.CloudBias = DefaultCloudBias
	}
	if opts.FallbackWindow <= 0 {
		opts.FallbackWindow = DefaultFallbackWindow
	}
	if opts.CompletionTokens <= 0 {
		opts.CompletionTokens = 160
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Confidence == nil && opts.Calibrator != nil {
		opts.Confidence = opts.Calibrator
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{opts: opts, log: log.Named("router")}, nil
}

// request is the per-request state.
type request struct {
	id      string
	payload *models.Payload
	trace   []models.State
}

func (r *request) enter(s models.State) {
	r.trace = append(r.trace, s)
}

// result is the outcome of streaming one backend to completion.
type result struct {
	text      string
	tokens    int
	earlyExit bool
	usage     models.Usage
}

// attempt tracks usage for one dispatch. Usage reported after the attempt
// was abandoned is ignored.
type attempt struct {
	backend   inference.Backend
	abandoned atomic.Bool

	mu       sync.Mutex
	usage    models.Usage
	reported bool
}

// Handle resolves p to an answer. It returns models.ErrNoBackendAvailable
// when neither backend produced one.
func (e *Engine) Handle(ctx context.Context, p *models.Payload, sink TokenSink) (*models.Answer, error) {
	start := e.opts.Clock.Now()
	r := &request{id: uuid.NewString(), payload: p, trace: []models.State{models.StateIdle}}
	log := e.log.With(zap.String("request_id", r.id))

	r.enter(models.StateCacheCheck)
	if rule, ok := e.opts.Rulebook.Match(p); ok {
		log.Debug("rulebook match", zap.String("rule", rule.Name))
		r.enter(models.StateResolved)
		return e.answer(r, start, models.Answer{Text: rule.Answer, Rulebook: true}), nil
	}
	if e.opts.Cache != nil {
		if hit, ok := e.opts.Cache.Lookup(ctx, p); ok {
			log.Debug("cache hit", zap.String("tier", hit.Tier.String()), zap.Float64("similarity", hit.Similarity))
			r.enter(models.StateResolved)
			return e.answer(r, start, models.Answer{
				Text:       hit.Entry.Answer,
				CacheHit:   true,
				CacheTier:  hit.Tier,
				Similarity: hit.Similarity,
			}), nil
		}
	}

	r.enter(models.StateScoring)
	decision := e.Score(p)
	log.Debug("scored backends",
		zap.String("backend", string(decision.Backend)),
		zap.Float64("value_local", decision.ValueLocal),
		zap.Float64("value_cloud", decision.ValueCloud),
		zap.Bool("ceiling_forced", decision.CeilingForced))

	var errs []error
	for _, b := range e.plan(decision) {
		if b.Name() == models.BackendCloud && e.ceilingReached() {
			errs = append(errs, fmt.Errorf("cloud: %w", budget.ErrBudgetExceeded))
			continue
		}
		r.enter(models.DispatchState(b.Name()))
		res, err := e.dispatch(ctx, r, b, sink)
		if err != nil {
			log.Warn("backend failed", zap.String("backend", string(b.Name())), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.enter(models.StateResolved)
		if e.opts.Cache != nil {
			if err := e.opts.Cache.Insert(ctx, p, res.text); err != nil {
				log.Warn("cache insert failed", zap.Error(err))
			}
		}
		return e.answer(r, start, models.Answer{
			Text:      res.text,
			Backend:   b.Name(),
			Model:     b.Model(),
			FellBack:  b.Name() != decision.Backend,
			EarlyExit: res.earlyExit,
			Decision:  &decision,
			Usage:     res.usage,
		}), nil
	}

	r.enter(models.StateFailed)
	log.Warn("no backend available", zap.Any("trace", r.trace))
	return nil, fmt.Errorf("%w: %w", models.ErrNoBackendAvailable, errors.Join(errs...))
}

// plan orders the backends to try: the chosen one, then the other as a
// fallback. Each appears at most once.
func (e *Engine) plan(d models.RoutingDecision) []inference.Backend {
	var out []inference.Backend
	first, second := e.opts.Local, e.opts.Cloud
	if d.Backend == models.BackendCloud {
		first, second = e.opts.Cloud, e.opts.Local
	}
	for _, b := range []inference.Backend{first, second} {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

func (e *Engine) answer(r *request, start time.Time, a models.Answer) *models.Answer {
	a.RequestID = r.id
	a.Payload = r.payload
	a.Latency = e.opts.Clock.Now().Sub(start)
	a.Trace = r.trace
	return &a
}

// opened is the first step of a dispatch: a live stream and its first token.
type opened struct {
	stream inference.Stream
	first  inference.Token
	err    error
}

// dispatch invokes b and streams it to completion. A cloud dispatch that
// has not produced a first token within the fallback window is cancelled
// and fails with models.ErrBackendTimeout.
func (e *Engine) dispatch(ctx context.Context, r *request, b inference.Backend, sink TokenSink) (result, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	at := &attempt{backend: b}
	req := inference.Request{
		RequestID: r.id,
		Payload:   r.payload,
		MaxTokens: e.opts.CompletionTokens * 2,
		OnUsage: func(u models.Usage) {
			if at.abandoned.Load() {
				return
			}
			e.recordUsage(r, at, u)
		},
	}

	ch := make(chan opened)
	go func() {
		o := open(dctx, b, req)
		select {
		case ch <- o:
		case <-dctx.Done():
			// Nobody is waiting any more; discard the late stream.
			if o.stream != nil {
				o.stream.Close()
			}
		}
	}()

	var timeout <-chan time.Time
	if b.Name() == models.BackendCloud {
		timer := e.opts.Clock.NewTimer(e.opts.FallbackWindow)
		defer timer.Stop()
		timeout = timer.C()
	}

	var o opened
	select {
	case o = <-ch:
	case <-timeout:
		at.abandoned.Store(true)
		cancel()
		return result{}, models.ErrBackendTimeout
	case <-ctx.Done():
		at.abandoned.Store(true)
		cancel()
		return result{}, ctx.Err()
	}
	if o.err != nil {
		return result{}, o.err
	}

	r.enter(models.StateStreaming)
	res, err := e.stream(r, b, o, sink)
	if err != nil {
		return result{}, err
	}
	res.usage = e.settleUsage(r, at, res)
	return res, nil
}

// open starts b and waits for its first token.
func open(ctx context.Context, b inference.Backend, req inference.Request) opened {
	s, err := b.Generate(ctx, req)
	if err != nil {
		return opened{err: err}
	}
	tok, err := s.Recv()
	if err != nil {
		s.Close()
		if errors.Is(err, io.EOF) {
			err = inference.ErrEmptyResponse
		}
		return opened{err: err}
	}
	return opened{stream: s, first: tok}
}

// stream forwards tokens to sink until the backend finishes, fails, or the
// early-exit rule fires. It owns and closes o.stream.
func (e *Engine) stream(r *request, b inference.Backend, o opened, sink TokenSink) (result, error) {
	defer o.stream.Close()

	var text strings.Builder
	var scored int
	var confSum float64
	var res result

	tok := o.first
	for {
		text.WriteString(tok.Text)
		res.tokens++
		if tok.Confidence > 0 {
			scored++
			confSum += tok.Confidence
		}
		if sink != nil {
			sink(b.Name(), tok)
		}

		ee := e.opts.EarlyExit
		if ee.Enabled && scored > 0 && res.tokens >= ee.MinTokens && confSum/float64(scored) > ee.Threshold {
			res.earlyExit = true
			e.log.Debug("early exit", zap.String("request_id", r.id), zap.Int("tokens", res.tokens))
			break
		}

		var err error
		tok, err = o.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result{}, fmt.Errorf("mid-stream: %w", err)
		}
	}

	res.text = strings.TrimSpace(text.String())
	if res.text == "" {
		return result{}, inference.ErrEmptyResponse
	}
	return res, nil
}

// recordUsage charges reported usage to the ledger and the tracker, once
// per attempt.
func (e *Engine) recordUsage(r *request, at *attempt, u models.Usage) {
	at.mu.Lock()
	if at.reported {
		at.mu.Unlock()
		return
	}
	at.reported = true
	at.usage = u
	at.mu.Unlock()

	b := at.backend
	cost := e.opts.Profiles[b.Name()].Pricing.Cost(u)
	if b.Name() == models.BackendCloud && e.opts.Ledger != nil {
		e.opts.Ledger.Charge(cost)
	}
	if e.opts.Tracker != nil {
		rec := models.UsageRecord{
			RequestID:        r.id,
			Backend:          b.Name(),
			Model:            b.Model(),
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
			Cost:             cost,
			CreatedAt:        e.opts.Clock.Now(),
		}
		if err := e.opts.Tracker.Record(context.Background(), rec); err != nil {
			e.log.Warn("record usage failed", zap.String("request_id", r.id), zap.Error(err))
		}
	}
}

// settleUsage returns the usage of a finished attempt, recording an
// estimate when the stream never reported one, as happens after an early
// exit.
func (e *Engine) settleUsage(r *request, at *attempt, res result) models.Usage {
	at.mu.Lock()
	reported, usage := at.reported, at.usage
	at.mu.Unlock()
	if reported {
		return usage
	}
	u := models.Usage{PromptTokens: PromptTokens(r.payload), CompletionTokens: res.tokens}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	e.recordUsage(r, at, u)
	return u
}

// Accept records that the user accepted a. Accepted cloud answers are
// queued for distillation.
func (e *Engine) Accept(a *models.Answer) {
	e.feedback(a, true)
	if a.Backend != models.BackendCloud || e.opts.Queue == nil {
		return
	}
	e.opts.Queue.Enqueue(models.DistillationRecord{
		Payload:        a.Payload,
		AcceptedAnswer: a.Text,
		Model:          a.Model,
	})
}

// Reject records that the user dismissed a.
func (e *Engine) Reject(a *models.Answer) {
	e.feedback(a, false)
}

func (e *Engine) feedback(a *models.Answer, accepted bool) {
	if a == nil || a.Backend == "" || e.opts.Calibrator == nil {
		return
	}
	e.opts.Calibrator.Observe(a.Backend, accepted)
}

// Recalibrate refreshes backend confidence from accumulated feedback.
func (e *Engine) Recalibrate() {
	if e.opts.Calibrator == nil {
		return
	}
	values := e.opts.Calibrator.Recalibrate()
	fields := make([]zap.Field, 0, len(values))
	for b, v := range values {
		fields = append(fields, zap.Float64(string(b), v))
	}
	e.log.Info("recalibrated confidence", fields...)
}

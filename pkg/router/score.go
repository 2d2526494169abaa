package router

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultCloudBias is how much better cloud must score before it is chosen.
const DefaultCloudBias = 1.2

// minDenominator keeps the value finite for a free, instant backend.
const minDenominator = 1e-6

// Profile describes the performance and price of one backend.
type Profile struct {
	TokensPerSecond float64
	// Overhead is the fixed latency in seconds before the first token.
	Overhead float64
	// Confidence is the prior used when no estimator has an answer.
	Confidence float64
	Pricing    models.ModelPricing
}

// Latency predicts the wall time in seconds to generate tokens.
func (p Profile) Latency(tokens int) float64 {
	if p.TokensPerSecond <= 0 {
		return p.Overhead
	}
	return p.Overhead + float64(tokens)/p.TokensPerSecond
}

// Value is the routing score of a backend: confidence per unit of latency
// plus cost.
func Value(confidence, latency, cost float64) float64 {
	d := latency + cost
	if d < minDenominator {
		d = minDenominator
	}
	return confidence / d
}

// PreferCloud applies the decision rule: cloud wins only if its value
// exceeds bias times the local value.
func PreferCloud(valueLocal, valueCloud, bias float64) bool {
	return valueCloud > bias*valueLocal
}

type estimate struct {
	confidence float64
	latency    float64
	cost       float64
	value      float64
}

// Score produces the routing decision for p.
func (e *Engine) Score(p *models.Payload) models.RoutingDecision {
	completion := e.opts.CompletionTokens
	if e.opts.Tokens != nil {
		n, err := e.opts.Tokens.CompletionTokens(p)
		switch {
		case err == nil && n > 0:
			completion = n
		case err != nil && !errors.Is(err, models.ErrNoEstimate):
			e.log.Debug("token estimator failed, using default", zap.Error(err))
		}
	}
	usage := models.Usage{PromptTokens: PromptTokens(p), CompletionTokens: completion}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	local := e.estimate(models.BackendLocal, p, usage)
	cloud := e.estimate(models.BackendCloud, p, usage)

	d := models.RoutingDecision{
		Backend:         models.BackendLocal,
		PredictedTokens: completion,
		ValueLocal:      local.value,
		ValueCloud:      cloud.value,
	}
	switch {
	case e.opts.Cloud == nil:
	case e.opts.Local == nil:
		d.Backend = models.BackendCloud
	case PreferCloud(local.value, cloud.value, e.opts.CloudBias):
		d.Backend = models.BackendCloud
	}
	if d.Backend == models.BackendCloud && e.ceilingReached() {
		d.Backend = models.BackendLocal
		d.CeilingForced = true
	}

	chosen := local
	if d.Backend == models.BackendCloud {
		chosen = cloud
	}
	d.PredictedLatency = chosen.latency
	d.PredictedCost = chosen.cost
	d.Confidence = chosen.confidence
	return d
}

func (e *Engine) estimate(b models.Backend, p *models.Payload, usage models.Usage) estimate {
	prof := e.opts.Profiles[b]
	conf := prof.Confidence
	if e.opts.Confidence != nil {
		c, err := e.opts.Confidence.Confidence(b, p)
		switch {
		case err == nil:
			conf = c
		case !errors.Is(err, models.ErrNoEstimate):
			e.log.Debug("confidence estimator failed, using prior", zap.String("backend", string(b)), zap.Error(err))
		}
	}
	est := estimate{
		confidence: conf,
		latency:    prof.Latency(usage.CompletionTokens),
		cost:       prof.Pricing.Cost(usage),
	}
	est.value = Value(est.confidence, est.latency, est.cost)
	return est
}

func (e *Engine) ceilingReached() bool {
	return e.opts.Ledger != nil && e.opts.Ledger.Exceeded()
}

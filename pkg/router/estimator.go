package router

import (
	"sync"
	"unicode/utf8"

	"github.com/pario-ai/glimpse/pkg/inference"
	"github.com/pario-ai/glimpse/pkg/models"
)

// ConfidenceEstimator predicts how likely a backend is to produce an
// acceptable answer for a payload. Implementations return
// models.ErrNoEstimate when they cannot say; the backend's configured prior
// is used instead.
type ConfidenceEstimator interface {
	Confidence(b models.Backend, p *models.Payload) (float64, error)
}

// TokenEstimator predicts the completion length for a payload. It returns
// models.ErrNoEstimate when it cannot say; the configured default is used
// instead. Estimates may be wrong; they only steer the choice.
type TokenEstimator interface {
	CompletionTokens(p *models.Payload) (int, error)
}

// PromptTokens approximates the prompt size at four bytes per token, the
// usual figure for English text on BPE tokenizers (within about 25%).
func PromptTokens(p *models.Payload) int {
	n := len(inference.SystemPrompt) + len(inference.BuildPrompt(p))
	return (n + 3) / 4
}

// LengthEstimator predicts completion length from the question: longer
// questions tend to get longer answers. Payloads without a question have
// no estimate.
type LengthEstimator struct {
	// PerRune is the number of completion tokens predicted per rune of the
	// question.
	PerRune float64
	Min     int
	Max     int
}

// CompletionTokens implements TokenEstimator.
func (e LengthEstimator) CompletionTokens(p *models.Payload) (int, error) {
	if p.Query == "" {
		return 0, models.ErrNoEstimate
	}
	n := int(float64(utf8.RuneCountInString(p.Query)) * e.PerRune)
	if n < e.Min {
		n = e.Min
	}
	if e.Max > 0 && n > e.Max {
		n = e.Max
	}
	return n, nil
}

// Calibrator turns accept/reject feedback into per-backend confidence. The
// served estimate only changes when Recalibrate runs, so scoring is stable
// between calibration ticks.
type Calibrator struct {
	mu sync.Mutex
	// weight is the number of pseudo-observations the prior counts for.
	weight   float64
	priors   map[models.Backend]float64
	accepted map[models.Backend]int
	total    map[models.Backend]int
	served   map[models.Backend]float64
}

// NewCalibrator creates a Calibrator starting from the given priors.
func NewCalibrator(priors map[models.Backend]float64) *Calibrator {
	c := &Calibrator{
		weight:   10,
		priors:   make(map[models.Backend]float64, len(priors)),
		accepted: make(map[models.Backend]int),
		total:    make(map[models.Backend]int),
		served:   make(map[models.Backend]float64, len(priors)),
	}
	for b, p := range priors {
		c.priors[b] = p
		c.served[b] = p
	}
	return c
}

// Observe records whether an answer from b was accepted.
func (c *Calibrator) Observe(b models.Backend, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total[b]++
	if accepted {
		c.accepted[b]++
	}
}

// Recalibrate recomputes the served confidence of every backend as the
// prior-smoothed acceptance rate.
func (c *Calibrator) Recalibrate() map[models.Backend]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.Backend]float64, len(c.priors))
	for b, prior := range c.priors {
		v := (prior*c.weight + float64(c.accepted[b])) / (c.weight + float64(c.total[b]))
		c.served[b] = v
		out[b] = v
	}
	return out
}

// Confidence implements ConfidenceEstimator.
func (c *Calibrator) Confidence(b models.Backend, _ *models.Payload) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.served[b]
	if !ok {
		return 0, models.ErrNoEstimate
	}
	return v, nil
}

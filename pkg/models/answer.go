package models

import "time"

// Answer is the resolved result of one request.
type Answer struct {
	RequestID  string           `json:"request_id"`
	Text       string           `json:"text"`
	Backend    Backend          `json:"backend,omitempty"`
	Model      string           `json:"model,omitempty"`
	CacheHit   bool             `json:"cache_hit"`
	CacheTier  CacheTier        `json:"cache_tier"`
	Similarity float64          `json:"similarity,omitempty"`
	Rulebook   bool             `json:"rulebook,omitempty"`
	FellBack   bool             `json:"fell_back,omitempty"`
	EarlyExit  bool             `json:"early_exit,omitempty"`
	Decision   *RoutingDecision `json:"decision,omitempty"`
	Usage      Usage            `json:"usage"`
	Latency    time.Duration    `json:"latency"`
	Trace      []State          `json:"trace,omitempty"`

	// Payload is the snapshot the answer was produced for.
	Payload *Payload `json:"-"`
}

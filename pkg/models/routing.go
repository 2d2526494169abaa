package models

// Backend names an inference backend.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCloud Backend = "cloud"
)

// RoutingDecision is the ephemeral outcome of scoring one request.
type RoutingDecision struct {
	Backend          Backend `json:"backend"`
	PredictedTokens  int     `json:"predicted_tokens"`
	PredictedLatency float64 `json:"predicted_latency_s"`
	PredictedCost    float64 `json:"predicted_cost"`
	Confidence       float64 `json:"confidence"`
	ValueLocal       float64 `json:"value_local"`
	ValueCloud       float64 `json:"value_cloud"`
	CeilingForced    bool    `json:"ceiling_forced,omitempty"`
}

// State is a step of the per-request decision state machine.
type State string

const (
	StateIdle          State = "idle"
	StateCacheCheck    State = "cache_check"
	StateScoring       State = "scoring"
	StateDispatchLocal State = "dispatching(local)"
	StateDispatchCloud State = "dispatching(cloud)"
	StateStreaming     State = "streaming"
	StateResolved      State = "resolved"
	StateFailed        State = "failed"
)

// DispatchState returns the dispatching state for b.
func DispatchState(b Backend) State {
	if b == BackendCloud {
		return StateDispatchCloud
	}
	return StateDispatchLocal
}

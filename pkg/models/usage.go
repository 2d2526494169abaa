package models

import "time"

// Usage represents token usage from one backend call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks per-call token usage and cost.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RequestID        string    `json:"request_id"`
	Backend          Backend   `json:"backend"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across calls.
type UsageSummary struct {
	Backend         Backend `json:"backend"`
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
}

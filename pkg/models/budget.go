package models

// SpendStatus shows today's spend against the daily ceiling.
type SpendStatus struct {
	Day       string  `json:"day"`
	Spent     float64 `json:"spent"`
	Ceiling   float64 `json:"ceiling"`
	Remaining float64 `json:"remaining"`
}

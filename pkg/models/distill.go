package models

import "time"

// DistillationRecord is an accepted cloud answer queued for local-model improvement.
type DistillationRecord struct {
	ID             string    `json:"id"`
	Payload        *Payload  `json:"payload"`
	AcceptedAnswer string    `json:"accepted_answer"`
	Model          string    `json:"model,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

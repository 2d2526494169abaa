package models

import "time"

// CacheTier identifies which cache tier produced a hit.
type CacheTier int

const (
	TierNone CacheTier = iota
	TierExact
	TierSimilar
)

func (t CacheTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSimilar:
		return "similar"
	default:
		return "none"
	}
}

// CacheEntry stores a prior payload → answer pair.
type CacheEntry struct {
	Key       string    `json:"key"`
	Embedding []float32 `json:"embedding"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	HitCount  int64     `json:"hit_count"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries     int64 `json:"entries"`
	Capacity    int64 `json:"capacity"`
	ExactHits   int64 `json:"exact_hits"`
	SimilarHits int64 `json:"similar_hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expired     int64 `json:"expired"`
}

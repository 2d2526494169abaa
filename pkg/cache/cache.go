// Package cache implements the two-tier answer cache: an exact-hash tier
// and a cosine-similarity tier over the same arena of entries.
//
// Eviction is least-recently-used by entry count. An optional maximum age
// expires entries on lookup and on Sweep. Both policies are deterministic:
// recency is updated by hits and by Insert, and ties cannot occur because
// the LRU order is a strict list.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/embedding"
	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultThreshold is the minimum cosine similarity for a Tier-2 hit.
const DefaultThreshold = 0.9

// similarityEpsilon absorbs float32 rounding in stored embeddings so a
// similarity of exactly the threshold still counts as a hit.
const similarityEpsilon = 1e-6

// Store persists cache entries so the cache survives restarts.
type Store interface {
	Upsert(e models.CacheEntry) error
	Delete(key string) error
	LoadAll() ([]models.CacheEntry, error)
	Clear() error
}

// Options configures a Cache.
type Options struct {
	Capacity  int
	Threshold float64
	MaxAge    time.Duration
	Embedder  embedding.Engine
	Store     Store
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Hit describes a successful lookup.
type Hit struct {
	Entry      models.CacheEntry
	Tier       models.CacheTier
	Similarity float64
}

const nilIndex = -1

// node is one arena slot. Indices are stable for the lifetime of an entry;
// freed slots are reused.
type node struct {
	entry      models.CacheEntry
	prev, next int
}

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	opts  Options
	log   *zap.Logger
	arena []node
	free  []int
	exact map[string]int
	head  int // most recently used
	tail  int // least recently used
	stats models.CacheStats
}

// New creates a Cache and restores persisted entries from opts.Store.
func New(opts Options) (*Cache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Embedder == nil {
		opts.Embedder = embedding.NewHashEngine(0)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cache{
		opts:  opts,
		log:   log.Named("cache"),
		exact: make(map[string]int, opts.Capacity),
		head:  nilIndex,
		tail:  nilIndex,
	}
	c.stats.Capacity = int64(opts.Capacity)

	if opts.Store != nil {
		entries, err := opts.Store.LoadAll()
		if err != nil {
			return nil, err
		}
		// Oldest first, so the most recently used ends up at the head.
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].LastUsed.Before(entries[j].LastUsed)
		})
		c.mu.Lock()
		for _, e := range entries {
			c.put(e)
		}
		c.mu.Unlock()
		c.log.Debug("restored cache entries", zap.Int("entries", len(c.exact)))
	}
	return c, nil
}

// Lookup checks the exact tier and, on a miss, the similarity tier.
func (c *Cache) Lookup(ctx context.Context, p *models.Payload) (Hit, bool) {
	key := Key(p)

	c.mu.Lock()
	if idx, ok := c.exact[key]; ok {
		if c.expired(idx) {
			c.remove(idx)
			c.stats.Expired++
		} else {
			hit := c.touch(idx, models.TierExact, 1)
			c.stats.ExactHits++
			c.mu.Unlock()
			return hit, true
		}
	}
	c.mu.Unlock()

	vec, err := c.opts.Embedder.Embed(ctx, SemanticText(p))
	if err != nil {
		c.log.Warn("embed for lookup failed, skipping similarity tier", zap.Error(err))
		c.miss()
		return Hit{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	best, bestSim := nilIndex, -1.0
	for idx := c.head; idx != nilIndex; idx = c.arena[idx].next {
		emb := c.arena[idx].entry.Embedding
		// Expired entries are left for Sweep.
		if len(emb) != len(vec) || c.expired(idx) {
			continue
		}
		sim, _ := embedding.CosineSimilarity(vec, emb)
		if sim > bestSim {
			best, bestSim = idx, sim
		}
	}
	if best == nilIndex || bestSim < c.opts.Threshold-similarityEpsilon {
		c.stats.Misses++
		return Hit{}, false
	}
	c.stats.SimilarHits++
	return c.touch(best, models.TierSimilar, bestSim), true
}

// Insert stores answer for p, or refreshes the existing entry and its
// recency. The least recently used entry is evicted when the cache is full.
func (c *Cache) Insert(ctx context.Context, p *models.Payload, answer string) error {
	key := Key(p)
	vec, err := c.opts.Embedder.Embed(ctx, SemanticText(p))
	if err != nil {
		// The entry is still useful to the exact tier.
		c.log.Warn("embed for insert failed, entry is exact-match only", zap.Error(err))
		vec = nil
	}

	now := c.opts.Clock.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	e := models.CacheEntry{Key: key, Embedding: vec, Answer: answer, CreatedAt: now, LastUsed: now}
	if idx, ok := c.exact[key]; ok {
		e.HitCount = c.arena[idx].entry.HitCount
	}
	idx := c.put(e)
	c.persist(c.arena[idx].entry)
	return nil
}

// Sweep removes every entry older than the configured maximum age and
// returns how many were removed. It is a no-op when MaxAge is zero.
func (c *Cache) Sweep() int {
	if c.opts.MaxAge <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for idx := c.tail; idx != nilIndex; {
		prev := c.arena[idx].prev
		if c.expired(idx) {
			c.remove(idx)
			c.stats.Expired++
			n++
		}
		idx = prev
	}
	return n
}

// Clear removes all entries, including persisted ones.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arena = c.arena[:0]
	c.free = c.free[:0]
	c.exact = make(map[string]int, c.opts.Capacity)
	c.head, c.tail = nilIndex, nilIndex
	if c.opts.Store != nil {
		return c.opts.Store.Clear()
	}
	return nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exact)
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = int64(len(c.exact))
	return s
}

// Entry returns a copy of the entry stored for p, if any, without touching
// recency or hit counts.
func (c *Cache) Entry(p *models.Payload) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.exact[Key(p)]
	if !ok {
		return models.CacheEntry{}, false
	}
	return c.arena[idx].entry, true
}

func (c *Cache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// The helpers below require c.mu.

// touch records a hit on idx, moves it to the head and returns a copy.
func (c *Cache) touch(idx int, tier models.CacheTier, sim float64) Hit {
	n := &c.arena[idx]
	n.entry.HitCount++
	n.entry.LastUsed = c.opts.Clock.Now().UTC()
	c.unlink(idx)
	c.pushFront(idx)
	c.persist(n.entry)
	return Hit{Entry: n.entry, Tier: tier, Similarity: sim}
}

// put inserts or replaces e at the head and evicts down to capacity.
func (c *Cache) put(e models.CacheEntry) int {
	if idx, ok := c.exact[e.Key]; ok {
		c.arena[idx].entry = e
		c.unlink(idx)
		c.pushFront(idx)
		return idx
	}

	var idx int
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.arena = append(c.arena, node{})
		idx = len(c.arena) - 1
	}
	c.arena[idx] = node{entry: e, prev: nilIndex, next: nilIndex}
	c.exact[e.Key] = idx
	c.pushFront(idx)

	for len(c.exact) > c.opts.Capacity {
		victim := c.tail
		c.log.Debug("evicting least recently used entry", zap.String("key", c.arena[victim].entry.Key))
		c.remove(victim)
		c.stats.Evictions++
	}
	return idx
}

// remove drops idx from both tiers and from the store.
func (c *Cache) remove(idx int) {
	key := c.arena[idx].entry.Key
	c.unlink(idx)
	delete(c.exact, key)
	c.arena[idx] = node{prev: nilIndex, next: nilIndex}
	c.free = append(c.free, idx)
	if c.opts.Store != nil {
		if err := c.opts.Store.Delete(key); err != nil {
			c.log.Warn("cache store delete failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Cache) expired(idx int) bool {
	if c.opts.MaxAge <= 0 {
		return false
	}
	return c.opts.Clock.Now().Sub(c.arena[idx].entry.CreatedAt) > c.opts.MaxAge
}

func (c *Cache) persist(e models.CacheEntry) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.Upsert(e); err != nil {
		c.log.Warn("cache store upsert failed", zap.String("key", e.Key), zap.Error(err))
	}
}

func (c *Cache) unlink(idx int) {
	n := &c.arena[idx]
	if n.prev != nilIndex {
		c.arena[n.prev].next = n.next
	} else if c.head == idx {
		c.head = n.next
	}
	if n.next != nilIndex {
		c.arena[n.next].prev = n.prev
	} else if c.tail == idx {
		c.tail = n.prev
	}
	n.prev, n.next = nilIndex, nilIndex
}

func (c *Cache) pushFront(idx int) {
	n := &c.arena[idx]
	n.prev = nilIndex
	n.next = c.head
	if c.head != nilIndex {
		c.arena[c.head].prev = idx
	}
	c.head = idx
	if c.tail == nilIndex {
		c.tail = idx
	}
}

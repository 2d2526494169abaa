package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pario-ai/glimpse/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndLoad(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	e := models.CacheEntry{
		Key:       "k1",
		Embedding: []float32{0.25, -0.5, 1},
		Answer:    "hello",
		CreatedAt: now,
		LastUsed:  now.Add(time.Minute),
		HitCount:  3,
	}
	if err := s.Upsert(e); err != nil {
		t.Fatal(err)
	}

	entries, err := s.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if diff := cmp.Diff(e, entries[0]); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	_ = s.Upsert(models.CacheEntry{Key: "k1", Answer: "a", CreatedAt: now, LastUsed: now})
	_ = s.Upsert(models.CacheEntry{Key: "k1", Answer: "b", CreatedAt: now, LastUsed: now, HitCount: 1})

	entries, _ := s.LoadAll()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Answer != "b" || entries[0].HitCount != 1 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestLoadOrdersByLastUsed(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	_ = s.Upsert(models.CacheEntry{Key: "newer", Answer: "x", CreatedAt: base, LastUsed: base.Add(time.Hour)})
	_ = s.Upsert(models.CacheEntry{Key: "older", Answer: "y", CreatedAt: base, LastUsed: base})

	entries, _ := s.LoadAll()
	if len(entries) != 2 || entries[0].Key != "older" {
		t.Errorf("expected least recently used first, got %+v", entries)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	_ = s.Upsert(models.CacheEntry{Key: "h1", Answer: "data", CreatedAt: now, LastUsed: now})
	_ = s.Upsert(models.CacheEntry{Key: "h2", Answer: "data", CreatedAt: now, LastUsed: now})

	if err := s.Delete("h1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("expected 1 entry after delete, got %d", n)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("expected 0 entries after clear, got %d", n)
	}
}

func TestVectorCodec(t *testing.T) {
	if encodeVector(nil) != nil {
		t.Error("empty vector should encode to nil")
	}
	v := []float32{1.5, -2, 0}
	if diff := cmp.Diff(v, decodeVector(encodeVector(v))); diff != "" {
		t.Errorf("codec mismatch:\n%s", diff)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	s1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = s1.Close()

	s2, err := New(dbPath)
	if err != nil {
		t.Fatal("second New() failed:", err)
	}
	_ = s2.Close()
}

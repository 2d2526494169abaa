package budget

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/tracker"
)

func setup(t *testing.T) (*tracker.SQLiteTracker, string, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	tr, err := tracker.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, dbPath, context.Background()
}

func TestChargeUnderCeiling(t *testing.T) {
	l, err := NewLedger(context.Background(), Options{Ceiling: 1.0})
	if err != nil {
		t.Fatal(err)
	}
	l.Charge(0.4)
	if l.Exceeded() {
		t.Error("expected ceiling not reached")
	}
	if err := l.Check(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCeilingReachedExactly(t *testing.T) {
	l, _ := NewLedger(context.Background(), Options{Ceiling: 1.0})
	l.Charge(0.5)
	l.Charge(0.5)
	if !l.Exceeded() {
		t.Fatal("spend equal to the ceiling must count as reached")
	}
	if err := l.Check(); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestZeroCeilingIsUnlimited(t *testing.T) {
	l, _ := NewLedger(context.Background(), Options{})
	l.Charge(1000)
	if l.Exceeded() {
		t.Error("zero ceiling should disable enforcement")
	}
}

func TestRestoreFromTracker(t *testing.T) {
	tr, _, ctx := setup(t)
	now := time.Now().UTC()

	_ = tr.Record(ctx, models.UsageRecord{Backend: models.BackendCloud, Model: "m", Cost: 0.75, CreatedAt: now})
	_ = tr.Record(ctx, models.UsageRecord{Backend: models.BackendCloud, Model: "m", Cost: 9, CreatedAt: now.Add(-72 * time.Hour)})

	l, err := NewLedger(ctx, Options{Ceiling: 1.0, Tracker: tr})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l.Spent()-0.75) > 1e-9 {
		t.Errorf("expected 0.75 restored, got %v", l.Spent())
	}
	l.Charge(0.25)
	if !l.Exceeded() {
		t.Error("expected restored spend to count towards the ceiling")
	}
}

func TestDayRollover(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC))
	l, _ := NewLedger(context.Background(), Options{Ceiling: 1.0, Clock: fc})
	l.Charge(1.0)
	if !l.Exceeded() {
		t.Fatal("expected ceiling reached")
	}

	fc.Advance(2 * time.Minute)
	if l.Exceeded() {
		t.Error("expected a new day to reset spend")
	}
	s := l.Status()
	if s.Day != "2026-03-02" {
		t.Errorf("expected 2026-03-02, got %s", s.Day)
	}
	if s.Remaining != 1.0 {
		t.Errorf("expected 1.0 remaining, got %v", s.Remaining)
	}
}

func TestConcurrentCharges(t *testing.T) {
	l, _ := NewLedger(context.Background(), Options{Ceiling: 1000})
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Charge(0.5)
		}()
	}
	wg.Wait()
	if l.Spent() != 50 {
		t.Errorf("expected 50, got %v", l.Spent())
	}
}

func TestStatus(t *testing.T) {
	l, _ := NewLedger(context.Background(), Options{Ceiling: 2.0})
	l.Charge(0.5)
	s := l.Status()
	if s.Spent != 0.5 {
		t.Errorf("expected 0.5 spent, got %v", s.Spent)
	}
	if s.Remaining != 1.5 {
		t.Errorf("expected 1.5 remaining, got %v", s.Remaining)
	}
}

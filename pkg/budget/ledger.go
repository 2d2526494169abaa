// Package budget keeps the shared daily spend counter that enforces the
// cloud cost ceiling.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/tracker"
)

// ErrBudgetExceeded is returned by Check once today's spend has reached
// the ceiling.
var ErrBudgetExceeded = errors.New("budget exceeded")

const dayLayout = "2006-01-02"

// Options configures a Ledger.
type Options struct {
	// Ceiling is the maximum spend per UTC day. Zero or negative disables
	// the ceiling.
	Ceiling float64
	// Tracker is read once on start to restore today's spend.
	Tracker tracker.Tracker
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Ledger is a date-keyed spend counter, safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	ceiling float64
	clock   clock.Clock
	tracker tracker.Tracker
	log     *zap.Logger
	day     string
	spent   float64
}

// NewLedger creates a Ledger and restores today's spend from opts.Tracker.
func NewLedger(ctx context.Context, opts Options) (*Ledger, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{
		ceiling: opts.Ceiling,
		clock:   opts.Clock,
		tracker: opts.Tracker,
		log:     log.Named("budget"),
	}
	now := l.clock.Now().UTC()
	l.day = now.Format(dayLayout)
	if l.tracker != nil {
		spent, err := l.tracker.SpendSince(ctx, dayStart(now))
		if err != nil {
			return nil, fmt.Errorf("restore spend: %w", err)
		}
		l.spent = spent
		l.log.Debug("restored daily spend", zap.String("day", l.day), zap.Float64("spent", spent))
	}
	return l, nil
}

// Charge adds cost to today's spend.
func (l *Ledger) Charge(cost float64) {
	if cost <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.spent += cost
}

// Spent returns today's spend.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.spent
}

// Exceeded reports whether today's spend has reached the ceiling.
func (l *Ledger) Exceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.exceeded()
}

// Check returns ErrBudgetExceeded once today's spend has reached the ceiling.
func (l *Ledger) Check() error {
	if l.Exceeded() {
		return ErrBudgetExceeded
	}
	return nil
}

// Ceiling returns the configured daily ceiling.
func (l *Ledger) Ceiling() float64 { return l.ceiling }

// Status returns today's spend against the ceiling.
func (l *Ledger) Status() models.SpendStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	remaining := l.ceiling - l.spent
	if remaining < 0 || l.ceiling <= 0 {
		remaining = 0
	}
	return models.SpendStatus{Day: l.day, Spent: l.spent, Ceiling: l.ceiling, Remaining: remaining}
}

func (l *Ledger) exceeded() bool {
	return l.ceiling > 0 && l.spent >= l.ceiling
}

// rollover resets the counter when the UTC day changes. Requires l.mu.
func (l *Ledger) rollover() {
	day := l.clock.Now().UTC().Format(dayLayout)
	if day != l.day {
		l.log.Info("daily spend reset", zap.String("previous_day", l.day), zap.Float64("spent", l.spent))
		l.day = day
		l.spent = 0
	}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

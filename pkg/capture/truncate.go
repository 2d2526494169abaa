package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/pario-ai/glimpse/pkg/models"
)

// DefaultMaxBytes is the serialized size cap of a payload.
const DefaultMaxBytes = 32 * 1024

// ErrPayloadTooLarge is returned when a payload cannot be shrunk under the
// cap even with every truncatable field emptied.
var ErrPayloadTooLarge = errors.New("payload exceeds size cap")

// Size returns the serialized size of p in bytes.
func Size(p *models.Payload) int {
	data, err := json.Marshal(p)
	if err != nil {
		return 0
	}
	return len(data)
}

// Truncate shrinks p in place until its serialized size is at most max
// bytes. Fields are shrunk in a fixed order: oldest events are dropped
// first, then trailing processes, then the ui tree summary is clipped.
// Caption, window title and query are clipped only if that is still not
// enough.
func Truncate(p *models.Payload, max int) (models.Truncation, error) {
	var tr models.Truncation
	fits := func() bool { return Size(p) <= max }
	if fits() {
		return tr, nil
	}

	events := p.Events
	keep := largest(len(events), func(k int) bool {
		p.Events = events[len(events)-k:]
		return fits()
	})
	p.Events = events[len(events)-keep:]
	tr.EventsDropped = len(events) - keep
	if fits() {
		return tr, nil
	}

	procs := p.Processes
	keep = largest(len(procs), func(k int) bool {
		p.Processes = procs[:k]
		return fits()
	})
	p.Processes = procs[:keep]
	tr.ProcessesDropped = len(procs) - keep
	if fits() {
		return tr, nil
	}

	for _, f := range []struct {
		field   *string
		clipped *bool
	}{
		{&p.UITreeSummary, &tr.UITreeClipped},
		{&p.ScreenshotCaption, &tr.CaptionClipped},
		{&p.WindowTitle, &tr.TitleClipped},
		{&p.Query, &tr.QueryClipped},
	} {
		if *f.field == "" {
			continue
		}
		orig := *f.field
		n := largest(len(orig), func(k int) bool {
			*f.field = clip(orig, k)
			return fits()
		})
		*f.field = clip(orig, n)
		*f.clipped = true
		if fits() {
			return tr, nil
		}
	}

	return tr, fmt.Errorf("%w: %d bytes with all fields truncated, cap %d", ErrPayloadTooLarge, Size(p), max)
}

// largest returns the largest k in [0, n] for which fits(k) holds, assuming
// fits is monotone. It returns 0 when nothing fits.
func largest(n int, fits func(k int) bool) int {
	// sort.Search finds the first k that does not fit.
	first := sort.Search(n+1, func(k int) bool { return !fits(k) })
	if first == 0 {
		return 0
	}
	return first - 1
}

// clip returns the longest prefix of s of at most n bytes that ends on a
// rune boundary.
func clip(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

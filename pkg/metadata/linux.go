// Package metadata reads desktop state on Linux: the focused window, the
// windows left visible around it, and the running processes.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/capture"
)

// ErrToolMissing is returned when a required desktop tool is not installed.
var ErrToolMissing = errors.New("desktop tool not installed")

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolMissing, name)
	}
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Window is one entry of the window manager's client list.
type Window struct {
	ID        string `json:"id"`
	Desktop   int    `json:"desktop"`
	Title     string `json:"title"`
	Geometry  Rect   `json:"geometry"`
	Uncovered []Rect `json:"uncovered_regions,omitempty"`
}

// Linux reads metadata through xdotool, wmctrl and /proc.
type Linux struct {
	run      Runner
	procRoot string
	log      *zap.Logger
}

// NewLinux creates a Linux provider. A nil runner uses ExecRunner.
func NewLinux(run Runner, log *zap.Logger) *Linux {
	if run == nil {
		run = ExecRunner
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Linux{run: run, procRoot: "/proc", log: log.Named("metadata")}
}

// ActiveWindow returns the focused window's title and a summary of the
// windows still visible on screen. The summary is best effort; only the
// title is required.
func (l *Linux) ActiveWindow(ctx context.Context) (capture.Window, error) {
	id, err := l.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return capture.Window{}, fmt.Errorf("active window: %w", err)
	}
	winID := strings.TrimSpace(string(id))
	if winID == "" {
		return capture.Window{}, fmt.Errorf("active window: no focused window")
	}
	name, err := l.run(ctx, "xdotool", "getwindowname", winID)
	if err != nil {
		return capture.Window{}, fmt.Errorf("window name: %w", err)
	}
	w := capture.Window{Title: strings.TrimSpace(string(name))}

	out, err := l.run(ctx, "wmctrl", "-lG")
	if err != nil {
		l.log.Debug("window list unavailable", zap.Error(err))
		return w, nil
	}
	w.UITreeSummary = Summarize(w.Title, Visible(ParseWindowList(string(out))))
	return w, nil
}

// RunningProcesses returns the sorted, de-duplicated command names of every
// process readable under /proc.
func (l *Linux) RunningProcesses(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.procRoot, err)
	}
	seen := make(map[string]struct{})
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(l.procRoot, e.Name(), "comm"))
		if err != nil {
			// Exited since the directory was listed.
			continue
		}
		if name := strings.TrimSpace(string(comm)); name != "" {
			seen[name] = struct{}{}
		}
	}
	procs := make([]string, 0, len(seen))
	for name := range seen {
		procs = append(procs, name)
	}
	sort.Strings(procs)
	return procs, nil
}

// ParseWindowList parses `wmctrl -lG` output:
//
//	0x03a00007  0 0    27   1920 1053 host Title words
//
// Malformed lines are skipped.
func ParseWindowList(out string) []Window {
	var wins []Window
	for _, line := range strings.Split(out, "\n") {
		fields, title := splitFields(line, 7)
		if len(fields) < 7 {
			continue
		}
		nums := make([]int, 5)
		ok := true
		for i := range nums {
			n, err := strconv.Atoi(fields[i+1])
			if err != nil {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			continue
		}
		wins = append(wins, Window{
			ID:       fields[0],
			Desktop:  nums[0],
			Title:    title,
			Geometry: Rect{X: nums[1], Y: nums[2], W: nums[3], H: nums[4]},
		})
	}
	return wins
}

// splitFields returns the first n whitespace-separated fields of line and
// the remainder with surrounding space trimmed.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := strings.TrimSpace(line)
	for len(fields) < n && rest != "" {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			fields = append(fields, rest)
			return fields, ""
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	return fields, rest
}

// Visible returns the windows with some area left uncovered, treating
// earlier windows as stacked above later ones. Untitled and degenerate
// windows are ignored.
func Visible(wins []Window) []Window {
	var covered []Rect
	var out []Window
	for _, w := range wins {
		if w.Geometry.W <= 1 || w.Geometry.H <= 1 || strings.TrimSpace(w.Title) == "" {
			continue
		}
		uncovered := Subtract(w.Geometry, covered)
		if len(uncovered) == 0 {
			continue
		}
		w.Uncovered = uncovered
		out = append(out, w)
		covered = append(covered, w.Geometry)
	}
	return out
}

// Summarize renders visible windows one per line, marking the focused one.
func Summarize(active string, wins []Window) string {
	var b strings.Builder
	for _, w := range wins {
		pct := 100 * TotalArea(w.Uncovered) / w.Geometry.Area()
		mark := ""
		if w.Title == active {
			mark = " [focused]"
		}
		fmt.Fprintf(&b, "%s%s (%dx%d at %d,%d, %d%% visible)\n",
			w.Title, mark, w.Geometry.W, w.Geometry.H, w.Geometry.X, w.Geometry.Y, pct)
	}
	return strings.TrimRight(b.String(), "\n")
}

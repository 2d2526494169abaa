package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pario-ai/glimpse/pkg/capture"
)

var _ capture.MetadataProvider = (*Linux)(nil)

func TestIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	got, ok := a.Intersect(Rect{X: 5, Y: 5, W: 10, H: 10})
	if !ok {
		t.Fatal("expected overlap")
	}
	if want := (Rect{X: 5, Y: 5, W: 5, H: 5}); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if _, ok := a.Intersect(Rect{X: 10, Y: 0, W: 5, H: 5}); ok {
		t.Error("expected touching edges not to overlap")
	}
}

func TestSubtractNoOverlap(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 10, H: 10}
	got := Subtract(r, []Rect{{X: 20, Y: 20, W: 5, H: 5}})
	if diff := cmp.Diff([]Rect{r}, got); diff != "" {
		t.Errorf("unexpected remainder (-want +got):\n%s", diff)
	}
}

func TestSubtractFullyCovered(t *testing.T) {
	r := Rect{X: 2, Y: 2, W: 4, H: 4}
	if got := Subtract(r, []Rect{{X: 0, Y: 0, W: 10, H: 10}}); len(got) != 0 {
		t.Errorf("expected nothing left, got %+v", got)
	}
}

func TestSubtractCenterHole(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 10, H: 10}
	got := Subtract(r, []Rect{{X: 3, Y: 3, W: 4, H: 4}})
	want := []Rect{
		{X: 0, Y: 0, W: 10, H: 3},
		{X: 0, Y: 7, W: 10, H: 3},
		{X: 0, Y: 3, W: 3, H: 4},
		{X: 7, Y: 3, W: 3, H: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected remainder (-want +got):\n%s", diff)
	}
	if area := TotalArea(got); area != 100-16 {
		t.Errorf("expected area 84, got %d", area)
	}
}

func TestSubtractMultiple(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 10, H: 10}
	got := Subtract(r, []Rect{
		{X: 0, Y: 0, W: 5, H: 10},
		{X: 5, Y: 0, W: 5, H: 5},
	})
	if area := TotalArea(got); area != 25 {
		t.Errorf("expected area 25, got %d", area)
	}
}

const wmctrlOutput = `0x01e00003 -1 0    0    1920 27   host Top Panel
0x03a00007  0 100  100  800  600  host Editor - main.go
0x04000002  0 0    0    1920 1080 host Firefox
0x04000009  0 200  200  400  300  host Hidden dialog

garbage line
0x0500000a  0 0    0    1    1    host
`

func TestParseWindowList(t *testing.T) {
	wins := ParseWindowList(wmctrlOutput)
	if len(wins) != 5 {
		t.Fatalf("expected 5 windows, got %d: %+v", len(wins), wins)
	}
	if wins[0].Desktop != -1 || wins[0].Title != "Top Panel" {
		t.Errorf("unexpected first window %+v", wins[0])
	}
	if wins[1].Title != "Editor - main.go" {
		t.Errorf("expected title with spaces kept, got %q", wins[1].Title)
	}
	if want := (Rect{X: 100, Y: 100, W: 800, H: 600}); wins[1].Geometry != want {
		t.Errorf("expected %+v, got %+v", want, wins[1].Geometry)
	}
}

func TestVisible(t *testing.T) {
	vis := Visible(ParseWindowList(wmctrlOutput))
	var titles []string
	for _, w := range vis {
		titles = append(titles, w.Title)
	}
	want := []string{"Top Panel", "Editor - main.go", "Firefox"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("unexpected visible windows (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	wins := []Window{
		{Title: "Editor", Geometry: Rect{W: 10, H: 10}, Uncovered: []Rect{{W: 10, H: 10}}},
		{Title: "Browser", Geometry: Rect{X: 5, W: 10, H: 10}, Uncovered: []Rect{{X: 10, W: 5, H: 10}}},
	}
	got := Summarize("Editor", wins)
	want := "Editor [focused] (10x10 at 0,0, 100% visible)\nBrowser (10x10 at 5,0, 50% visible)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func fakeRunner(outputs map[string]string, fail map[string]error) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		key := strings.Join(append([]string{name}, args...), " ")
		if err, ok := fail[key]; ok {
			return nil, err
		}
		if out, ok := outputs[key]; ok {
			return []byte(out), nil
		}
		return nil, fmt.Errorf("unexpected command %q", key)
	}
}

func TestActiveWindow(t *testing.T) {
	l := NewLinux(fakeRunner(map[string]string{
		"xdotool getactivewindow":        "60817415\n",
		"xdotool getwindowname 60817415": "Editor - main.go\n",
		"wmctrl -lG":                     wmctrlOutput,
	}, nil), nil)

	w, err := l.ActiveWindow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if w.Title != "Editor - main.go" {
		t.Errorf("unexpected title %q", w.Title)
	}
	if !strings.Contains(w.UITreeSummary, "Editor - main.go [focused]") {
		t.Errorf("expected focused window in summary, got %q", w.UITreeSummary)
	}
	if strings.Contains(w.UITreeSummary, "Hidden dialog") {
		t.Errorf("expected covered window omitted, got %q", w.UITreeSummary)
	}
}

func TestActiveWindowWithoutWindowList(t *testing.T) {
	l := NewLinux(fakeRunner(map[string]string{
		"xdotool getactivewindow": "7\n",
		"xdotool getwindowname 7": "Terminal\n",
	}, map[string]error{
		"wmctrl -lG": ErrToolMissing,
	}), nil)

	w, err := l.ActiveWindow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if w.Title != "Terminal" || w.UITreeSummary != "" {
		t.Errorf("expected title only, got %+v", w)
	}
}

func TestActiveWindowFailure(t *testing.T) {
	l := NewLinux(fakeRunner(nil, map[string]error{
		"xdotool getactivewindow": ErrToolMissing,
	}), nil)
	if _, err := l.ActiveWindow(context.Background()); !errors.Is(err, ErrToolMissing) {
		t.Errorf("expected ErrToolMissing, got %v", err)
	}
}

func TestRunningProcesses(t *testing.T) {
	root := t.TempDir()
	write := func(pid, comm string) {
		t.Helper()
		dir := filepath.Join(root, pid)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("1", "systemd")
	write("200", "firefox")
	write("201", "firefox")
	write("300", "code")
	write("self", "ignored")
	if err := os.MkdirAll(filepath.Join(root, "400"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLinux(nil, nil)
	l.procRoot = root
	got, err := l.RunningProcesses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"code", "firefox", "systemd"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected processes (-want +got):\n%s", diff)
	}
}

func TestRunningProcessesMissingRoot(t *testing.T) {
	l := NewLinux(nil, nil)
	l.procRoot = filepath.Join(t.TempDir(), "missing")
	if _, err := l.RunningProcesses(context.Background()); err == nil {
		t.Error("expected error for missing proc root")
	}
}

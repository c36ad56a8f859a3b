package statusbar_test

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/progress"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/statusbar"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/testutil"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

func TestCollectorFollowsBus(t *testing.T) {
	m, _ := testutil.TempProject(t, "first")
	loop := eventloop.New()
	bus := signals.NewWiredBus(loop, m)
	c := statusbar.NewCollector()
	c.Bind(bus)

	var changes int
	c.Changed.Connect(func(statusbar.State) { changes++ })

	bus.App().StatusMessage.Emit("Loading databases")
	if err := m.SetCurrent(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	s := c.State()
	if s.Left != "Loading databases" || s.Right != "Project: second" || s.Busy() {
		t.Fatalf("state = %+v", s)
	}
	if changes != 2 {
		t.Fatalf("changes = %d", changes)
	}
	c.Unbind()
	bus.App().StatusMessage.Emit("ignored")
	if c.State().Left != "Loading databases" {
		t.Fatal("unbound collector still listening")
	}
}

func TestCollectorTracksWorker(t *testing.T) {
	worker.InstallProgress(patch.NewRegistry())
	loop := eventloop.New()
	c := statusbar.NewCollector()
	var seen []int
	c.Changed.Connect(func(s statusbar.State) { seen = append(seen, s.Progress) })

	w := worker.New("duplicate", func(ctx context.Context, _ ...any) error {
		progress.New(ctx, "Copying activities", 4).Add(1)
		return nil
	}, worker.WithLoop(loop))
	c.Track(w)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
	loop.Flush()

	want := []int{-1, 25, statusbar.NoProgress}
	if len(seen) != len(want) {
		t.Fatalf("progress = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("progress = %v, want %v", seen, want)
		}
	}
	if c.State().Left != "Copying activities" {
		t.Errorf("left = %q", c.State().Left)
	}
}

func TestModelView(t *testing.T) {
	m := statusbar.NewModel(statusbar.State{Progress: statusbar.NoProgress})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 1})
	next, _ = next.Update(statusbar.StateMsg{Left: "Ready", Right: "Project: default", Progress: 40})
	view := next.View()
	if !strings.Contains(view, "Ready") || !strings.Contains(view, "Project: default") {
		t.Fatalf("view = %q", view)
	}
	if got := next.(statusbar.Model).State().Progress; got != 40 {
		t.Fatalf("progress = %d", got)
	}

	long := strings.Repeat("activity ", 30)
	next, _ = next.Update(statusbar.StateMsg{Left: long, Progress: statusbar.NoProgress})
	if !strings.Contains(next.View(), "…") {
		t.Error("long message not truncated")
	}
}

func TestModelQuits(t *testing.T) {
	m := statusbar.NewModel(statusbar.State{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
}

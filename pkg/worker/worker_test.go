package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/logging"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/progress"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/worker"
)

func init() {
	worker.InstallProgress(patch.NewRegistry())
}

type recorder struct {
	statuses   []worker.Status
	exceptions []*worker.WorkerError
}

func start(t *testing.T, loop *eventloop.Loop, fanout *logging.Fanout, run worker.RunFunc, args ...any) (*worker.Worker, *recorder) {
	t.Helper()
	w := worker.New("test", run, worker.WithLoop(loop), worker.WithFanout(fanout),
		worker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	rec := &recorder{}
	w.Status.Connect(func(s worker.Status) { rec.statuses = append(rec.statuses, s) })
	w.Exception.Connect(func(e *worker.WorkerError) { rec.exceptions = append(rec.exceptions, e) })
	if err := w.Start(context.Background(), args...); err != nil {
		t.Fatal(err)
	}
	return w, rec
}

func TestStatusFromBarsAndLogs(t *testing.T) {
	loop := eventloop.New()
	fanout := logging.NewFanout(slog.NewTextHandler(io.Discard, nil))
	logger := slog.New(fanout)

	w, rec := start(t, loop, fanout, func(ctx context.Context, args ...any) error {
		bar := progress.New(ctx, "Writing", 4)
		bar.Add(1)
		logger.InfoContext(ctx, "halfway")
		logger.DebugContext(ctx, "not a status")
		logger.Info("no worker context")
		bar.Add(3)
		return nil
	})
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(rec.statuses) != 0 {
		t.Fatal("status delivered off the loop")
	}
	loop.Flush()

	want := []worker.Status{
		{Percent: 25, Label: "Writing"},
		{Percent: -1, Label: "halfway"},
		{Percent: -1, Label: "Working..."},
		worker.Complete,
	}
	if len(rec.statuses) != len(want) {
		t.Fatalf("statuses = %v", rec.statuses)
	}
	for i := range want {
		if rec.statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", rec.statuses, want)
		}
	}
	if fanout.Sinks() != 0 {
		t.Errorf("log sink still attached")
	}
}

func TestTicksOfOtherWorkersIgnored(t *testing.T) {
	loop := eventloop.New()
	w, rec := start(t, loop, nil, func(ctx context.Context, args ...any) error {
		other := eventloop.WithWorker(context.Background(), eventloop.NewWorkerID())
		progress.New(other, "elsewhere", 2).Add(1)
		progress.New(context.Background(), "library", 2).Add(1)
		return nil
	})
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
	loop.Flush()
	if len(rec.statuses) != 1 || rec.statuses[0] != worker.Complete {
		t.Fatalf("statuses = %v", rec.statuses)
	}
}

func TestPanicBecomesWorkerError(t *testing.T) {
	loop := eventloop.New()
	w, rec := start(t, loop, nil, func(ctx context.Context, args ...any) error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	err := w.Wait()
	var werr *worker.WorkerError
	if !errors.As(err, &werr) {
		t.Fatalf("Wait() = %v", err)
	}
	if werr.Stack == "" || !strings.Contains(werr.Error(), "test failed") {
		t.Errorf("worker error = %q, stack %d bytes", werr.Error(), len(werr.Stack))
	}
	loop.Flush()
	if len(rec.exceptions) != 1 || rec.exceptions[0] != werr {
		t.Fatalf("exceptions = %v", rec.exceptions)
	}
	if last := rec.statuses[len(rec.statuses)-1]; last != worker.Complete {
		t.Errorf("last status = %v", last)
	}
}

func TestErrorUnwrapsToDomainError(t *testing.T) {
	loop := eventloop.New()
	w, rec := start(t, loop, nil, func(ctx context.Context, args ...any) error {
		return model.NewDomainError(model.KindReadOnly, "database %q is read-only", args[0])
	}, "ecoinvent")
	err := w.Wait()
	if !errors.Is(err, model.ErrReadOnly) {
		t.Fatalf("Wait() = %v", err)
	}
	if got := w.Args(); len(got) != 1 || got[0] != "ecoinvent" {
		t.Errorf("Args() = %v", got)
	}
	loop.Flush()
	if len(rec.exceptions) != 1 || rec.exceptions[0].Stack != "" {
		t.Fatalf("exceptions = %v", rec.exceptions)
	}
}

func TestStartTwice(t *testing.T) {
	w := worker.New("once", func(context.Context, ...any) error { return nil })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, worker.ErrStarted) {
		t.Fatalf("second Start = %v", err)
	}
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestConnectionsReleasedAfterRun(t *testing.T) {
	m, err := inventory.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()
	if err := m.SetCurrent(ctx, "w"); err != nil {
		t.Fatal(err)
	}
	p := m.Current()
	if err := p.RegisterDatabase(ctx, "db", model.DatabaseMeta{}); err != nil {
		t.Fatal(err)
	}

	var scope *inventory.ConnScope
	opened := 0
	w := worker.New("writer", func(ctx context.Context, args ...any) error {
		scope = inventory.ScopeFrom(ctx)
		n := p.NewNode("db")
		n.Name = "steel"
		if err := p.SaveNode(ctx, n); err != nil {
			return err
		}
		opened = scope.Open()
		return nil
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
	if opened != 1 {
		t.Fatalf("connections during run = %d", opened)
	}
	if scope.Open() != 0 {
		t.Fatalf("connections after run = %d", scope.Open())
	}
}

func TestProgressDialog(t *testing.T) {
	loop := eventloop.New()
	d := worker.NewProgressDialog("Importing", false)
	if !d.Indeterminate() || d.Visible {
		t.Fatal("new dialog should be hidden and indeterminate")
	}
	w := worker.New("import", func(ctx context.Context, args ...any) error {
		progress.New(ctx, "Reading", 10).Add(5)
		return nil
	}, worker.WithLoop(loop))
	d.Track(w)
	if !d.Visible {
		t.Fatal("tracked dialog should be visible")
	}
	var seen []int
	d.Changed.Connect(func(s worker.ProgressDialog) { seen = append(seen, s.Value) })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Wait(); err != nil {
		t.Fatal(err)
	}
	loop.Flush()
	if len(seen) != 2 || seen[0] != 50 || seen[1] != 100 {
		t.Fatalf("dialog values = %v", seen)
	}
	if d.Visible || d.Label != "Reading" {
		t.Errorf("dialog after completion: visible=%v label=%q", d.Visible, d.Label)
	}
	if w.Status.Count() != 0 {
		t.Error("dialog still connected")
	}
}

func TestWorkerErrorString(t *testing.T) {
	err := &worker.WorkerError{Phase: "copy", Cause: io.ErrUnexpectedEOF}
	if !strings.Contains(err.Error(), "copy") || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Error() = %q", err.Error())
	}
}

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/dataset"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/pipeline"
	"github.com/kbukum/dwiflow/process"
)

func denoise() *pipeline.Unit {
	return pipeline.NewUnit("denoise", process.Func("denoise", []string{"dwi"}, func(_ context.Context, in comm.Package) (comm.Package, error) {
		return comm.Package{"denoised": fmt.Sprint(in["dwi"], ".dn")}, nil
	}))
}

func TestProgress_TracksRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	progress := NewProgress("dwi", nil)
	p := pipeline.New("dwi", pipeline.WithObserver(progress))
	layer := pipeline.NewSequenceLayer("prep")
	if err := layer.AddUnit(denoise()); err != nil {
		t.Fatal(err)
	}
	if err := p.AddLayer(layer); err != nil {
		t.Fatal(err)
	}

	src := dataset.NewSlice(
		comm.Package{"dwi": "s1"},
		comm.Package{"dwi": "s2"},
		comm.Package{"t1": "s3"},
		comm.Package{"dwi": "s4"},
	)
	progress.SetExpected(src.Len())
	if err := p.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	results, err := pipeline.NewExecutor(p, pipeline.WithSource(src)).Execute(ctx)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	snap := progress.Snapshot()
	if snap.Pipeline != "dwi" || snap.State != "done" {
		t.Errorf("unexpected pipeline state %q/%q", snap.Pipeline, snap.State)
	}
	if snap.Completed != 3 || snap.Failed != 1 {
		t.Errorf("expected 3 completed and 1 failed, got %d/%d", snap.Completed, snap.Failed)
	}
	if snap.Percent != 100 {
		t.Errorf("expected 100%%, got %v", snap.Percent)
	}
	if snap.Layers["prep"] != "done" {
		t.Errorf("expected layer prep done, got %v", snap.Layers)
	}
	if len(snap.Failures) != 1 || snap.Failures[0].Unit != "denoise" || snap.Failures[0].Code != string(errors.ErrCodeMissingKeys) {
		t.Errorf("unexpected failures %+v", snap.Failures)
	}
	if snap.StartedAt.IsZero() || snap.FinishedAt.Before(snap.StartedAt) {
		t.Errorf("unexpected run times %v - %v", snap.StartedAt, snap.FinishedAt)
	}
}

func TestProgress_Failures(t *testing.T) {
	progress := NewProgress("dwi", nil)
	id := comm.NewID()
	progress.UnitFailed("bet", id, errors.MissingKeys("bet", []string{"b0"}))
	progress.UnitFailed("eddy", id, fmt.Errorf("plain"))

	snap := progress.Snapshot()
	if snap.Failed != 1 {
		t.Errorf("expected the item counted once, got %d", snap.Failed)
	}
	if len(snap.Failures) != 2 || snap.Failures[1].Code != "" || snap.Failures[1].Error != "plain" {
		t.Errorf("unexpected failures %+v", snap.Failures)
	}

	for range maxFailures + 10 {
		progress.UnitFailed("bet", comm.NewID(), errors.MissingKeys("bet", []string{"b0"}))
	}
	snap = progress.Snapshot()
	if len(snap.Failures) != maxFailures {
		t.Errorf("expected failures capped at %d, got %d", maxFailures, len(snap.Failures))
	}
	if snap.Failed != maxFailures+11 {
		t.Errorf("expected %d failed items, got %d", maxFailures+11, snap.Failed)
	}
}

func TestProgress_Elapsed(t *testing.T) {
	progress := NewProgress("dwi", nil)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	progress.now = func() time.Time { return clock }

	progress.StateChanged("dwi", pipeline.StateInitialized, pipeline.StateRunning)
	clock = clock.Add(1500 * time.Millisecond)
	if got := progress.Snapshot().ElapsedMS; got != 1500 {
		t.Errorf("expected 1500ms while running, got %d", got)
	}

	progress.StateChanged("dwi", pipeline.StateRunning, pipeline.StateDone)
	clock = clock.Add(time.Hour)
	if got := progress.Snapshot().ElapsedMS; got != 1500 {
		t.Errorf("expected elapsed frozen at 1500ms, got %d", got)
	}
}

func TestProgress_Publishes(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run()
	}()
	defer func() {
		hub.Stop()
		<-done
	}()

	client := NewClient("c1", "unit.*")
	if !hub.Register(client) {
		t.Fatal("expected registration to succeed")
	}

	progress := NewProgress("dwi", hub)
	progress.ItemCompleted(comm.Item{ID: comm.NewID(), Package: comm.Package{"fa": "fa.nii"}})
	progress.UnitFailed("bet", comm.NewID(), errors.MissingKeys("bet", []string{"b0"}))

	select {
	case f := <-client.events:
		if f.typ != EventUnitFailed {
			t.Fatalf("expected only unit.failed events, got %s", f.typ)
		}
		var ev struct {
			Type string  `json:"type"`
			Data Failure `json:"data"`
		}
		if err := json.Unmarshal(f.data, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Type != EventUnitFailed || ev.Data.Unit != "bet" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
}

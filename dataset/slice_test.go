package dataset

import (
	"context"
	"testing"

	"github.com/kbukum/dwiflow/comm"
)

func TestSlice_YieldsInOrder(t *testing.T) {
	s := NewSlice(comm.Package{"i": 0}, comm.Package{"i": 1}, comm.Package{"i": 2})
	ctx := context.Background()

	var ids []comm.ID
	for i := 0; i < 3; i++ {
		if !s.PromiseData() {
			t.Fatalf("expected data before item %d", i)
		}
		item, ok, err := s.YieldData(ctx)
		if err != nil || !ok {
			t.Fatalf("yield %d: ok=%v err=%v", i, ok, err)
		}
		if item.Package["i"] != i {
			t.Errorf("expected item %d, got %v", i, item.Package)
		}
		ids = append(ids, item.ID)
	}

	if _, ok, err := s.YieldData(ctx); ok || err != nil {
		t.Errorf("expected exhaustion, got ok=%v err=%v", ok, err)
	}
	if s.PromiseData() {
		t.Error("exhausted slice should not promise data")
	}

	s.Reset()
	item, _, _ := s.YieldData(ctx)
	if item.ID != ids[0] {
		t.Error("reset should replay the same IDs")
	}
}

func TestSlice_IsolatesPackages(t *testing.T) {
	pkg := comm.Package{"k": "v"}
	s := NewSlice(pkg)
	pkg["k"] = "changed"

	item, _, _ := s.YieldData(context.Background())
	item.Package["k"] = "mutated"
	if got := s.Items()[0].Package["k"]; got != "v" {
		t.Errorf("expected the original value, got %v", got)
	}
}

func TestSlice_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewSlice(comm.Package{}).YieldData(ctx); err == nil {
		t.Error("expected an error on a cancelled context")
	}
}

func TestSlice_Pump(t *testing.T) {
	s := NewSlice(comm.Package{"i": 0}, comm.Package{"i": 1})
	sub := comm.NewSubscriber("in")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := comm.Pump(ctx, s, sub)
		done <- err
	}()

	n := 0
	for {
		_, ok, err := sub.YieldData(ctx)
		if err != nil {
			t.Fatalf("yield: %v", err)
		}
		if !ok {
			break
		}
		n++
	}
	if err := <-done; err != nil {
		t.Fatalf("pump: %v", err)
	}
	if n != s.Len() {
		t.Errorf("expected %d items, got %d", s.Len(), n)
	}
}

package comm

import (
	"context"
	stderrors "errors"
	"testing"
)

type failingSource struct{ err error }

func (f failingSource) YieldData(context.Context) (Item, bool, error) { return Item{}, false, f.err }
func (f failingSource) PromiseData() bool                             { return true }

func TestPump_FeedsAndCloses(t *testing.T) {
	src := NewSubscriber("src")
	for i := 0; i < 3; i++ {
		transmit(t, src, NewID(), Package{"i": i})
	}
	_ = src.begin(false)

	dst := NewSubscriber("dst")
	type result struct {
		n   int
		err error
	}
	ctx := testContext(t)
	done := make(chan result, 1)
	go func() {
		n, err := Pump(ctx, src, dst)
		done <- result{n, err}
	}()

	items := drain(t, dst)
	res := <-done
	if res.err != nil {
		t.Fatalf("pump: %v", res.err)
	}
	if res.n != 3 || len(items) != 3 {
		t.Errorf("expected 3 items pumped and drained, got %d and %d", res.n, len(items))
	}
}

func TestPump_SourceFailureKillsTarget(t *testing.T) {
	boom := stderrors.New("manifest unreadable")
	dst := NewSubscriber("dst")
	n, err := Pump(context.Background(), failingSource{err: boom}, dst)
	if !stderrors.Is(err, boom) || n != 0 {
		t.Fatalf("expected source error, got n=%d err=%v", n, err)
	}
	if !dst.Killed() {
		t.Error("expected target to be killed")
	}
}

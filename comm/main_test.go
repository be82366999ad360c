package comm

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// drain yields from sub until it is exhausted.
func drain(t *testing.T, sub *Subscriber) []Item {
	t.Helper()
	ctx := testContext(t)
	var items []Item
	for {
		item, ok, err := sub.YieldData(ctx)
		if err != nil {
			t.Fatalf("drain %s: %v", sub.Name(), err)
		}
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

func transmit(t *testing.T, sub *Subscriber, id ID, pkg Package) {
	t.Helper()
	if err := sub.Transmit(context.Background(), id, pkg); err != nil {
		t.Fatalf("transmit to %s: %v", sub.Name(), err)
	}
}

// closeAsync shuts sub gracefully without blocking the test on the drain.
func closeAsync(t *testing.T, sub *Subscriber) <-chan error {
	t.Helper()
	ctx := testContext(t)
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Shutdown(ctx, false) }()
	return errCh
}

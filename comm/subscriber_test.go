package comm

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/dwiflow/errors"
)

func TestSubscriber_MergesPendingTransmits(t *testing.T) {
	sub := NewSubscriber("s")
	id := NewID()
	transmit(t, sub, id, Package{"a": 1, "b": 1})
	transmit(t, sub, id, Package{"b": 2, "c": 3})

	if sub.Len() != 1 {
		t.Fatalf("expected one queued entry, got %d", sub.Len())
	}
	item, ok, err := sub.YieldData(testContext(t))
	if err != nil || !ok {
		t.Fatalf("YieldData: ok=%v err=%v", ok, err)
	}
	want := Package{"a": 1, "b": 2, "c": 3}
	if item.ID != id || !reflect.DeepEqual(item.Package, want) {
		t.Errorf("expected %v for %s, got %v for %s", want, id, item.Package, item.ID)
	}
	_ = sub.Shutdown(context.Background(), true)
}

func TestSubscriber_FIFOOfFirstArrival(t *testing.T) {
	sub := NewSubscriber("s")
	ids := []ID{NewID(), NewID(), NewID()}
	for _, id := range ids {
		transmit(t, sub, id, Package{"v": 1})
	}
	transmit(t, sub, ids[0], Package{"late": true})

	errCh := closeAsync(t, sub)
	items := drain(t, sub)
	if err := <-errCh; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], item.ID)
		}
	}
	if items[0].Package["late"] != true {
		t.Error("late transmit should merge into the first entry")
	}
}

func TestSubscriber_GracefulDrain(t *testing.T) {
	const queued = 4
	sub := NewSubscriber("s")
	for i := 0; i < queued; i++ {
		transmit(t, sub, NewID(), Package{"i": i})
	}

	errCh := closeAsync(t, sub)
	ctx := testContext(t)
	for i := 0; i < queued; i++ {
		if _, ok, err := sub.YieldData(ctx); err != nil || !ok {
			t.Fatalf("yield %d: ok=%v err=%v", i, ok, err)
		}
	}
	_, ok, err := sub.YieldData(ctx)
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}
	if ok {
		t.Fatal("expected exhaustion after draining the queue")
	}
	if err := <-errCh; err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if sub.PromiseData() {
		t.Error("drained subscriber must not promise data")
	}
}

func TestSubscriber_ClosingAcceptsMergesOnly(t *testing.T) {
	sub := NewSubscriber("s")
	pending := NewID()
	transmit(t, sub, pending, Package{"a": 1})

	if err := sub.begin(false); err != nil {
		t.Fatalf("begin graceful shutdown: %v", err)
	}

	err := sub.Transmit(context.Background(), NewID(), Package{})
	if !errors.HasCode(err, errors.ErrCodePeerClosing) {
		t.Fatalf("expected PEER_CLOSING for a new ID, got %v", err)
	}
	if !errors.IsRecoverable(err) {
		t.Error("a closing peer should be recoverable")
	}

	if err := sub.Transmit(context.Background(), pending, Package{"b": 2}); err != nil {
		t.Fatalf("merge into pending entry should succeed, got %v", err)
	}
	items := drain(t, sub)
	if len(items) != 1 || !items[0].Package.Has("a", "b") {
		t.Errorf("expected one merged package with a and b, got %v", items)
	}
}

func TestSubscriber_TransmitAfterClose(t *testing.T) {
	sub := NewSubscriber("s")
	if err := sub.Shutdown(context.Background(), false); err != nil {
		t.Fatalf("shutdown of empty subscriber: %v", err)
	}
	err := sub.Transmit(context.Background(), NewID(), Package{})
	if !errors.HasCode(err, errors.ErrCodeTransmitClosed) {
		t.Fatalf("expected TRANSMIT_CLOSED, got %v", err)
	}
	if errors.IsRecoverable(err) {
		t.Error("transmit after close is unrecoverable for the producer")
	}
}

func TestSubscriber_ForcedShutdownIsImmediate(t *testing.T) {
	sub := NewSubscriber("s")
	transmit(t, sub, NewID(), Package{"a": 1})
	transmit(t, sub, NewID(), Package{"a": 2})

	if err := sub.Shutdown(context.Background(), true); err != nil {
		t.Fatalf("forced shutdown: %v", err)
	}
	if sub.Len() != 0 {
		t.Errorf("queued items must be discarded, %d left", sub.Len())
	}
	_, _, err := sub.YieldData(testContext(t))
	if !errors.HasCode(err, errors.ErrCodeSubscriberKilled) {
		t.Errorf("expected SUBSCRIBER_KILLED, got %v", err)
	}
}

func TestSubscriber_ForcedShutdownWakesBlockedConsumer(t *testing.T) {
	sub := NewSubscriber("s")
	errCh := make(chan error, 1)
	go func() {
		_, _, err := sub.YieldData(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	_ = sub.Shutdown(context.Background(), true)

	select {
	case err := <-errCh:
		if !errors.HasCode(err, errors.ErrCodeSubscriberKilled) {
			t.Errorf("expected SUBSCRIBER_KILLED, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked consumer was not released")
	}
}

func TestSubscriber_ShutdownIsIdempotent(t *testing.T) {
	sub := NewSubscriber("s")
	ctx := context.Background()
	for i, force := range []bool{true, true, false} {
		if err := sub.Shutdown(ctx, force); err != nil {
			t.Errorf("call %d: expected absorbed shutdown, got %v", i, err)
		}
	}
	if err := sub.begin(true); !errors.IsAlreadyShutdown(err) {
		t.Errorf("expected ALREADY_SHUTDOWN from begin, got %v", err)
	}
}

func TestSubscriber_YieldHonoursContext(t *testing.T) {
	sub := NewSubscriber("s")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok, err := sub.YieldData(ctx)
	if ok || err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got ok=%v err=%v", ok, err)
	}
}

func TestSubscriber_Timestamp(t *testing.T) {
	sub := NewSubscriber("s")
	tok := NewToken()
	if !sub.Timestamp(tok) {
		t.Error("first call with a token must return true")
	}
	if sub.Timestamp(tok) {
		t.Error("repeat call with the same token must return false")
	}
	if !sub.Timestamp(NewToken()) {
		t.Error("a new token must return true")
	}
}

func TestSubscriber_PromiseData(t *testing.T) {
	sub := NewSubscriber("s")
	if !sub.PromiseData() || sub.DataReady() {
		t.Fatal("open empty subscriber promises data but has none ready")
	}
	transmit(t, sub, NewID(), Package{})
	if !sub.DataReady() {
		t.Error("expected data ready")
	}
	_ = sub.begin(false)
	if !sub.PromiseData() {
		t.Error("closing subscriber with queued data still promises data")
	}
	drain(t, sub)
	if sub.PromiseData() {
		t.Error("drained subscriber must not promise data")
	}
}

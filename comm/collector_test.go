package comm

import (
	"testing"
	"time"

	"github.com/kbukum/dwiflow/errors"
)

func TestCollector_CompletenessGate(t *testing.T) {
	inA, inB := NewSubscriber("a"), NewSubscriber("b")
	c := NewCollector("fanin", []string{"a", "b"})
	wire(t, c, inA, Input)
	wire(t, c, inB, Input)
	startChannel(t, c)

	x, y := NewID(), NewID()
	transmit(t, inA, x, Package{"a": 1})
	transmit(t, inB, y, Package{"b": 2})
	transmit(t, inA, y, Package{"unrelated": true})
	time.Sleep(20 * time.Millisecond)
	if c.OutputSubscriber().DataReady() {
		t.Fatal("no item holds both a and b yet")
	}

	transmit(t, inB, x, Package{"b": 3})
	ca, cb := closeAsync(t, inA), closeAsync(t, inB)
	items := drain(t, c.OutputSubscriber())
	<-ca
	<-cb
	if err := c.Wait(); err != nil {
		t.Fatalf("collector: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected only x to complete, got %d items", len(items))
	}
	if items[0].ID != x || items[0].Package["a"] != 1 || items[0].Package["b"] != 3 {
		t.Errorf("unexpected item %v", items[0])
	}
}

func TestCollector_CustomIntegrate(t *testing.T) {
	in := NewSubscriber("in")
	sum := func(acc, part Package) Package {
		total, _ := acc["total"].(int)
		n, _ := part["n"].(int)
		acc["total"] = total + n
		if total+n >= 10 {
			acc["done"] = true
		}
		return acc
	}
	c := NewCollector("sum", []string{"done"}, WithIntegrate(sum))
	wire(t, c, in, Input)
	startChannel(t, c)

	id := NewID()
	ctx := testContext(t)
	for _, n := range []int{3, 4, 5} {
		transmit(t, in, id, Package{"n": n})
		// Give the collector a chance to take each part separately.
		for in.DataReady() && ctx.Err() == nil {
			time.Sleep(time.Millisecond)
		}
	}
	closed := closeAsync(t, in)
	items := drain(t, c.OutputSubscriber())
	<-closed
	_ = c.Wait()

	if len(items) != 1 || items[0].Package["total"] != 12 {
		t.Errorf("expected one item with total 12, got %v", items)
	}
}

func TestCollector_FixedOutput(t *testing.T) {
	c := NewCollector("c", nil)
	err := c.AddSubscriber(NewSubscriber("extra"), Output)
	if !errors.HasCode(err, errors.ErrCodeStructural) {
		t.Errorf("expected STRUCTURAL, got %v", err)
	}
	c.Kill()
	_ = c.Wait()
}

package pipeline

import "github.com/kbukum/dwiflow/comm"

// Observer receives progress notifications. Calls arrive from many
// goroutines at once; implementations must be safe for concurrent use and
// must not block.
type Observer interface {
	// ItemCompleted is called for every item leaving the pipeline.
	ItemCompleted(item comm.Item)
	// UnitFailed is called when a unit skips an item on a recoverable error.
	UnitFailed(unit string, id comm.ID, err error)
	// StateChanged is called on every layer and pipeline state transition.
	StateChanged(component string, from, to State)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) ItemCompleted(comm.Item)           {}
func (NopObserver) UnitFailed(string, comm.ID, error) {}
func (NopObserver) StateChanged(string, State, State) {}

// observers fans notifications out to several observers.
type observers []Observer

func (o observers) ItemCompleted(item comm.Item) {
	for _, obs := range o {
		obs.ItemCompleted(item)
	}
}

func (o observers) UnitFailed(unit string, id comm.ID, err error) {
	for _, obs := range o {
		obs.UnitFailed(unit, id, err)
	}
}

func (o observers) StateChanged(component string, from, to State) {
	for _, obs := range o {
		obs.StateChanged(component, from, to)
	}
}

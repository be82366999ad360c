package comm

import "sync"

// CloseCondition is a one-shot "no more input will come" signal shared by a
// layer and the channels it owns.
type CloseCondition struct {
	once sync.Once
	done chan struct{}
}

// NewCloseCondition returns an unset condition.
func NewCloseCondition() *CloseCondition {
	return &CloseCondition{done: make(chan struct{})}
}

// Set marks the condition. Subsequent calls are no-ops.
func (c *CloseCondition) Set() {
	c.once.Do(func() { close(c.done) })
}

// IsSet reports whether Set has been called.
func (c *CloseCondition) IsSet() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the condition is set.
func (c *CloseCondition) Done() <-chan struct{} {
	return c.done
}

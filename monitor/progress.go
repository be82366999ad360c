package monitor

import (
	"sync"
	"time"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/pipeline"
)

// Event types published by Progress.
const (
	EventItemCompleted = "item.completed"
	EventUnitFailed    = "unit.failed"
	EventStateChanged  = "state.changed"
)

// maxFailures bounds the failures kept for the status snapshot.
const maxFailures = 100

// Failure is one item a unit had to skip.
type Failure struct {
	Unit   string    `json:"unit"`
	ItemID string    `json:"item_id"`
	Code   string    `json:"code,omitempty"`
	Error  string    `json:"error"`
	Time   time.Time `json:"time"`
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	Pipeline   string            `json:"pipeline"`
	State      string            `json:"state"`
	Expected   int               `json:"expected,omitempty"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	Percent    float64           `json:"percent,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	ElapsedMS  int64             `json:"elapsed_ms"`
	Layers     map[string]string `json:"layers,omitempty"`
	Failures   []Failure         `json:"failures,omitempty"`
}

type itemEvent struct {
	ItemID string   `json:"item_id"`
	Keys   []string `json:"keys"`
}

type stateEvent struct {
	Component string `json:"component"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Progress is a pipeline.Observer that tracks a single run.
type Progress struct {
	name string
	hub  *Hub
	now  func() time.Time

	mu        sync.Mutex
	state     pipeline.State
	expected  int
	completed int
	failedIDs map[comm.ID]struct{}
	failures  []Failure
	layers    map[string]pipeline.State
	started   time.Time
	finished  time.Time
}

var _ pipeline.Observer = (*Progress)(nil)

// NewProgress tracks the pipeline called name. hub may be nil, in which case
// nothing is published.
func NewProgress(name string, hub *Hub) *Progress {
	return &Progress{
		name:      name,
		hub:       hub,
		now:       time.Now,
		failedIDs: make(map[comm.ID]struct{}),
		layers:    make(map[string]pipeline.State),
	}
}

// SetExpected records how many items the source will deliver.
func (p *Progress) SetExpected(n int) {
	p.mu.Lock()
	p.expected = n
	p.mu.Unlock()
}

func (p *Progress) ItemCompleted(item comm.Item) {
	p.mu.Lock()
	p.completed++
	p.mu.Unlock()

	p.publish(EventItemCompleted, itemEvent{ItemID: item.ID.String(), Keys: item.Package.Keys()})
}

// UnitFailed counts each item once, however many units skipped it.
func (p *Progress) UnitFailed(unit string, id comm.ID, err error) {
	f := Failure{Unit: unit, ItemID: id.String(), Time: p.now().UTC()}
	if err != nil {
		f.Error = err.Error()
		if appErr, ok := errors.AsAppError(err); ok {
			f.Code = string(appErr.Code)
		}
	}

	p.mu.Lock()
	p.failedIDs[id] = struct{}{}
	p.failures = append(p.failures, f)
	if len(p.failures) > maxFailures {
		p.failures = p.failures[len(p.failures)-maxFailures:]
	}
	p.mu.Unlock()

	p.publish(EventUnitFailed, f)
}

func (p *Progress) StateChanged(component string, from, to pipeline.State) {
	p.mu.Lock()
	if component == p.name {
		p.state = to
		switch to {
		case pipeline.StateRunning:
			p.started = p.now()
		case pipeline.StateDone:
			p.finished = p.now()
		}
	} else {
		p.layers[component] = to
	}
	p.mu.Unlock()

	p.publish(EventStateChanged, stateEvent{Component: component, From: from.String(), To: to.String()})
}

// Snapshot returns the current view of the run.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Pipeline:   p.name,
		State:      p.state.String(),
		Expected:   p.expected,
		Completed:  p.completed,
		Failed:     len(p.failedIDs),
		StartedAt:  p.started,
		FinishedAt: p.finished,
		Layers:     make(map[string]string, len(p.layers)),
		Failures:   append([]Failure(nil), p.failures...),
	}
	// A partially failed item can also complete, so the sum may overshoot.
	if p.expected > 0 {
		s.Percent = min(100, float64(s.Completed+s.Failed)*100/float64(p.expected))
	}
	if !p.started.IsZero() {
		end := p.finished
		if end.IsZero() {
			end = p.now()
		}
		s.ElapsedMS = end.Sub(p.started).Milliseconds()
	}
	for name, st := range p.layers {
		s.Layers[name] = st.String()
	}
	return s
}

func (p *Progress) publish(typ string, data any) {
	if p.hub != nil {
		p.hub.Publish(typ, data)
	}
}

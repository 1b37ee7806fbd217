// Package trace provides a low-overhead event system for tracking
// plan execution and debugging information. The engine emits events
// when a Collector is attached and does nothing when it is nil.
package trace

import (
	"sync"
	"time"
)

// Event name constants following a hierarchical naming pattern.
const (
	// Plan lifecycle
	PlanCreated   = "plan/created"
	PlanExecuted  = "plan/executed"
	PlanCancelled = "plan/cancelled"

	// Batch node evaluation
	NodeEvaluated = "node/evaluated"
	KernelRun     = "kernel/run"

	// Partition resolution
	PartitionResolved = "partition/resolved"
	FieldMaterialized = "field/materialized"

	// Streaming lifecycle
	StreamInitialized = "stream/initialized"
	StreamStep        = "stream/step"
	StreamSnapshot    = "stream/snapshot"
	StreamReplay      = "stream/replay"

	// Errors
	ErrorParsing   = "error/parsing"
	ErrorTypecheck = "error/typecheck"
	ErrorExecution = "error/execution"
)

// Event is a single trace event during plan execution.
type Event struct {
	Name    string
	Start   time.Time
	End     time.Time
	Latency time.Duration
	Data    map[string]interface{}
}

// Handler processes trace events as they occur.
type Handler func(event Event)

// Collector accumulates events during plan execution.
type Collector struct {
	enabled bool
	handler Handler
	mu      sync.Mutex
	events  []Event
}

// NewCollector creates a collector. A nil handler still records
// events for later inspection via Events.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: true,
		handler: handler,
		events:  make([]Event, 0, 128),
	}
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler { return c.handler }

// Add records a new event. Thread-safe.
func (c *Collector) Add(event Event) {
	if c == nil || !c.enabled {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if c == nil || !c.enabled {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

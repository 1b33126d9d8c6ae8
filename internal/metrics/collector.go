package metrics

import "sync/atomic"

// Collector accumulates per-stage record statistics. The engine never
// interprets the numbers; it only threads collectors through plugin calls.
type Collector interface {
	IncrementInputCount(n int64)
	IncrementOutputCount(n int64)
	IncrementErrorCount(n int64)
}

// Noop discards all statistics. Substituted when a stage carries no collector.
type Noop struct{}

func (Noop) IncrementInputCount(int64)  {}
func (Noop) IncrementOutputCount(int64) {}
func (Noop) IncrementErrorCount(int64)  {}

// Counting is a thread-safe counting collector, safe to read from sink
// workers while the backend is still materializing.
type Counting struct {
	input  atomic.Int64
	output atomic.Int64
	errs   atomic.Int64
}

// NewCounting creates a zeroed counting collector.
func NewCounting() *Counting {
	return &Counting{}
}

func (c *Counting) IncrementInputCount(n int64)  { c.input.Add(n) }
func (c *Counting) IncrementOutputCount(n int64) { c.output.Add(n) }
func (c *Counting) IncrementErrorCount(n int64)  { c.errs.Add(n) }

// InputCount returns the records the stage consumed.
func (c *Counting) InputCount() int64 { return c.input.Load() }

// OutputCount returns the records the stage emitted.
func (c *Counting) OutputCount() int64 { return c.output.Load() }

// ErrorCount returns the error records the stage emitted.
func (c *Counting) ErrorCount() int64 { return c.errs.Load() }

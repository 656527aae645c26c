// Package collect attaches to a running program's execution-event stream
// and records which positions (and, in arc mode, which transitions) each
// source unit executed. The hot path is a raw set insertion: positions are
// never resolved against the analyzer during the run, only at report time.
package collect

import (
	"fmt"
	"sync"
	"sync/atomic"

	"covmeter/internal/analyze"
	"covmeter/internal/debug"
	"covmeter/internal/store"
)

// Mode selects what a run measures. It is fixed for the collector's lifetime.
type Mode int

const (
	// ModeLine records executed positions only.
	ModeLine Mode = iota
	// ModeArc additionally records position transitions; strictly more
	// expensive, a superset of line information.
	ModeArc
)

func (m Mode) String() string {
	if m == ModeArc {
		return "arc"
	}
	return "line"
}

// SourceProvider supplies source content for a canonical path. The core
// never discovers files itself; content is only requested to sign a unit on
// its first event.
type SourceProvider interface {
	Load(path string) ([]byte, error)
}

// Collector is one measurement lifecycle: create it, attach it to the event
// source, feed it events, and stop it to obtain a measurement store.
// Multiple independent collectors can coexist (useful under test); nothing
// here is process-global.
//
// Event handlers are safe to call concurrently from every thread of the
// monitored program and never block, raise, or panic into it.
type Collector struct {
	mode     Mode
	provider SourceProvider
	label    string

	attached atomic.Bool
	stopped  atomic.Bool
	context  atomic.Pointer[string]
	faults   atomic.Uint64

	units sync.Map // path -> *unitState

	mu sync.Mutex // serializes lifecycle transitions
}

type unitState struct {
	signature string
	records   sync.Map // context label -> *record
}

func (st *unitState) record(context string) *record {
	if r, ok := st.records.Load(context); ok {
		return r.(*record)
	}
	r, _ := st.records.LoadOrStore(context, &record{})
	return r.(*record)
}

// Option configures a Collector.
type Option func(*Collector)

// WithProvider sets the source provider used to sign units on first event.
// Without one, records carry an empty signature and drift detection is
// deferred to report time.
func WithProvider(p SourceProvider) Option {
	return func(c *Collector) { c.provider = p }
}

// WithLabel sets the label of the store produced at Stop.
func WithLabel(label string) Option {
	return func(c *Collector) { c.label = label }
}

// New creates a collector in the given mode. The collector starts detached;
// call Attach once the event source is registered.
func New(mode Mode, opts ...Option) *Collector {
	c := &Collector{mode: mode}
	empty := ""
	c.context.Store(&empty)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the measurement mode fixed at creation.
func (c *Collector) Mode() Mode { return c.mode }

// Attach starts accepting events. Attaching a stopped collector is an error.
func (c *Collector) Attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped.Load() {
		return fmt.Errorf("collector is stopped")
	}
	c.attached.Store(true)
	return nil
}

// Pause detaches the event hook without discarding accumulated state. While
// paused, handlers cost one atomic load.
func (c *Collector) Pause() {
	c.attached.Store(false)
}

// Resume re-attaches after a Pause.
func (c *Collector) Resume() error {
	return c.Attach()
}

// Attached reports whether events are currently being recorded.
func (c *Collector) Attached() bool {
	return c.attached.Load()
}

// SwitchContext routes subsequent events into a separate per-context record,
// tagging which external condition was active during measurement.
func (c *Collector) SwitchContext(label string) {
	c.context.Store(&label)
}

// Context returns the active context label.
func (c *Collector) Context() string {
	return *c.context.Load()
}

// Faults returns how many internal faults were contained during event
// handling. A fault loses at most one event's data, never the run.
func (c *Collector) Faults() uint64 {
	return c.faults.Load()
}

// HandleLine records that line executed in the given unit. This is the hot
// path: one attached check, one unit lookup, one bit set.
func (c *Collector) HandleLine(path string, line int) {
	if !c.attached.Load() {
		return
	}
	defer c.contain()
	st := c.unitState(path)
	st.record(c.Context()).lines.add(line)
}

// HandleArc records a transition from prev to line. prev is
// analyze.SentinelLine when the unit was just entered, and line is the
// sentinel when it is being left. In line mode the transition is dropped and
// only the destination line is kept.
func (c *Collector) HandleArc(path string, prev, line int) {
	if !c.attached.Load() {
		return
	}
	defer c.contain()
	st := c.unitState(path)
	rec := st.record(c.Context())
	rec.lines.add(line)
	if c.mode == ModeArc {
		rec.arcs.add(analyze.Arc{From: prev, To: line})
	}
}

// contain keeps any internal fault out of the monitored program's control
// flow; crashing the measured program is worse than losing one event.
func (c *Collector) contain() {
	if r := recover(); r != nil {
		c.faults.Add(1)
		debug.Logger().Warn().Str("panic", fmt.Sprint(r)).Msg("contained fault during event handling")
	}
}

func (c *Collector) unitState(path string) *unitState {
	if st, ok := c.units.Load(path); ok {
		return st.(*unitState)
	}
	st := &unitState{signature: c.sign(path)}
	actual, _ := c.units.LoadOrStore(path, st)
	return actual.(*unitState)
}

func (c *Collector) sign(path string) string {
	if c.provider == nil {
		return ""
	}
	content, err := c.provider.Load(path)
	if err != nil {
		debug.Logger().Debug().Str("path", path).Err(err).Msg("cannot sign unit content")
		return ""
	}
	return analyze.Sign(content)
}

// Refresh re-signs a unit whose content may have changed during the run
// (reloaded or regenerated source). On a signature change the unit's
// accumulated records are discarded and measurement restarts fresh, rather
// than silently merging data from incompatible content. Returns whether the
// unit changed.
func (c *Collector) Refresh(path string) (bool, error) {
	if c.provider == nil {
		return false, fmt.Errorf("no source provider configured")
	}
	st, ok := c.units.Load(path)
	if !ok {
		return false, nil
	}
	sig := c.sign(path)
	if sig == st.(*unitState).signature {
		return false, nil
	}
	debug.Logger().Info().Str("path", path).Msg("unit content changed; discarding stale record")
	c.units.Store(path, &unitState{signature: sig})
	return true, nil
}

// Snapshot captures everything recorded so far into a store without
// stopping collection. Used for incremental flushes during a long run.
func (c *Collector) Snapshot() *store.Store {
	s := store.New(c.label)
	c.units.Range(func(key, value any) bool {
		path := key.(string)
		st := value.(*unitState)
		st.records.Range(func(ck, cv any) bool {
			rec := cv.(*record)
			snap := &store.Record{
				Signature: st.signature,
				Lines:     rec.lines.snapshot(),
				Arcs:      rec.arcs.snapshot(),
			}
			if err := s.Add(path, ck.(string), snap); err != nil {
				debug.Logger().Warn().Str("path", path).Err(err).Msg("dropping record from snapshot")
			}
			return true
		})
		return true
	})
	return s
}

// Stop finalizes all records and detaches permanently. Events already in
// flight on other threads are either fully recorded or fully dropped; none
// can corrupt the snapshot.
func (c *Collector) Stop() *store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached.Store(false)
	c.stopped.Store(true)
	return c.Snapshot()
}

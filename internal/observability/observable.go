// Package observability implements progress reporting for long-running
// pipeline phases: an Observable tracks the current phase and progress of a
// running command, and an Observer runs that command on its own goroutine
// while periodically rendering and logging its progress.
package observability

import (
	"sync/atomic"
)

// Observable tracks the phase and progress of a single running command. It
// is safe for concurrent use: the worker goroutines doing the actual work
// call AdvanceProgress and StartNextPhase, while an attached Observer polls
// Phase/Progress/Total from a different goroutine.
type Observable struct {
	name string

	monitored        bool
	readyForNextPhase int32 // atomic bool
	phase             int32
	progress          int64
	total             int64
}

// New creates an Observable with the given name, used only to namespace its
// logged phase snapshots.
func New(name string) *Observable {
	return &Observable{name: name, total: 1}
}

// Name returns the observable's name.
func (o *Observable) Name() string { return o.name }

// Phase returns the current phase index, starting at 0.
func (o *Observable) Phase() int {
	return int(atomic.LoadInt32(&o.phase))
}

func (o *Observable) advancePhase() {
	atomic.StoreInt32(&o.readyForNextPhase, 0)
	atomic.AddInt32(&o.phase, 1)
}

// IsReadyForNextPhase reports whether StartNextPhase has been called and is
// waiting for an attached Observer to acknowledge the phase transition.
func (o *Observable) IsReadyForNextPhase() bool {
	return atomic.LoadInt32(&o.readyForNextPhase) != 0
}

// Total returns the total size of the current phase, as set by the most
// recent StartNextPhase call.
func (o *Observable) Total() int64 {
	return atomic.LoadInt64(&o.total)
}

// Progress returns the amount of progress made in the current phase.
func (o *Observable) Progress() int64 {
	return atomic.LoadInt64(&o.progress)
}

// AdvanceProgress adds delta to the current phase's progress.
func (o *Observable) AdvanceProgress(delta int64) {
	atomic.AddInt64(&o.progress, delta)
}

// enableMonitor marks the observable as having an attached Observer, so that
// StartNextPhase blocks until that Observer has acknowledged each phase
// transition rather than advancing immediately. It is called by Observer.Run
// and is not exported: an Observable should not be monitored by more than
// one Observer at a time.
func (o *Observable) enableMonitor() {
	o.monitored = true
}

// StartNextPhase resets progress to 0, sets the total for the new phase, and
// transitions to the next phase index.
//
// If the observable is monitored, this call blocks (spinning) until the
// attached Observer's periodic poll notices the pending transition and
// advances the phase itself; this guarantees that every phase transition is
// observed and logged exactly once before the caller proceeds, including the
// final transition made just before a command returns. If unmonitored, the
// phase advances immediately.
func (o *Observable) StartNextPhase(total int64) {
	atomic.StoreInt32(&o.readyForNextPhase, 1)

	if o.monitored {
		next := atomic.LoadInt32(&o.phase) + 1
		for atomic.LoadInt32(&o.phase) != next {
			// Spin until the Observer's poll loop calls advancePhase.
		}
	} else {
		o.advancePhase()
	}

	atomic.StoreInt64(&o.progress, 0)
	atomic.StoreInt64(&o.total, total)
}

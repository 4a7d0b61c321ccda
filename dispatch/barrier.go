// Package dispatch fans per-sample pipelines out over one of two backends, a
// bounded in-process worker pool or a cluster scheduler array, and gates the
// cohort stage on completion of every dispatched unit.
package dispatch

import (
	"sync"

	"github.com/grailbio/base/log"
)

// BarrierUnsatisfiableError reports a join that can never produce a usable
// cohort input set, either because no samples were dispatched or because
// every dispatched sample failed.
type BarrierUnsatisfiableError struct {
	Reason string
}

func (e *BarrierUnsatisfiableError) Error() string {
	return "barrier unsatisfiable: " + e.Reason
}

// Barrier tracks dispatched units until all of them reach a terminal state.
// It counts both successes and failures: a barrier counting only successes
// would hang forever the moment one sample failed. The Waiting→Released
// transition fires exactly once, when completed == expected, in whatever
// order the units happen to finish.
type Barrier struct {
	mu        sync.Mutex
	expected  int
	completed int
	released  chan struct{}
}

func NewBarrier(expected int) *Barrier {
	b := &Barrier{expected: expected, released: make(chan struct{})}
	if expected == 0 {
		close(b.released)
	}
	return b
}

// Arrive records one unit reaching a terminal state.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed >= b.expected {
		log.Panicf("barrier: %d arrivals for %d expected units", b.completed+1, b.expected)
	}
	b.completed++
	if b.completed == b.expected {
		close(b.released)
	}
}

// Done is closed when every expected unit has arrived.
func (b *Barrier) Done() <-chan struct{} {
	return b.released
}

// Released reports whether the barrier has fired.
func (b *Barrier) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed == b.expected
}

// Package ledger records per-sample failures. The ledger is append-only and
// first-failure-wins: a sample has at most one entry, and later reports for
// an already-failed sample are ignored.
package ledger

import (
	"sync"
)

// Entry is one failure record.
type Entry struct {
	Sample string
	Stage  string
	Reason string
}

// T is a failure ledger. Implementations must be safe for concurrent
// writers.
type T interface {
	// Record appends a failure for sample unless one is already present.
	Record(sample, stage, reason string) error
	// All returns the recorded entries, one per failed sample.
	All() ([]Entry, error)
	// Failed reports whether sample has a failure recorded.
	Failed(sample string) (bool, error)
}

// Memory is an in-process ledger for pool-mode runs and tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]bool
}

var _ T = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{seen: map[string]bool{}}
}

func (m *Memory) Record(sample, stage, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[sample] {
		return nil
	}
	m.seen[sample] = true
	m.entries = append(m.entries, Entry{Sample: sample, Stage: stage, Reason: reason})
	return nil
}

func (m *Memory) All() ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) Failed(sample string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[sample], nil
}

// Package scheduler submits work to an external cluster scheduler. The
// orchestrator never polls for completion: per-sample array elements run
// independently, and the finalization job is submitted with an
// after-any-terminal-state dependency on the whole array, so the scheduler
// itself releases the cohort stage.
package scheduler

import (
	"context"
	"fmt"
)

// Job describes one unit to submit.
type Job struct {
	Name      string
	Command   []string
	Threads   int
	MemoryGB  int
	Partition string
	Account   string
	// LogDir receives the scheduler's stdout/stderr files for the job.
	LogDir string
}

// JobID identifies a submitted job. For an array job it identifies the whole
// array.
type JobID string

// State is a scheduler-reported job state, reduced to what the orchestrator
// cares about.
type State int

const (
	StatePending State = iota
	StateRunning
	StateDone // any terminal state, success or failure
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	default:
		return "done"
	}
}

// Scheduler is the cluster scheduler client.
type Scheduler interface {
	// Submit submits a single job.
	Submit(ctx context.Context, job Job) (JobID, error)
	// SubmitArray submits job as an indexed array of n elements with
	// indices 0..n-1. Each element's command sees its own index.
	SubmitArray(ctx context.Context, job Job, n int) (JobID, error)
	// SubmitAfterAny submits a job that the scheduler starts only after
	// every element of dep has reached a terminal state, regardless of
	// success or failure.
	SubmitAfterAny(ctx context.Context, job Job, dep JobID) (JobID, error)
	// Status reports the current state of a submitted job.
	Status(ctx context.Context, id JobID) (State, error)
}

// SubmitError is a fatal dispatch failure: the backend could not start a
// unit, which indicates a systemic resourcing problem rather than a
// per-sample data problem.
type SubmitError struct {
	Job string
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.Job, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

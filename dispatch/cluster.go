package dispatch

import (
	"context"

	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/sampleset"
	"github.com/exomeflow/exomeflow/scheduler"
	"github.com/grailbio/base/log"
)

// Cluster dispatches one scheduler array element per sample plus a
// finalization job gated on any-terminal-state completion of the whole
// array. Concurrency is the scheduler's business; this process submits and
// exits without polling.
type Cluster struct {
	Sched scheduler.Scheduler
	Cfg   *config.Config

	// Binary is the exomeflow executable the scheduler invokes for each
	// unit; ConfigPath and ManifestPath are handed to every unit so that
	// no state travels through the environment.
	Binary       string
	ConfigPath   string
	ManifestPath string
	LogDir       string
}

// Dispatch submits the per-sample array and the dependent finalization job.
// Any submission failure is fatal for the run: it indicates a systemic
// resourcing problem, not a per-sample data problem.
func (c *Cluster) Dispatch(ctx context.Context, m *sampleset.Manifest) (arrayID, finalID scheduler.JobID, err error) {
	tag := m.RunID
	if len(tag) > 8 {
		tag = tag[:8]
	}
	arrayJob := scheduler.Job{
		Name: "exomeflow-" + tag + "-sample",
		Command: []string{
			c.Binary, "sample",
			"-config", c.ConfigPath,
			"-manifest", c.ManifestPath,
			"-index", scheduler.ArrayIndexVar,
		},
		Threads:   c.Cfg.Threads,
		MemoryGB:  c.Cfg.MemoryGB,
		Partition: c.Cfg.Partition,
		Account:   c.Cfg.Account,
		LogDir:    c.LogDir,
	}
	arrayID, err = c.Sched.SubmitArray(ctx, arrayJob, len(m.Samples))
	if err != nil {
		return "", "", err
	}
	log.Printf("dispatch: array job %s covers %d sample(s)", arrayID, len(m.Samples))

	finalJob := scheduler.Job{
		Name: "exomeflow-" + tag + "-finalize",
		Command: []string{
			c.Binary, "finalize",
			"-config", c.ConfigPath,
			"-manifest", c.ManifestPath,
		},
		Threads:   c.Cfg.Threads,
		MemoryGB:  c.Cfg.MemoryGB,
		Partition: c.Cfg.Partition,
		Account:   c.Cfg.Account,
		LogDir:    c.LogDir,
	}
	finalID, err = c.Sched.SubmitAfterAny(ctx, finalJob, arrayID)
	if err != nil {
		return "", "", err
	}
	log.Printf("dispatch: finalization job %s waits for any terminal state of %s", finalID, arrayID)
	return arrayID, finalID, nil
}

package dispatch

import (
	"context"

	"github.com/exomeflow/exomeflow/pipeline"
	"github.com/exomeflow/exomeflow/sampleset"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Pool runs per-sample pipelines on the local host with at most Size of
// them in flight. Units are independent: a failing sample is ledgered by
// its own pipeline and never disturbs its siblings.
type Pool struct {
	Size     int
	Pipeline *pipeline.Pipeline
}

// Dispatch runs every sample to a terminal state and returns one Result per
// sample, in input order. It returns only when the barrier has released,
// i.e. when all units are terminal.
func (p *Pool) Dispatch(ctx context.Context, samples []sampleset.Sample) ([]pipeline.Result, error) {
	n := len(samples)
	if n == 0 {
		return nil, nil
	}
	parallelism := p.Size
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > n {
		parallelism = n
	}
	log.Printf("dispatch: running %d sample(s) on a pool of %d worker(s)", n, parallelism)

	results := make([]pipeline.Result, n)
	barrier := NewBarrier(n)
	// Samples share one queue; a slot frees the moment its sample reaches
	// a terminal state, so a slow sample never strands queued siblings
	// behind an idle worker.
	err := traverse.Limit(parallelism).Each(n, func(i int) error {
		results[i] = p.Pipeline.Run(ctx, samples[i])
		barrier.Arrive()
		return nil
	})
	if err != nil {
		return nil, err
	}
	<-barrier.Done()
	return results, nil
}

// Survivors returns the cohort input set: the per-sample call-set outputs of
// every sample that reached Succeeded. Failed samples are excluded.
func Survivors(results []pipeline.Result) []string {
	var gvcfs []string
	for _, r := range results {
		if r.Status == pipeline.Succeeded {
			gvcfs = append(gvcfs, r.GVCF)
		}
	}
	return gvcfs
}

package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/executil"
	"github.com/exomeflow/exomeflow/ledger"
	"github.com/exomeflow/exomeflow/sampleset"
	"github.com/grailbio/base/log"
)

// Result is a sample's terminal outcome. On success CRAM and GVCF reference
// the final archived alignment and the per-sample call set.
type Result struct {
	Sample sampleset.Sample
	Status Status
	// Stage and Err are set when Status == Failed.
	Stage Stage
	Err   error

	CRAM string
	GVCF string
}

// Pipeline runs the per-sample stage sequence. One Pipeline may be shared by
// concurrent workers; per-sample state lives entirely in Run.
type Pipeline struct {
	Cfg    *config.Config
	Exec   executil.Executor
	Ledger ledger.T
}

func New(cfg *config.Config, exec executil.Executor, led ledger.T) *Pipeline {
	return &Pipeline{Cfg: cfg, Exec: exec, Ledger: led}
}

// step is one stage of the sequence. inputs are checked before run; cleanup
// names intermediates that become deletable once the step succeeds.
type step struct {
	stage    Stage
	inputs   []string
	run      func(ctx context.Context) error
	cleanup  []string
	nonFatal bool
}

// Run drives sample through the stage sequence, stopping at the first
// failing stage. The failure is appended to the ledger and returned; it is
// never escalated beyond this sample.
func (p *Pipeline) Run(ctx context.Context, sample sampleset.Sample) Result {
	a := newArtifacts(p.Cfg.TempDir, p.Cfg.OutputDir, sample.ID)
	if err := a.mkdirs(); err != nil {
		return p.fail(sample, StageAlign, err)
	}

	for _, st := range p.steps(sample, a) {
		log.Printf("sample %s: stage %s starting", sample.ID, st.stage)
		err := p.runStep(ctx, st)
		if err != nil {
			if st.nonFatal {
				log.Error.Printf("sample %s: stage %s failed (non-fatal): %v", sample.ID, st.stage, err)
				continue
			}
			return p.fail(sample, st.stage, err)
		}
		if !p.Cfg.KeepIntermediates {
			remove(st.cleanup...)
		}
		log.Printf("sample %s: stage %s done", sample.ID, st.stage)
	}
	return Result{Sample: sample, Status: Succeeded, CRAM: a.cram, GVCF: a.gvcf}
}

func (p *Pipeline) runStep(ctx context.Context, st step) error {
	for _, in := range st.inputs {
		if err := checkArtifact(in); err != nil {
			return fmt.Errorf("missing stage input: %v", err)
		}
	}
	return st.run(ctx)
}

func (p *Pipeline) fail(sample sampleset.Sample, stage Stage, err error) Result {
	serr := &StageError{Sample: sample.ID, Stage: stage, Err: err}
	log.Error.Printf("%v", serr)
	if lerr := p.Ledger.Record(sample.ID, stage.String(), err.Error()); lerr != nil {
		log.Error.Printf("sample %s: ledger append failed: %v", sample.ID, lerr)
	}
	return Result{Sample: sample, Status: Failed, Stage: stage, Err: serr}
}

// steps builds the fixed stage sequence for one sample.
func (p *Pipeline) steps(sample sampleset.Sample, a artifacts) []step {
	cfg := p.Cfg
	threads := strconv.Itoa(cfg.Threads)
	readGroup := fmt.Sprintf(`@RG\tID:%s\tSM:%s\tPL:ILLUMINA\tLB:%s`, sample.ID, sample.ID, sample.ID)

	return []step{
		{
			stage:  StageAlign,
			inputs: []string{sample.R1, sample.R2},
			run: func(ctx context.Context) error {
				_, err := p.Exec.ExecutePipe(ctx,
					executil.Command{
						Tool: cfg.BWA,
						Args: []string{"mem", "-t", threads, "-R", readGroup, cfg.Reference, sample.R1, sample.R2},
					},
					executil.Command{
						Tool: cfg.Samtools,
						Args: []string{"view", "-b", "-@", threads, "-o", a.rawBAM, "-"},
					})
				if err != nil {
					return err
				}
				return checkArtifact(a.rawBAM)
			},
		},
		{
			stage:  StageFixMates,
			inputs: []string{a.rawBAM},
			run: func(ctx context.Context) error {
				if err := p.samtools(ctx, "fixmate", "-m", "-@", threads, a.rawBAM, a.fixmateBAM); err != nil {
					return err
				}
				return checkArtifact(a.fixmateBAM)
			},
			cleanup: []string{a.rawBAM},
		},
		{
			stage:  StageSort,
			inputs: []string{a.fixmateBAM},
			run: func(ctx context.Context) error {
				if err := p.samtools(ctx, "sort", "-@", threads, "-o", a.sortedBAM, a.fixmateBAM); err != nil {
					return err
				}
				return checkArtifact(a.sortedBAM)
			},
			cleanup: []string{a.fixmateBAM},
		},
		{
			stage:  StageMarkDuplicates,
			inputs: []string{a.sortedBAM},
			run: func(ctx context.Context) error {
				if err := p.gatk(ctx, "MarkDuplicates", "-I", a.sortedBAM, "-O", a.markdupBAM, "-M", a.dupMetrics); err != nil {
					return err
				}
				return checkArtifact(a.markdupBAM)
			},
			cleanup: []string{a.sortedBAM},
		},
		{
			stage:  StageIndex,
			inputs: []string{a.markdupBAM},
			run: func(ctx context.Context) error {
				if err := p.samtools(ctx, "index", a.markdupBAM); err != nil {
					return err
				}
				return checkArtifact(a.markdupBAI)
			},
		},
		{
			stage:    StageQC,
			inputs:   []string{a.markdupBAM, a.markdupBAI},
			run:      func(ctx context.Context) error { return p.runQC(ctx, sample.ID, a) },
			nonFatal: true,
		},
		{
			stage:  StageConvertToArchive,
			inputs: []string{a.markdupBAM},
			run: func(ctx context.Context) error {
				if err := p.samtools(ctx, "view", "-C", "-@", threads, "-T", cfg.Reference, "-o", a.cram, a.markdupBAM); err != nil {
					return err
				}
				return checkArtifact(a.cram)
			},
		},
		{
			stage:  StageIndexArchive,
			inputs: []string{a.cram},
			run: func(ctx context.Context) error {
				if err := p.samtools(ctx, "index", a.cram); err != nil {
					return err
				}
				return checkArtifact(a.crai)
			},
			// The archive replaces the markdup BAM as the alignment of
			// record; the BAM and its index are no longer needed.
			cleanup: []string{a.markdupBAM, a.markdupBAI, a.targetDepth},
		},
		{
			stage:  StageRecalibrateBuild,
			inputs: []string{a.cram, a.crai},
			run: func(ctx context.Context) error {
				args := []string{"BaseRecalibrator", "-R", cfg.Reference, "-I", a.cram, "-L", cfg.TargetBED}
				for _, site := range cfg.KnownSites() {
					args = append(args, "--known-sites", site)
				}
				args = append(args, "-O", a.recalTable)
				if err := p.gatk(ctx, args...); err != nil {
					return err
				}
				return checkArtifact(a.recalTable)
			},
		},
		{
			stage:  StageRecalibrateApply,
			inputs: []string{a.cram, a.recalTable},
			run: func(ctx context.Context) error {
				if err := p.gatk(ctx, "ApplyBQSR", "-R", cfg.Reference, "-I", a.cram,
					"--bqsr-recal-file", a.recalTable, "-O", a.recalBAM); err != nil {
					return err
				}
				return checkArtifact(a.recalBAM)
			},
		},
		{
			stage:  StageCallVariants,
			inputs: []string{a.recalBAM},
			run: func(ctx context.Context) error {
				if err := p.gatk(ctx, "HaplotypeCaller", "-R", cfg.Reference, "-I", a.recalBAM,
					"-L", cfg.TargetBED, "-ERC", "GVCF", "-O", a.gvcf); err != nil {
					return err
				}
				return checkArtifact(a.gvcf)
			},
			cleanup: []string{a.recalBAM, a.recalTable},
		},
	}
}

func (p *Pipeline) samtools(ctx context.Context, args ...string) error {
	_, err := p.Exec.Execute(ctx, executil.Command{Tool: p.Cfg.Samtools, Args: args})
	return err
}

func (p *Pipeline) gatk(ctx context.Context, args ...string) error {
	_, err := p.Exec.Execute(ctx, executil.Command{Tool: p.Cfg.GATK, Args: args})
	return err
}

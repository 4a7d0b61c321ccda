// Package cohort turns the surviving per-sample call sets into one jointly
// genotyped, VQSR-filtered cohort VCF. Every step is fatal on failure and
// nothing is rolled back; partial cohort outputs are left in place for
// inspection.
package cohort

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/dispatch"
	"github.com/exomeflow/exomeflow/executil"
	"github.com/grailbio/base/log"
)

// Stage identifies one cohort step.
type Stage int

const (
	StageCombine Stage = iota
	StageGenotype
	StageModelSNP
	StageModelINDEL
	StageFilterSNP
	StageFilterINDEL
)

var stageNames = [...]string{
	StageCombine:     "Combine",
	StageGenotype:    "JointGenotype",
	StageModelSNP:    "RecalibrateSNP",
	StageModelINDEL:  "RecalibrateINDEL",
	StageFilterSNP:   "FilterSNP",
	StageFilterINDEL: "FilterINDEL",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError is a fatal cohort step failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("cohort stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs the cohort stages against a survivor set of per-sample
// GVCFs.
type Pipeline struct {
	Cfg  *config.Config
	Exec executil.Executor
}

func New(cfg *config.Config, exec executil.Executor) *Pipeline {
	return &Pipeline{Cfg: cfg, Exec: exec}
}

// artifacts names every cohort output under OutputDir/cohort.
type artifacts struct {
	dir           string
	combinedGVCF  string
	jointVCF      string
	snpRecal      string
	snpTranches   string
	indelRecal    string
	indelTranches string
	snpFiltered   string
	finalVCF      string
}

func newArtifacts(outputDir string) artifacts {
	dir := filepath.Join(outputDir, "cohort")
	return artifacts{
		dir:           dir,
		combinedGVCF:  filepath.Join(dir, "cohort.combined.g.vcf.gz"),
		jointVCF:      filepath.Join(dir, "cohort.joint.vcf.gz"),
		snpRecal:      filepath.Join(dir, "cohort.snp.recal"),
		snpTranches:   filepath.Join(dir, "cohort.snp.tranches"),
		indelRecal:    filepath.Join(dir, "cohort.indel.recal"),
		indelTranches: filepath.Join(dir, "cohort.indel.tranches"),
		snpFiltered:   filepath.Join(dir, "cohort.snp_filtered.vcf.gz"),
		finalVCF:      filepath.Join(dir, "cohort.filtered.vcf.gz"),
	}
}

// Run executes combine, joint genotyping, both recalibration models, and
// both filtering passes, SNP strictly before INDEL so that the INDEL pass
// operates on the SNP-filtered set. It returns the final filtered VCF path.
func (p *Pipeline) Run(ctx context.Context, gvcfs []string) (string, error) {
	if len(gvcfs) == 0 {
		return "", &dispatch.BarrierUnsatisfiableError{Reason: "no surviving samples to genotype"}
	}

	a := newArtifacts(p.Cfg.OutputDir)
	if err := os.MkdirAll(a.dir, 0777); err != nil {
		return "", &StageError{Stage: StageCombine, Err: err}
	}
	log.Printf("cohort: %d survivor(s), output %s", len(gvcfs), a.finalVCF)

	type step struct {
		stage Stage
		run   func(ctx context.Context) error
	}
	steps := []step{
		{StageCombine, func(ctx context.Context) error { return p.combine(ctx, gvcfs, a) }},
		{StageGenotype, func(ctx context.Context) error { return p.genotype(ctx, a) }},
		{StageModelSNP, func(ctx context.Context) error { return p.modelSNP(ctx, a) }},
		{StageModelINDEL, func(ctx context.Context) error { return p.modelINDEL(ctx, a) }},
		{StageFilterSNP, func(ctx context.Context) error { return p.filterSNP(ctx, a) }},
		{StageFilterINDEL, func(ctx context.Context) error { return p.filterINDEL(ctx, a) }},
	}
	for _, st := range steps {
		log.Printf("cohort: stage %s starting", st.stage)
		if err := st.run(ctx); err != nil {
			serr := &StageError{Stage: st.stage, Err: err}
			log.Error.Printf("%v", serr)
			return "", serr
		}
		log.Printf("cohort: stage %s done", st.stage)
	}
	return a.finalVCF, nil
}

func (p *Pipeline) gatk(ctx context.Context, args ...string) error {
	res, err := p.Exec.Execute(ctx, executil.Command{Tool: p.Cfg.GATK, Args: args})
	if err != nil {
		if res.Output != "" {
			return fmt.Errorf("%v: %s", err, res.Output)
		}
		return err
	}
	return nil
}

func (p *Pipeline) combine(ctx context.Context, gvcfs []string, a artifacts) error {
	args := []string{"CombineGVCFs", "-R", p.Cfg.Reference}
	for _, g := range gvcfs {
		if err := checkInput(g); err != nil {
			return err
		}
		args = append(args, "-V", g)
	}
	args = append(args, "-O", a.combinedGVCF)
	return p.gatk(ctx, args...)
}

func (p *Pipeline) genotype(ctx context.Context, a artifacts) error {
	return p.gatk(ctx, "GenotypeGVCFs",
		"-R", p.Cfg.Reference,
		"-V", a.combinedGVCF,
		"-O", a.jointVCF)
}

func (p *Pipeline) modelSNP(ctx context.Context, a artifacts) error {
	return p.gatk(ctx, "VariantRecalibrator",
		"-R", p.Cfg.Reference,
		"-V", a.jointVCF,
		"--resource:hapmap,known=false,training=true,truth=true,prior=15.0", p.Cfg.HapMap,
		"--resource:omni,known=false,training=true,truth=true,prior=12.0", p.Cfg.Omni,
		"--resource:1000G,known=false,training=true,truth=false,prior=10.0", p.Cfg.SNPs1000G,
		"--resource:dbsnp,known=true,training=false,truth=false,prior=2.0", p.Cfg.DbSNP,
		"-an", "QD", "-an", "MQ", "-an", "MQRankSum", "-an", "ReadPosRankSum", "-an", "FS", "-an", "SOR",
		"-mode", "SNP",
		"--tranches-file", a.snpTranches,
		"-O", a.snpRecal)
}

func (p *Pipeline) modelINDEL(ctx context.Context, a artifacts) error {
	return p.gatk(ctx, "VariantRecalibrator",
		"-R", p.Cfg.Reference,
		"-V", a.jointVCF,
		"--resource:mills,known=false,training=true,truth=true,prior=12.0", p.Cfg.MillsIndels,
		"--resource:dbsnp,known=true,training=false,truth=false,prior=2.0", p.Cfg.DbSNP,
		"-an", "QD", "-an", "DP", "-an", "FS", "-an", "SOR", "-an", "ReadPosRankSum", "-an", "MQRankSum",
		"--max-gaussians", "4",
		"-mode", "INDEL",
		"--tranches-file", a.indelTranches,
		"-O", a.indelRecal)
}

func (p *Pipeline) filterSNP(ctx context.Context, a artifacts) error {
	return p.gatk(ctx, "ApplyVQSR",
		"-R", p.Cfg.Reference,
		"-V", a.jointVCF,
		"--recal-file", a.snpRecal,
		"--tranches-file", a.snpTranches,
		"--truth-sensitivity-filter-level", "99.7",
		"-mode", "SNP",
		"-O", a.snpFiltered)
}

// filterINDEL runs against the SNP-filtered set, not the joint VCF, so the
// final output carries both filters.
func (p *Pipeline) filterINDEL(ctx context.Context, a artifacts) error {
	return p.gatk(ctx, "ApplyVQSR",
		"-R", p.Cfg.Reference,
		"-V", a.snpFiltered,
		"--recal-file", a.indelRecal,
		"--tranches-file", a.indelTranches,
		"--truth-sensitivity-filter-level", "99.0",
		"-mode", "INDEL",
		"-O", a.finalVCF)
}

func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: empty input", path)
	}
	return nil
}

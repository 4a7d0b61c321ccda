package cohort_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/exomeflow/exomeflow/cohort"
	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/dispatch"
	"github.com/exomeflow/exomeflow/executil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	mk := func(name string) string {
		path := filepath.Join(dir, name)
		assert.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))
		return path
	}
	return &config.Config{
		Reference: mk("ref.fa"), TargetBED: mk("target.bed"),
		DbSNP: mk("dbsnp.vcf.gz"), MillsIndels: mk("mills.vcf.gz"),
		HapMap: mk("hapmap.vcf.gz"), Omni: mk("omni.vcf.gz"), SNPs1000G: mk("1000g.vcf.gz"),
		GATK:      "gatk",
		OutputDir: filepath.Join(dir, "out"),
	}
}

func testGVCFs(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	var gvcfs []string
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "s"+string(rune('a'+i))+".g.vcf.gz")
		assert.NoError(t, os.WriteFile(path, []byte("gvcf\n"), 0644))
		gvcfs = append(gvcfs, path)
	}
	return gvcfs
}

// flagValue returns the argument following flag, or "".
func flagValue(call executil.Call, flag string) string {
	for i, a := range call.Args {
		if a == flag && i+1 < len(call.Args) {
			return call.Args[i+1]
		}
	}
	return ""
}

func TestRunOrdersSNPBeforeINDEL(t *testing.T) {
	cfg := testConfig(t)
	stub := &executil.Stub{}
	gvcfs := testGVCFs(t, 3)

	final, err := cohort.New(cfg, stub).Run(context.Background(), gvcfs)
	assert.NoError(t, err)
	expect.EQ(t, filepath.Base(final), "cohort.filtered.vcf.gz")

	calls := stub.Calls()
	assert.EQ(t, len(calls), 6)
	expect.EQ(t, calls[0].Args[0], "CombineGVCFs")
	expect.EQ(t, calls[1].Args[0], "GenotypeGVCFs")
	expect.EQ(t, calls[2].Args[0], "VariantRecalibrator")
	expect.EQ(t, flagValue(calls[2], "-mode"), "SNP")
	expect.EQ(t, calls[3].Args[0], "VariantRecalibrator")
	expect.EQ(t, flagValue(calls[3], "-mode"), "INDEL")
	expect.EQ(t, calls[4].Args[0], "ApplyVQSR")
	expect.EQ(t, flagValue(calls[4], "-mode"), "SNP")
	expect.EQ(t, flagValue(calls[4], "--truth-sensitivity-filter-level"), "99.7")
	expect.EQ(t, calls[5].Args[0], "ApplyVQSR")
	expect.EQ(t, flagValue(calls[5], "-mode"), "INDEL")
	expect.EQ(t, flagValue(calls[5], "--truth-sensitivity-filter-level"), "99.0")

	// The INDEL pass consumes the SNP-filtered set, not the joint VCF.
	expect.EQ(t, flagValue(calls[5], "-V"), flagValue(calls[4], "-O"))

	// Every survivor appears in the combine invocation.
	for _, g := range gvcfs {
		found := false
		for i, a := range calls[0].Args {
			if a == "-V" && i+1 < len(calls[0].Args) && calls[0].Args[i+1] == g {
				found = true
			}
		}
		expect.True(t, found)
	}
}

func TestRunEmptySurvivorSet(t *testing.T) {
	cfg := testConfig(t)
	stub := &executil.Stub{}

	_, err := cohort.New(cfg, stub).Run(context.Background(), nil)
	var berr *dispatch.BarrierUnsatisfiableError
	assert.True(t, errors.As(err, &berr))
	expect.EQ(t, len(stub.Calls()), 0)
}

func TestRunStageFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	stub := &executil.Stub{}
	stub.Fail("gatk", "GenotypeGVCFs", "joint genotyping exited 2")
	gvcfs := testGVCFs(t, 2)

	_, err := cohort.New(cfg, stub).Run(context.Background(), gvcfs)
	var serr *cohort.StageError
	assert.True(t, errors.As(err, &serr))
	expect.EQ(t, serr.Stage, cohort.StageGenotype)

	// Nothing after the failing step runs.
	calls := stub.Calls()
	assert.EQ(t, len(calls), 2)
	expect.EQ(t, calls[len(calls)-1].Args[0], "GenotypeGVCFs")
}

func TestRunMissingSurvivorInput(t *testing.T) {
	cfg := testConfig(t)
	stub := &executil.Stub{}

	_, err := cohort.New(cfg, stub).Run(context.Background(), []string{"/no/such/sample.g.vcf.gz"})
	var serr *cohort.StageError
	assert.True(t, errors.As(err, &serr))
	expect.EQ(t, serr.Stage, cohort.StageCombine)
}

func TestStageString(t *testing.T) {
	expect.EQ(t, cohort.StageFilterINDEL.String(), "FilterINDEL")
	expect.EQ(t, cohort.Stage(42).String(), "Stage(42)")
}

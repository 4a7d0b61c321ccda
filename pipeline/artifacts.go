package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
)

// artifacts names every file a sample's pipeline reads or writes. All
// intermediates live in a sample-exclusive work directory; only the final
// archive and call set land in the sample's output directory.
type artifacts struct {
	workDir string
	outDir  string

	rawBAM     string
	fixmateBAM string
	sortedBAM  string
	markdupBAM string
	markdupBAI string
	dupMetrics string

	flagstat    string
	coverage    string
	targetDepth string

	cram       string
	crai       string
	recalTable string
	recalBAM   string
	gvcf       string
}

func newArtifacts(tempDir, outputDir, sample string) artifacts {
	work := filepath.Join(tempDir, sample)
	out := filepath.Join(outputDir, sample)
	return artifacts{
		workDir:     work,
		outDir:      out,
		rawBAM:      filepath.Join(work, sample+".raw.bam"),
		fixmateBAM:  filepath.Join(work, sample+".fixmate.bam"),
		sortedBAM:   filepath.Join(work, sample+".sorted.bam"),
		markdupBAM:  filepath.Join(work, sample+".markdup.bam"),
		markdupBAI:  filepath.Join(work, sample+".markdup.bam.bai"),
		dupMetrics:  filepath.Join(out, sample+".dup_metrics.txt"),
		flagstat:    filepath.Join(out, sample+".flagstat.txt"),
		coverage:    filepath.Join(out, sample+".coverage.txt"),
		targetDepth: filepath.Join(work, sample+".target_depth.tsv"),
		cram:        filepath.Join(out, sample+".cram"),
		crai:        filepath.Join(out, sample+".cram.crai"),
		recalTable:  filepath.Join(work, sample+".recal.table"),
		recalBAM:    filepath.Join(work, sample+".recal.bam"),
		gvcf:        filepath.Join(out, sample+".g.vcf.gz"),
	}
}

// Outputs returns the final archive and call-set paths for an already-run
// sample. Finalize-only invocations use it to rebuild the survivor set
// without rerunning any stage.
func Outputs(outputDir, sample string) (cram, gvcf string) {
	a := newArtifacts(os.TempDir(), outputDir, sample)
	return a.cram, a.gvcf
}

func (a artifacts) mkdirs() error {
	for _, dir := range []string{a.workDir, a.outDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.E(err, dir)
		}
	}
	return nil
}

// checkArtifact verifies that a stage input or output exists and is
// non-empty. BAM files additionally must carry a parseable header, which
// rejects output truncated by a tool dying mid-write.
func checkArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.E(err, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s: empty artifact", path)
	}
	if strings.HasSuffix(path, ".bam") {
		f, err := os.Open(path)
		if err != nil {
			return errors.E(err, path)
		}
		defer f.Close()
		r, err := bam.NewReader(f, 1)
		if err != nil {
			return fmt.Errorf("%s: unreadable BAM header: %v", path, err)
		}
		defer r.Close()
		if r.Header() == nil || len(r.Header().Refs()) == 0 {
			return fmt.Errorf("%s: BAM header has no references", path)
		}
	}
	return nil
}

// remove deletes the given intermediates. Failures are not fatal: the file
// may legitimately be gone, and leftover intermediates only cost disk.
func remove(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}

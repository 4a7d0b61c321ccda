package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/exomeflow/exomeflow/executil"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// runQC collects alignment statistics, coverage over the whole genome, and
// mean depth over the target region. The three tool calls are independent
// and run concurrently. QC does not gate downstream correctness, so the
// caller treats any error here as a warning.
func (p *Pipeline) runQC(ctx context.Context, sample string, a artifacts) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.Exec.Execute(ctx, executil.Command{
			Tool:   p.Cfg.Samtools,
			Args:   []string{"flagstat", a.markdupBAM},
			Stdout: a.flagstat,
		})
		return err
	})
	g.Go(func() error {
		_, err := p.Exec.Execute(ctx, executil.Command{
			Tool:   p.Cfg.Samtools,
			Args:   []string{"coverage", a.markdupBAM},
			Stdout: a.coverage,
		})
		return err
	})
	g.Go(func() error {
		_, err := p.Exec.Execute(ctx, executil.Command{
			Tool:   p.Cfg.Samtools,
			Args:   []string{"depth", "-a", "-b", p.Cfg.TargetBED, a.markdupBAM},
			Stdout: a.targetDepth,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Summarize for the log; parse failures on stub-sized inputs are not
	// worth failing QC over on their own, but they are reported.
	if f, err := os.Open(a.coverage); err == nil {
		depth, breadth, cerr := meanCoverage(f)
		f.Close()
		if cerr != nil {
			return cerr
		}
		log.Printf("sample %s: genome mean depth %.2fx, breadth %.1f%%", sample, depth, breadth*100)
	}
	if f, err := os.Open(a.targetDepth); err == nil {
		depth, derr := meanDepth(f)
		f.Close()
		if derr != nil {
			return derr
		}
		log.Printf("sample %s: target region mean depth %.2fx", sample, depth)
	}
	return nil
}

// meanCoverage reduces `samtools coverage` output to a genome-wide mean
// depth and covered fraction, weighting each contig by its length.
func meanCoverage(r io.Reader) (depth, breadth float64, err error) {
	var totalLen, covered, depthSum float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return 0, 0, fmt.Errorf("malformed coverage line: %q", line)
		}
		start, err1 := strconv.ParseFloat(fields[1], 64)
		end, err2 := strconv.ParseFloat(fields[2], 64)
		covbases, err3 := strconv.ParseFloat(fields[4], 64)
		meandepth, err4 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return 0, 0, fmt.Errorf("malformed coverage line: %q", line)
		}
		n := end - start + 1
		totalLen += n
		covered += covbases
		depthSum += meandepth * n
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if totalLen == 0 {
		return 0, 0, fmt.Errorf("coverage report has no contigs")
	}
	return depthSum / totalLen, covered / totalLen, nil
}

// meanDepth averages the depth column of `samtools depth` output.
func meanDepth(r io.Reader) (float64, error) {
	var sum float64
	var n int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return 0, fmt.Errorf("malformed depth line: %q", line)
		}
		d, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return 0, fmt.Errorf("malformed depth line: %q", line)
		}
		sum += d
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

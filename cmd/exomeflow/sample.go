package main

import (
	"fmt"

	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/executil"
	"github.com/exomeflow/exomeflow/ledger"
	"github.com/exomeflow/exomeflow/pipeline"
	"github.com/exomeflow/exomeflow/sampleset"
	"github.com/exomeflow/exomeflow/scheduler"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdSample() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "sample",
		Short:    "Run the per-sample stages for exactly one sample",
		ArgsName: "[sample-id]",
		Long: `
Runs one sample through alignment, duplicate marking, QC, archiving,
recalibration, and variant calling. The sample is named either by id, or by
-index into the run manifest (the form scheduler array elements use). The
cohort stage never runs here.

A sample whose stages fail is recorded in the failure ledger and the process
still exits 0: on a scheduler, the unit completing is what matters, and the
finalization job reads the verdict from the ledger.`,
	}
	configFlag := cmd.Flags.String("config", "", "Workflow configuration YAML (required)")
	manifestFlag := cmd.Flags.String("manifest", "", "Run manifest (required with -index)")
	indexFlag := cmd.Flags.Int("index", -1, "Zero-based manifest index of the sample to run")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		switch {
		case *indexFlag >= 0:
			if len(argv) != 0 {
				return fmt.Errorf("-index and a positional sample id are mutually exclusive, got %v", argv)
			}
			return runSampleIndex(*configFlag, *manifestFlag, *indexFlag)
		case len(argv) == 1:
			return runSample(*configFlag, argv[0])
		default:
			// Some schedulers do not expand variables inside a wrapped
			// command line; fall back to the array environment itself.
			if idx := arrayIndex(); idx >= 0 {
				return runSampleIndex(*configFlag, *manifestFlag, idx)
			}
			return fmt.Errorf("sample takes one sample id (or -index), but got %v", argv)
		}
	})
	return cmd
}

// arrayIndex returns the scheduler-provided array index, or -1 when the
// process is not an array element.
func arrayIndex() int {
	env, err := scheduler.ReadArrayEnv()
	if err != nil {
		log.Error.Printf("sample: decoding scheduler environment: %v", err)
		return -1
	}
	return env.TaskID
}

func runSampleIndex(configPath, manifestPath string, index int) error {
	if manifestPath == "" {
		return fmt.Errorf("-index requires -manifest")
	}
	m, err := sampleset.ReadManifest(manifestPath)
	if err != nil {
		return err
	}
	id, err := m.Sample(index)
	if err != nil {
		return err
	}
	return runSample(configPath, id)
}

func runSample(configPath, id string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	set, err := sampleset.Resolve(cfg.InputDir)
	if err != nil {
		return err
	}
	sample, ok := set.Find(id)
	if !ok {
		msg := fmt.Sprintf("no sample %q among the %d resolved sample(s)", id, len(set.Samples))
		if near := sampleset.Nearest(id, set.IDs()); near != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", near)
		}
		return &sampleset.DiscoveryError{Dir: cfg.InputDir, Msg: msg}
	}

	ctx := vcontext.Background()
	led := &ledger.File{Path: ledgerPath(cfg)}
	result := pipeline.New(cfg, executil.Local{}, led).Run(ctx, sample)
	if result.Status == pipeline.Failed {
		log.Error.Printf("sample %s: failed at %s: %v", id, result.Stage, result.Err)
		return nil
	}
	log.Printf("sample %s: done, call set at %s", id, result.GVCF)
	return nil
}

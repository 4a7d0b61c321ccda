package main

import (
	"fmt"
	"os"

	"github.com/exomeflow/exomeflow/cohort"
	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/executil"
	"github.com/exomeflow/exomeflow/ledger"
	"github.com/exomeflow/exomeflow/pipeline"
	"github.com/exomeflow/exomeflow/sampleset"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdFinalize() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "finalize",
		Short: "Run the cohort stage over already-produced per-sample outputs",
		Long: `
Reads the run manifest and the failure ledger, rebuilds the survivor set
from the samples with no ledger entry, and runs joint genotyping and VQSR
filtering over it. This is the job a cluster run gates on the sample array;
it can also be invoked by hand to redo the cohort stage.`,
	}
	configFlag := cmd.Flags.String("config", "", "Workflow configuration YAML (required)")
	manifestFlag := cmd.Flags.String("manifest", "", "Run manifest (default <output_dir>/manifest.yaml)")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("finalize takes no positional arguments, but got %v", argv)
		}
		return finalize(*configFlag, *manifestFlag)
	})
	return cmd
}

func finalize(configPath, mpath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mpath == "" {
		mpath = manifestPath(cfg)
	}
	m, err := sampleset.ReadManifest(mpath)
	if err != nil {
		return err
	}
	survivors, err := survivorGVCFs(cfg, m)
	if err != nil {
		return err
	}
	log.Printf("finalize: run %s, %d of %d sample(s) survived", m.RunID, len(survivors), len(m.Samples))

	ctx := vcontext.Background()
	final, err := cohort.New(cfg, executil.Local{}).Run(ctx, survivors)
	if err != nil {
		return err
	}
	log.Printf("finalize: cohort call set at %s", final)
	return nil
}

// survivorGVCFs maps the manifest minus the ledgered failures to per-sample
// call-set paths. A sample whose call set never materialized (unit killed
// before it could ledger anything) is excluded like a ledgered failure, so
// an output-less run surfaces as an unsatisfiable barrier rather than a
// cohort stage dying on nonexistent inputs.
func survivorGVCFs(cfg *config.Config, m *sampleset.Manifest) ([]string, error) {
	led := &ledger.File{Path: ledgerPath(cfg)}
	entries, err := led.All()
	if err != nil {
		return nil, err
	}
	failed := make(map[string]bool, len(entries))
	for _, e := range entries {
		failed[e.Sample] = true
		log.Printf("finalize: excluding %s (failed at %s: %s)", e.Sample, e.Stage, e.Reason)
	}
	var gvcfs []string
	for _, id := range m.Samples {
		if failed[id] {
			continue
		}
		_, gvcf := pipeline.Outputs(cfg.OutputDir, id)
		if _, err := os.Stat(gvcf); err != nil {
			log.Error.Printf("finalize: excluding %s (no call set at %s)", id, gvcf)
			continue
		}
		gvcfs = append(gvcfs, gvcf)
	}
	return gvcfs, nil
}

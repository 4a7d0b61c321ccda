package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/exomeflow/exomeflow/cohort"
	"github.com/exomeflow/exomeflow/config"
	"github.com/exomeflow/exomeflow/dispatch"
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

// manifestPath and ledgerPath are the run's shared on-disk coordination
// points; every mode agrees on them so that cluster units and the
// finalization job find each other's state.
func manifestPath(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, "manifest.yaml")
}

func ledgerPath(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, "failures.tsv")
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "run",
		Short: "Run the whole workflow over every sample in the input directory",
	}
	configFlag := cmd.Flags.String("config", "", "Workflow configuration YAML (required)")
	modeFlag := cmd.Flags.String("mode", "local", "Dispatch backend: 'local' or 'cluster'")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("run takes no positional arguments, but got %v", argv)
		}
		return run(*configFlag, *modeFlag)
	})
	return cmd
}

func run(configPath, mode string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	set, err := sampleset.Resolve(cfg.InputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0777); err != nil {
		return err
	}
	m := sampleset.NewManifest(mode, set.IDs())
	if err := sampleset.WriteManifest(manifestPath(cfg), m); err != nil {
		return err
	}
	log.Printf("run %s: %d sample(s), mode %s", m.RunID, len(m.Samples), mode)

	switch mode {
	case "local":
		return runLocal(cfg, set)
	case "cluster":
		return runCluster(cfg, configPath, m)
	default:
		return &config.Error{Msg: fmt.Sprintf("unknown mode %q, want 'local' or 'cluster'", mode)}
	}
}

// runLocal drives every sample through an in-process worker pool, waits out
// the barrier, and runs the cohort stage over the survivors. Per-sample
// failures are ledgered, reported, and do not fail the run as long as at
// least one sample survives.
func runLocal(cfg *config.Config, set *sampleset.Set) error {
	ctx := vcontext.Background()
	led := &ledger.File{Path: ledgerPath(cfg)}
	exec := executil.Local{}
	pool := &dispatch.Pool{Size: cfg.BatchSize, Pipeline: pipeline.New(cfg, exec, led)}

	results, err := pool.Dispatch(ctx, set.Samples)
	if err != nil {
		return err
	}
	survivors := dispatch.Survivors(results)
	if failed := len(results) - len(survivors); failed > 0 {
		log.Error.Printf("run: %d of %d sample(s) failed; see %s", failed, len(results), ledgerPath(cfg))
	}

	final, err := cohort.New(cfg, exec).Run(ctx, survivors)
	if err != nil {
		return err
	}
	log.Printf("run: cohort call set at %s", final)
	return nil
}

// runCluster submits the sample array and the dependent finalization job,
// then exits. The scheduler re-invokes this binary for each unit.
func runCluster(cfg *config.Config, configPath string, m *sampleset.Manifest) error {
	ctx := vcontext.Background()
	binary, err := os.Executable()
	if err != nil {
		return err
	}
	logDir := filepath.Join(cfg.OutputDir, "logs")
	if err := os.MkdirAll(logDir, 0777); err != nil {
		return err
	}
	cl := &dispatch.Cluster{
		Sched:        &scheduler.Slurm{Exec: executil.Local{}},
		Cfg:          cfg,
		Binary:       binary,
		ConfigPath:   configPath,
		ManifestPath: manifestPath(cfg),
		LogDir:       logDir,
	}
	arrayID, finalID, err := cl.Dispatch(ctx, m)
	if err != nil {
		return err
	}
	log.Printf("run: submitted array %s and finalization %s; this process is done", arrayID, finalID)
	return nil
}

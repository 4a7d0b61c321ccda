package scheduler_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/exomeflow/exomeflow/executil"
	"github.com/exomeflow/exomeflow/scheduler"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// fakeExec replays canned results and records invocations.
type fakeExec struct {
	calls  []executil.Command
	result executil.Result
	err    error
}

func (f *fakeExec) Execute(ctx context.Context, cmd executil.Command) (executil.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.result, f.err
}

func (f *fakeExec) ExecutePipe(ctx context.Context, src, dst executil.Command) (executil.Result, error) {
	return f.Execute(ctx, dst)
}

func hasArg(cmd executil.Command, want string) bool {
	for _, a := range cmd.Args {
		if a == want {
			return true
		}
	}
	return false
}

func TestSubmitArray(t *testing.T) {
	exec := &fakeExec{result: executil.Result{Output: "12345"}}
	s := &scheduler.Slurm{Exec: exec}

	id, err := s.SubmitArray(context.Background(), scheduler.Job{
		Name:     "exomeflow-sample",
		Command:  []string{"exomeflow", "sample", "-index", scheduler.ArrayIndexVar},
		Threads:  4,
		MemoryGB: 16,
	}, 5)
	assert.NoError(t, err)
	expect.EQ(t, id, scheduler.JobID("12345"))

	assert.EQ(t, len(exec.calls), 1)
	cmd := exec.calls[0]
	expect.EQ(t, cmd.Tool, "sbatch")
	expect.True(t, hasArg(cmd, "--parsable"))
	expect.True(t, hasArg(cmd, "--array=0-4"))
	expect.True(t, hasArg(cmd, "--cpus-per-task=4"))
	expect.True(t, hasArg(cmd, "--mem=16G"))
	expect.True(t, hasArg(cmd, "--wrap=exomeflow sample -index ${SLURM_ARRAY_TASK_ID}"))
}

func TestSubmitQuotesWrapArguments(t *testing.T) {
	exec := &fakeExec{result: executil.Result{Output: "9"}}
	s := &scheduler.Slurm{Exec: exec}

	_, err := s.Submit(context.Background(), scheduler.Job{
		Name: "exomeflow-sample",
		Command: []string{
			"exomeflow", "sample",
			"-config", "/data/my runs/exomeflow.yaml",
			"-manifest", "/data/$USER/manifest.yaml",
			"-index", scheduler.ArrayIndexVar,
		},
	})
	assert.NoError(t, err)
	expect.True(t, hasArg(exec.calls[0],
		`--wrap=exomeflow sample -config '/data/my runs/exomeflow.yaml' -manifest '/data/$USER/manifest.yaml' -index ${SLURM_ARRAY_TASK_ID}`))
}

func TestSubmitAfterAny(t *testing.T) {
	exec := &fakeExec{result: executil.Result{Output: "777;cluster0"}}
	s := &scheduler.Slurm{Exec: exec}

	id, err := s.SubmitAfterAny(context.Background(), scheduler.Job{
		Name:    "exomeflow-finalize",
		Command: []string{"exomeflow", "finalize"},
	}, scheduler.JobID("12345"))
	assert.NoError(t, err)
	expect.EQ(t, id, scheduler.JobID("777"))
	expect.True(t, hasArg(exec.calls[0], "--dependency=afterany:12345"))
}

func TestSubmitRejected(t *testing.T) {
	exec := &fakeExec{result: executil.Result{ExitCode: 1, Output: "sbatch: error: invalid account"},
		err: fmt.Errorf("sbatch: exit status 1")}
	s := &scheduler.Slurm{Exec: exec}

	_, err := s.Submit(context.Background(), scheduler.Job{Name: "j"})
	expect.NotNil(t, err)
	serr, ok := err.(*scheduler.SubmitError)
	assert.True(t, ok)
	expect.EQ(t, serr.Job, "j")
}

func TestSubmitGarbageJobID(t *testing.T) {
	exec := &fakeExec{result: executil.Result{Output: "Submitted batch job twelve"}}
	s := &scheduler.Slurm{Exec: exec}
	_, err := s.Submit(context.Background(), scheduler.Job{Name: "j"})
	expect.NotNil(t, err)
}

func TestSubmitArrayEmpty(t *testing.T) {
	s := &scheduler.Slurm{Exec: &fakeExec{}}
	_, err := s.SubmitArray(context.Background(), scheduler.Job{Name: "j"}, 0)
	expect.NotNil(t, err)
}

func TestStatus(t *testing.T) {
	exec := &fakeExec{result: executil.Result{Output: "RUNNING\nPENDING\n"}}
	s := &scheduler.Slurm{Exec: exec}
	state, err := s.Status(context.Background(), scheduler.JobID("12345"))
	assert.NoError(t, err)
	expect.EQ(t, state, scheduler.StateRunning)

	exec.result = executil.Result{Output: ""}
	state, err = s.Status(context.Background(), scheduler.JobID("12345"))
	assert.NoError(t, err)
	expect.EQ(t, state, scheduler.StateDone)
}

func TestReadArrayEnv(t *testing.T) {
	os.Setenv("SLURM_ARRAY_TASK_ID", "3")
	os.Setenv("SLURM_ARRAY_JOB_ID", "999")
	defer os.Unsetenv("SLURM_ARRAY_TASK_ID")
	defer os.Unsetenv("SLURM_ARRAY_JOB_ID")

	env, err := scheduler.ReadArrayEnv()
	assert.NoError(t, err)
	expect.EQ(t, env.TaskID, 3)
	expect.EQ(t, env.JobID, "999")
}

func TestReadArrayEnvAbsent(t *testing.T) {
	os.Unsetenv("SLURM_ARRAY_TASK_ID")
	env, err := scheduler.ReadArrayEnv()
	assert.NoError(t, err)
	expect.EQ(t, env.TaskID, -1)
}

package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/exomeflow/exomeflow/executil"
)

// Slurm drives a Slurm installation through its command-line interface.
// Submissions go through the shared Executor so tests can run against a
// stub instead of a real sbatch.
type Slurm struct {
	Exec executil.Executor

	// Sbatch and Squeue override the binary names, for installations that
	// wrap them. Empty means the plain names.
	Sbatch string
	Squeue string
}

var _ Scheduler = (*Slurm)(nil)

// ArrayIndexVar expands, inside a submitted array element's command line, to
// the element's index. The expansion is done by the scheduler, not by this
// process; the unit entry point receives the index as an ordinary argument.
const ArrayIndexVar = "${SLURM_ARRAY_TASK_ID}"

func (s *Slurm) Submit(ctx context.Context, job Job) (JobID, error) {
	return s.sbatch(ctx, job, nil)
}

func (s *Slurm) SubmitArray(ctx context.Context, job Job, n int) (JobID, error) {
	if n < 1 {
		return "", &SubmitError{Job: job.Name, Err: fmt.Errorf("array of %d elements", n)}
	}
	return s.sbatch(ctx, job, []string{fmt.Sprintf("--array=0-%d", n-1)})
}

func (s *Slurm) SubmitAfterAny(ctx context.Context, job Job, dep JobID) (JobID, error) {
	if dep == "" {
		return "", &SubmitError{Job: job.Name, Err: fmt.Errorf("empty dependency job id")}
	}
	return s.sbatch(ctx, job, []string{fmt.Sprintf("--dependency=afterany:%s", dep)})
}

func (s *Slurm) sbatch(ctx context.Context, job Job, extra []string) (JobID, error) {
	args := []string{
		"--parsable",
		"--job-name=" + job.Name,
		fmt.Sprintf("--cpus-per-task=%d", max(job.Threads, 1)),
		fmt.Sprintf("--mem=%dG", max(job.MemoryGB, 1)),
	}
	if job.Partition != "" {
		args = append(args, "--partition="+job.Partition)
	}
	if job.Account != "" {
		args = append(args, "--account="+job.Account)
	}
	if job.LogDir != "" {
		args = append(args,
			"--output="+job.LogDir+"/"+job.Name+"_%A_%a.out",
			"--error="+job.LogDir+"/"+job.Name+"_%A_%a.err")
	}
	args = append(args, extra...)
	args = append(args, "--wrap="+wrapCommand(job.Command))

	tool := s.Sbatch
	if tool == "" {
		tool = "sbatch"
	}
	res, err := s.Exec.Execute(ctx, executil.Command{Tool: tool, Args: args})
	if err != nil {
		return "", &SubmitError{Job: job.Name, Err: err}
	}
	id := parseJobID(res.Output)
	if id == "" {
		return "", &SubmitError{Job: job.Name, Err: fmt.Errorf("sbatch returned no job id: %q", res.Output)}
	}
	return JobID(id), nil
}

// wrapCommand renders a command line for `sbatch --wrap`, which hands the
// string to a shell. Arguments are single-quoted unless they are plainly
// safe; ArrayIndexVar stays bare so the scheduler's shell still expands it.
func wrapCommand(command []string) string {
	quoted := make([]string, len(command))
	for i, arg := range command {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(arg string) string {
	if arg == ArrayIndexVar || (arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$`&|;<>()*?[]#~!{}")) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// parseJobID extracts the job id from `sbatch --parsable` output, which is
// "jobid" or "jobid;cluster".
func parseJobID(out string) string {
	out = strings.TrimSpace(out)
	if i := strings.IndexByte(out, ';'); i >= 0 {
		out = out[:i]
	}
	for _, r := range out {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return out
}

func (s *Slurm) Status(ctx context.Context, id JobID) (State, error) {
	tool := s.Squeue
	if tool == "" {
		tool = "squeue"
	}
	res, err := s.Exec.Execute(ctx, executil.Command{
		Tool: tool,
		Args: []string{"-h", "-j", string(id), "-o", "%T"},
	})
	if err != nil {
		return StateDone, err
	}
	// squeue only lists live jobs; no output means the job reached a
	// terminal state.
	states := strings.Fields(res.Output)
	if len(states) == 0 {
		return StateDone, nil
	}
	for _, st := range states {
		if st == "RUNNING" || st == "COMPLETING" {
			return StateRunning, nil
		}
	}
	return StatePending, nil
}

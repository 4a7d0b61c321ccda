package executil_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/exomeflow/exomeflow/executil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestLocalExecute(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "out.txt")
	res, err := executil.Local{}.Execute(context.Background(), executil.Command{
		Tool:   "sh",
		Args:   []string{"-c", "echo hello"},
		Stdout: out,
	})
	assert.NoError(t, err)
	expect.EQ(t, res.ExitCode, 0)
	data, err := os.ReadFile(out)
	assert.NoError(t, err)
	expect.EQ(t, string(data), "hello\n")
}

func TestLocalExecuteFailure(t *testing.T) {
	res, err := executil.Local{}.Execute(context.Background(), executil.Command{
		Tool: "sh",
		Args: []string{"-c", "echo doomed >&2; exit 3"},
	})
	expect.NotNil(t, err)
	expect.EQ(t, res.ExitCode, 3)
	assert.HasSubstr(t, res.Output, "doomed")
}

func TestLocalExecutePipe(t *testing.T) {
	tmp := t.TempDir()
	out := filepath.Join(tmp, "piped.txt")
	res, err := executil.Local{}.ExecutePipe(context.Background(),
		executil.Command{Tool: "sh", Args: []string{"-c", "printf 'b\\na\\n'"}},
		executil.Command{Tool: "sort", Stdout: out},
	)
	assert.NoError(t, err)
	expect.EQ(t, res.ExitCode, 0)
	data, err := os.ReadFile(out)
	assert.NoError(t, err)
	expect.EQ(t, string(data), "a\nb\n")
}

func TestLocalExecutePipeSrcFailure(t *testing.T) {
	_, err := executil.Local{}.ExecutePipe(context.Background(),
		executil.Command{Tool: "sh", Args: []string{"-c", "exit 7"}},
		executil.Command{Tool: "cat"},
	)
	expect.NotNil(t, err)
}

func TestStubScriptedFailure(t *testing.T) {
	stub := &executil.Stub{}
	stub.Fail("gatk", "MarkDuplicates", "java heap blew up")

	_, err := stub.Execute(context.Background(), executil.Command{Tool: "samtools", Args: []string{"sort"}})
	assert.NoError(t, err)
	_, err = stub.Execute(context.Background(), executil.Command{Tool: "gatk", Args: []string{"MarkDuplicates"}})
	expect.NotNil(t, err)

	calls := stub.Calls()
	expect.EQ(t, len(calls), 2)
	expect.EQ(t, calls[0].Tool, "samtools")
	expect.EQ(t, calls[1].Args[0], "MarkDuplicates")
}

func TestStubTouchesFixmateOutput(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "raw.bam")
	out := filepath.Join(tmp, "fixmate.bam")
	stub := &executil.Stub{}
	_, err := stub.Execute(context.Background(), executil.Command{
		Tool: "samtools", Args: []string{"fixmate", "-m", "-@", "2", in, out},
	})
	assert.NoError(t, err)
	info, err := os.Stat(out)
	assert.NoError(t, err)
	expect.True(t, info.Size() > 0)
	// The input is named positionally too and must not be touched.
	_, err = os.Stat(in)
	expect.True(t, os.IsNotExist(err))
}

func TestStubTouchesOutputs(t *testing.T) {
	tmp := t.TempDir()
	bamOut := filepath.Join(tmp, "x.bam")
	stub := &executil.Stub{}
	_, err := stub.Execute(context.Background(), executil.Command{
		Tool: "samtools", Args: []string{"sort", "-o", bamOut},
	})
	assert.NoError(t, err)
	info, err := os.Stat(bamOut)
	assert.NoError(t, err)
	expect.True(t, info.Size() > 0)
}

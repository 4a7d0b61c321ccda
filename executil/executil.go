// Package executil abstracts invocation of external command-line tools so
// that pipeline code can be tested without the real binaries installed.
package executil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/grailbio/base/errors"
)

// Command describes one external tool invocation. Stdout and Stderr, when
// nonempty, name files the respective stream is written to; otherwise the
// stream is captured in memory and surfaced in Result.Output.
type Command struct {
	Tool   string
	Args   []string
	Dir    string
	Stdout string
	Stderr string
}

func (c Command) String() string {
	s := c.Tool
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// Result reports the outcome of a finished invocation. Output holds the tail
// of whatever was captured in memory, for error reporting only.
type Result struct {
	ExitCode int
	Output   string
}

// Executor runs external tools. Execute and ExecutePipe return a non-nil
// error when the tool could not be started or exited nonzero; Result carries
// the exit code and captured output in either case.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
	// ExecutePipe runs src and dst concurrently with src's stdout connected
	// to dst's stdin. A nonzero exit from either side fails the pipe.
	ExecutePipe(ctx context.Context, src, dst Command) (Result, error)
}

// Local runs tools as child processes on the local host.
type Local struct{}

var _ Executor = Local{}

func (Local) Execute(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Tool, cmd.Args...)
	c.Dir = cmd.Dir
	tail := newTailBuffer(tailBytes)
	stdout, err := openStream(cmd.Stdout, tail)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer stdout.close()
	stderr, err := openStream(cmd.Stderr, tail)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer stderr.close()
	c.Stdout = stdout.w
	c.Stderr = stderr.w

	runErr := c.Run()
	res := Result{ExitCode: exitCode(c, runErr), Output: tail.String()}
	if runErr != nil {
		return res, errors.E(runErr, fmt.Sprintf("%s: exit status %d: %s", cmd.Tool, res.ExitCode, res.Output))
	}
	return res, nil
}

func (l Local) ExecutePipe(ctx context.Context, src, dst Command) (Result, error) {
	srcCmd := exec.CommandContext(ctx, src.Tool, src.Args...)
	srcCmd.Dir = src.Dir
	dstCmd := exec.CommandContext(ctx, dst.Tool, dst.Args...)
	dstCmd.Dir = dst.Dir

	tail := newTailBuffer(tailBytes)
	srcErrStream, err := openStream(src.Stderr, tail)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer srcErrStream.close()
	srcCmd.Stderr = srcErrStream.w

	stdout, err := openStream(dst.Stdout, tail)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer stdout.close()
	dstErrStream, err := openStream(dst.Stderr, tail)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer dstErrStream.close()
	dstCmd.Stdout = stdout.w
	dstCmd.Stderr = dstErrStream.w

	pipe, err := srcCmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, errors.E(err, src.Tool)
	}
	dstCmd.Stdin = pipe

	if err := srcCmd.Start(); err != nil {
		return Result{ExitCode: -1}, errors.E(err, src.Tool)
	}
	if err := dstCmd.Start(); err != nil {
		_ = srcCmd.Process.Kill()
		_ = srcCmd.Wait()
		return Result{ExitCode: -1}, errors.E(err, dst.Tool)
	}
	dstErr := dstCmd.Wait()
	srcErr := srcCmd.Wait()

	res := Result{ExitCode: exitCode(dstCmd, dstErr), Output: tail.String()}
	if srcErr != nil {
		res.ExitCode = exitCode(srcCmd, srcErr)
		return res, errors.E(srcErr, fmt.Sprintf("%s: exit status %d: %s", src.Tool, res.ExitCode, res.Output))
	}
	if dstErr != nil {
		return res, errors.E(dstErr, fmt.Sprintf("%s: exit status %d: %s", dst.Tool, res.ExitCode, res.Output))
	}
	return res, nil
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// stream is either a file sink or the in-memory tail buffer.
type stream struct {
	w io.Writer
	f *os.File
}

func (s stream) close() {
	if s.f != nil {
		s.f.Close()
	}
}

func openStream(path string, tail *tailBuffer) (stream, error) {
	if path == "" {
		return stream{w: tail}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return stream{}, errors.E(err, path)
	}
	return stream{w: f, f: f}, nil
}

package executil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
)

// Call records one invocation seen by a Stub, in arrival order.
type Call struct {
	Tool string
	Args []string
}

// Stub is a deterministic Executor for tests. By default every invocation
// succeeds and touches the output files named by -O/-o/-out style arguments
// so that downstream stage preconditions hold. Failures are scripted per
// tool with Fail, or per invocation with a Hook.
type Stub struct {
	// Hook, if non-nil, is consulted first for every invocation. A non-nil
	// return value becomes the invocation's outcome.
	Hook func(cmd Command) error

	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

var _ Executor = (*Stub)(nil)

// Fail makes every subsequent invocation of tool (matched on the tool name
// and, when sub is nonempty, its first argument) fail with reason.
func (s *Stub) Fail(tool, sub, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]error{}
	}
	s.fail[tool+"\x00"+sub] = errors.E(fmt.Sprintf("%s %s: %s", tool, sub, reason))
}

// Calls returns a copy of the invocations seen so far.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Stub) Execute(ctx context.Context, cmd Command) (Result, error) {
	return s.run(cmd)
}

func (s *Stub) ExecutePipe(ctx context.Context, src, dst Command) (Result, error) {
	if res, err := s.run(src); err != nil {
		return res, err
	}
	return s.run(dst)
}

func (s *Stub) run(cmd Command) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Tool: cmd.Tool, Args: append([]string(nil), cmd.Args...)})
	sub := ""
	if len(cmd.Args) > 0 {
		sub = cmd.Args[0]
	}
	err := s.fail[cmd.Tool+"\x00"+sub]
	if err == nil {
		err = s.fail[cmd.Tool+"\x00"]
	}
	s.mu.Unlock()

	if s.Hook != nil {
		if hookErr := s.Hook(cmd); hookErr != nil {
			return Result{ExitCode: 1, Output: hookErr.Error()}, hookErr
		}
	}
	if err != nil {
		return Result{ExitCode: 1, Output: err.Error()}, err
	}
	if err := s.touchOutputs(cmd); err != nil {
		return Result{ExitCode: -1}, err
	}
	return Result{ExitCode: 0}, nil
}

// touchOutputs creates plausible nonempty files for the common output flag
// spellings so that stage precondition checks pass in tests.
func (s *Stub) touchOutputs(cmd Command) error {
	write := func(path string) error {
		return os.WriteFile(path, stubPayload(path), 0644)
	}
	if cmd.Stdout != "" {
		if err := write(cmd.Stdout); err != nil {
			return err
		}
	}
	for i, a := range cmd.Args {
		switch a {
		case "-o", "-O", "-M", "--out-bam":
			if i+1 < len(cmd.Args) {
				if err := write(cmd.Args[i+1]); err != nil {
					return err
				}
			}
		}
	}
	// samtools fixmate takes its output as the last positional argument.
	if len(cmd.Args) >= 3 && cmd.Args[0] == "fixmate" {
		if err := write(cmd.Args[len(cmd.Args)-1]); err != nil {
			return err
		}
	}
	// samtools index writes alongside its input.
	if len(cmd.Args) >= 2 && cmd.Args[0] == "index" {
		target := cmd.Args[len(cmd.Args)-1]
		suffix := ".bai"
		if strings.HasSuffix(target, ".cram") {
			suffix = ".crai"
		}
		if err := write(target + suffix); err != nil {
			return err
		}
	}
	return nil
}

package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
)

// File is a filesystem-backed ledger shared by independently scheduled OS
// processes. Each record is a single tab-separated line written with one
// O_APPEND write, which POSIX keeps atomic for writes of this size; readers
// collapse duplicate sample lines keeping the first, so a lost race between
// two processes reporting the same sample still yields one authoritative
// entry.
type File struct {
	Path string

	mu sync.Mutex
}

var _ T = (*File)(nil)

func (f *File) Record(sample, stage, reason string) error {
	failed, err := f.Failed(sample)
	if err != nil {
		return err
	}
	if failed {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.E(err, f.Path)
	}
	defer out.Close()
	line := fmt.Sprintf("%s\t%s\t%s\n", sample, stage, sanitize(reason))
	if _, err := out.WriteString(line); err != nil {
		return errors.E(err, f.Path)
	}
	return nil
}

func (f *File) All() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.E(err, f.Path)
	}
	defer in.Close()

	var entries []Entry
	seen := map[string]bool{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s: malformed ledger line %q", f.Path, line)
		}
		if seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		entries = append(entries, Entry{Sample: parts[0], Stage: parts[1], Reason: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, f.Path)
	}
	return entries, nil
}

func (f *File) Failed(sample string) (bool, error) {
	entries, err := f.All()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Sample == sample {
			return true, nil
		}
	}
	return false, nil
}

// sanitize keeps a reason on one ledger line.
func sanitize(reason string) string {
	reason = strings.ReplaceAll(reason, "\n", " ")
	return strings.ReplaceAll(reason, "\t", " ")
}
